// Package api exposes the daemon's HTTP surface: accounts, the video
// catalog, playlists, subtitles and control of the active playback.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/auth"
	"github.com/inf/reelbox/internal/catalog"
	"github.com/inf/reelbox/internal/playback"
	"github.com/inf/reelbox/internal/store"
)

const loginRateLimit = 10 // attempts per IP per minute

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Store     *store.Store
	Auth      *auth.Service
	Player    *playback.Manager
	Scanner   *catalog.Scanner
	ExportDir string
	Log       zerolog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps Deps
	http *http.Server
}

// New builds the server for the given listen address.
func New(listen string, deps Deps) *Server {
	s := &Server{deps: deps}
	s.http = &http.Server{
		Addr:              listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(loginRateLimit, time.Minute))
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/password", s.handleChangePassword)
			r.Put("/auth/profile", s.handleUpdateProfile)

			r.Get("/videos", s.handleListVideos)
			r.Get("/videos/{id}", s.handleGetVideo)
			r.Delete("/videos/{id}", s.handleDeleteVideo)
			r.Put("/videos/{id}/favorite", s.handleSetFavorite)

			r.Get("/videos/{id}/subtitles", s.handleListSubtitles)
			r.Post("/videos/{id}/subtitles", s.handleCreateSubtitle)
			r.Put("/subtitles/{id}", s.handleUpdateSubtitle)
			r.Delete("/subtitles/{id}", s.handleDeleteSubtitle)

			r.Get("/playlists", s.handleListPlaylists)
			r.Post("/playlists", s.handleCreatePlaylist)
			r.Get("/playlists/{id}", s.handleGetPlaylist)
			r.Put("/playlists/{id}", s.handleRenamePlaylist)
			r.Delete("/playlists/{id}", s.handleDeletePlaylist)
			r.Post("/playlists/{id}/videos", s.handleAddPlaylistVideo)
			r.Delete("/playlists/{id}/videos/{videoID}", s.handleRemovePlaylistVideo)
			r.Get("/playlists/{id}/export", s.handleExportPlaylist)

			r.Post("/player/load", s.handlePlayerLoad)
			r.Post("/player/play", s.handlePlayerPlay)
			r.Post("/player/pause", s.handlePlayerPause)
			r.Post("/player/seek", s.handlePlayerSeek)
			r.Post("/player/next", s.handlePlayerNext)
			r.Post("/player/previous", s.handlePlayerPrevious)
			r.Post("/player/suspend", s.handlePlayerSuspend)
			r.Put("/player/subtitles", s.handlePlayerSubtitles)
			r.Get("/player/status", s.handlePlayerStatus)
			r.Get("/player/events", s.handlePlayerEvents)

			r.Post("/catalog/rescan", s.handleRescan)
		})
	})
	return r
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.deps.Log.Info().Str("listen", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
