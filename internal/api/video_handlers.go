package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inf/reelbox/internal/store"
)

type videoResponse struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Locator        string `json:"locator"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	LastPositionMs int64  `json:"last_position_ms"`
	SizeBytes      int64  `json:"size_bytes"`
	Favorite       bool   `json:"favorite"`
	Kind           string `json:"kind"`
	DateAdded      string `json:"date_added"`
}

func toVideoResponse(v *store.Video) videoResponse {
	return videoResponse{
		ID:             v.ID,
		Title:          v.Title,
		Locator:        v.Locator,
		Thumbnail:      v.Thumbnail,
		DurationMs:     v.DurationMs,
		LastPositionMs: v.LastPositionMs,
		SizeBytes:      v.SizeBytes,
		Favorite:       v.Favorite,
		Kind:           string(v.Kind),
		DateAdded:      v.DateAdded.Format(time.RFC3339),
	}
}

func toVideoResponses(videos []store.Video) []videoResponse {
	out := make([]videoResponse, 0, len(videos))
	for i := range videos {
		out = append(out, toVideoResponse(&videos[i]))
	}
	return out
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// handleListVideos lists the catalog: alphabetic by default, newest
// first with ?sort=added, narrowed by ?q= or ?favorites=true.
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		videos []store.Video
		err    error
	)
	switch {
	case r.URL.Query().Get("q") != "":
		videos, err = s.deps.Store.SearchVideos(ctx, r.URL.Query().Get("q"))
	case r.URL.Query().Get("favorites") == "true":
		videos, err = s.deps.Store.FavoriteVideos(ctx)
	case r.URL.Query().Get("sort") == "added":
		videos, err = s.deps.Store.VideosByDateAdded(ctx)
	default:
		videos, err = s.deps.Store.Videos(ctx)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponses(videos))
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	v, err := s.deps.Store.VideoByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponse(v))
}

// handleDeleteVideo removes the catalog entry. The media file itself is
// left alone; only the daemon's knowledge of it goes away.
func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	if err := s.deps.Store.DeleteVideo(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.deps.Store.SetFavorite(r.Context(), id, req.Favorite); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
