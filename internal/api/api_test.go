package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/inf/reelbox/internal/auth"
	"github.com/inf/reelbox/internal/catalog"
	"github.com/inf/reelbox/internal/playback"
	"github.com/inf/reelbox/internal/player"
	"github.com/inf/reelbox/internal/source"
	"github.com/inf/reelbox/internal/store"
)

type fixture struct {
	t     *testing.T
	srv   *httptest.Server
	st    *store.Store
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := zerolog.Nop()
	authSvc := auth.NewService(st, log)
	resolver := source.NewResolver(nil, log)
	factory := func() player.Engine {
		e := player.NewStubEngine()
		e.AutoPrepare = true
		return e
	}
	manager := playback.NewManager(st, resolver, factory, log, playback.WithPositionInterval(time.Hour))
	t.Cleanup(manager.Close)

	scanner := catalog.NewScanner(st, nil, nil, log)
	server := New(":0", Deps{
		Store:     st,
		Auth:      authSvc,
		Player:    manager,
		Scanner:   scanner,
		ExportDir: filepath.Join(dir, "exports"),
		Log:       log,
	})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	f := &fixture{t: t, srv: srv, st: st}
	f.token = f.registerAndLogin("alice", "hunter22")
	return f
}

func (f *fixture) do(method, path string, body any) *http.Response {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(f.t, err)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) registerAndLogin(username, password string) string {
	f.t.Helper()
	saved := f.token
	f.token = ""
	resp := f.do(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": username, "password": password})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"login": username, "password": password})
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](f.t, resp)
	f.token = saved
	return body["token"].(string)
}

func (f *fixture) addVideo(title string) int64 {
	f.t.Helper()
	path := filepath.Join(f.t.TempDir(), title+".mp4")
	require.NoError(f.t, os.WriteFile(path, []byte("x"), 0o644))
	v := &store.Video{Title: title, Locator: path}
	require.NoError(f.t, f.st.InsertVideo(context.Background(), v))
	return v.ID
}

func TestAuthEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[map[string]any](t, resp)
	require.Equal(t, "alice", me["username"])

	// No token, no access.
	bare := &fixture{t: t, srv: f.srv, st: f.st}
	resp = bare.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Duplicate username conflicts.
	resp = bare.do(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": "alice", "password": "hunter22"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Logout invalidates the token.
	resp = f.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestVideoEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo("Holiday")
	f.addVideo("Beach")

	resp := f.do(http.MethodGet, "/api/v1/videos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	videos := decodeBody[[]videoResponse](t, resp)
	require.Len(t, videos, 2)
	require.Equal(t, "Beach", videos[0].Title)

	resp = f.do(http.MethodGet, "/api/v1/videos?q=holi", nil)
	videos = decodeBody[[]videoResponse](t, resp)
	require.Len(t, videos, 1)
	require.Equal(t, "Holiday", videos[0].Title)

	resp = f.do(http.MethodPut, fmt.Sprintf("/api/v1/videos/%d/favorite", id),
		map[string]bool{"favorite": true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodGet, "/api/v1/videos?favorites=true", nil)
	videos = decodeBody[[]videoResponse](t, resp)
	require.Len(t, videos, 1)
	require.True(t, videos[0].Favorite)

	resp = f.do(http.MethodDelete, fmt.Sprintf("/api/v1/videos/%d", id), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodGet, fmt.Sprintf("/api/v1/videos/%d", id), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSubtitleEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo("Holiday")
	base := fmt.Sprintf("/api/v1/videos/%d/subtitles", id)

	// Inverted interval and blank text are rejected.
	resp := f.do(http.MethodPost, base, subtitleRequest{StartMs: 2000, EndMs: 1000, Text: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(http.MethodPost, base, subtitleRequest{StartMs: 0, EndMs: 1000, Text: "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodPost, base, subtitleRequest{StartMs: 0, EndMs: 1000, Text: "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[subtitleResponse](t, resp)
	require.NotZero(t, created.ID)

	resp = f.do(http.MethodPut, fmt.Sprintf("/api/v1/subtitles/%d", created.ID),
		subtitleRequest{StartMs: 500, EndMs: 1500, Text: "hello again"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodGet, base, nil)
	subs := decodeBody[[]subtitleResponse](t, resp)
	require.Len(t, subs, 1)
	require.Equal(t, "hello again", subs[0].Text)

	resp = f.do(http.MethodDelete, fmt.Sprintf("/api/v1/subtitles/%d", created.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaylistEndpoints(t *testing.T) {
	f := newFixture(t)
	a := f.addVideo("A")
	b := f.addVideo("B")

	resp := f.do(http.MethodPost, "/api/v1/playlists", map[string]string{"name": "Favorites"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[playlistResponse](t, resp)

	addPath := fmt.Sprintf("/api/v1/playlists/%d/videos", created.ID)
	resp = f.do(http.MethodPost, addPath, map[string]int64{"video_id": a})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(http.MethodPost, addPath, map[string]int64{"video_id": b})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Adding the same video twice conflicts; clients offer removal then.
	resp = f.do(http.MethodPost, addPath, map[string]int64{"video_id": a})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodGet, fmt.Sprintf("/api/v1/playlists/%d", created.ID), nil)
	detail := decodeBody[struct {
		Playlist playlistResponse `json:"playlist"`
		Videos   []videoResponse  `json:"videos"`
	}](t, resp)
	require.Len(t, detail.Videos, 2)
	require.Equal(t, "A", detail.Videos[0].Title)

	resp = f.do(http.MethodGet, fmt.Sprintf("/api/v1/playlists/%d/export", created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/x-mpegurl", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), "#EXTM3U\n"))

	// Another user cannot see the playlist at all.
	other := &fixture{t: t, srv: f.srv, st: f.st}
	other.token = other.registerAndLogin("bob", "hunter22")
	resp = other.do(http.MethodGet, fmt.Sprintf("/api/v1/playlists/%d", created.ID), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPlayerEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo("Holiday")

	resp := f.do(http.MethodPost, "/api/v1/player/load", map[string]int64{"video_id": id})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		resp := f.do(http.MethodGet, "/api/v1/player/status", nil)
		st := decodeBody[playback.Status](t, resp)
		return st.State == playback.StatePlaying
	}, 2*time.Second, 20*time.Millisecond)

	resp = f.do(http.MethodPost, "/api/v1/player/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[playback.Status](t, resp)
	require.Equal(t, playback.StatePaused, st.State)

	resp = f.do(http.MethodPost, "/api/v1/player/play", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(http.MethodPost, "/api/v1/player/seek", map[string]int64{"position_ms": 5000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[playback.Status](t, resp)
	require.Equal(t, int64(5000), st.PositionMs)

	// Pausing an idle player is a state conflict.
	resp = f.do(http.MethodPost, "/api/v1/player/suspend", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = f.do(http.MethodPost, "/api/v1/player/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestPlayerEventStream(t *testing.T) {
	f := newFixture(t)
	id := f.addVideo("Holiday")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/player/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	loadResp := f.do(http.MethodPost, "/api/v1/player/load", map[string]int64{"video_id": id})
	loadResp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: prepared") {
			return
		}
	}
	t.Fatalf("no prepared event on stream: %v", scanner.Err())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := f.srv.Client().Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
