package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sseHeartbeat = 15 * time.Second

func (s *Server) handlePlayerLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID    int64 `json:"video_id"`
		PlaylistID int64 `json:"playlist_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.deps.Player.Load(r.Context(), req.VideoID, req.PlaylistID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Player.Status())
}

func (s *Server) handlePlayerPlay(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Player.Play(); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerPause(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Player.Pause(); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMs int64 `json:"position_ms"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.deps.Player.Seek(req.PositionMs); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerNext(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Player.Next(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerPrevious(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Player.Previous(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerSuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Player.Suspend(); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerSubtitles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.deps.Player.SetSubtitlesEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

func (s *Server) handlePlayerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Player.Status())
}

// handlePlayerEvents streams playback and subtitle events as SSE.
func (s *Server) handlePlayerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, events := s.deps.Player.Subscribe()
	defer s.deps.Player.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
