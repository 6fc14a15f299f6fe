package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/inf/reelbox/internal/store"
)

type subtitleResponse struct {
	ID      int64  `json:"id"`
	VideoID int64  `json:"video_id"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

type subtitleRequest struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

func (req *subtitleRequest) validate() error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("text must not be empty")
	}
	if req.StartMs < 0 || req.EndMs <= req.StartMs {
		return errors.New("end_ms must be after start_ms")
	}
	return nil
}

func toSubtitleResponse(sub *store.Subtitle) subtitleResponse {
	return subtitleResponse{ID: sub.ID, VideoID: sub.VideoID, StartMs: sub.StartMs, EndMs: sub.EndMs, Text: sub.Text}
}

func (s *Server) handleListSubtitles(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	subs, err := s.deps.Store.SubtitlesForVideo(r.Context(), videoID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]subtitleResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubtitleResponse(&subs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubtitle(w http.ResponseWriter, r *http.Request) {
	videoID, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	var req subtitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, err)
		return
	}
	// The video must exist; the subtitles table cascades on delete.
	if _, err := s.deps.Store.VideoByID(r.Context(), videoID); err != nil {
		writeStoreError(w, err)
		return
	}
	sub := &store.Subtitle{VideoID: videoID, StartMs: req.StartMs, EndMs: req.EndMs, Text: req.Text}
	if err := s.deps.Store.InsertSubtitle(r.Context(), sub); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubtitleResponse(sub))
}

func (s *Server) handleUpdateSubtitle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	var req subtitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, err)
		return
	}
	sub := &store.Subtitle{ID: id, StartMs: req.StartMs, EndMs: req.EndMs, Text: req.Text}
	if err := s.deps.Store.UpdateSubtitle(r.Context(), sub); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSubtitle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return
	}
	if err := s.deps.Store.DeleteSubtitle(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
