package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/inf/reelbox/internal/playlist"
	"github.com/inf/reelbox/internal/store"
)

type playlistResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toPlaylistResponse(p *store.Playlist) playlistResponse {
	return playlistResponse{
		ID:        p.ID,
		Name:      p.Name,
		Thumbnail: p.Thumbnail,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// ownedPlaylist loads the playlist and hides other users' playlists
// behind a 404.
func (s *Server) ownedPlaylist(w http.ResponseWriter, r *http.Request) (*store.Playlist, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	p, err := s.deps.Store.PlaylistByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	if p.UserID != currentUser(r).ID {
		writeNotFound(w)
		return nil, false
	}
	return p, true
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.deps.Store.PlaylistsForUser(r.Context(), currentUser(r).ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]playlistResponse, 0, len(lists))
	for i := range lists {
		// Thumbnails derive lazily from the first entry.
		if lists[i].Thumbnail == "" {
			if thumb, err := s.deps.Store.PlaylistThumbnail(r.Context(), lists[i].ID); err == nil {
				lists[i].Thumbnail = thumb
			}
		}
		out = append(out, toPlaylistResponse(&lists[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, errors.New("name must not be empty"))
		return
	}
	p := &store.Playlist{UserID: currentUser(r).ID, Name: strings.TrimSpace(req.Name)}
	if err := s.deps.Store.CreatePlaylist(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlaylistResponse(p))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	videos, err := s.deps.Store.VideosForPlaylist(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playlist": toPlaylistResponse(p),
		"videos":   toVideoResponses(videos),
	})
}

func (s *Server) handleRenamePlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, errors.New("name must not be empty"))
		return
	}
	if err := s.deps.Store.RenamePlaylist(r.Context(), p.ID, strings.TrimSpace(req.Name)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeletePlaylist(r.Context(), p.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddPlaylistVideo appends a video; adding it twice answers 409,
// which clients use to offer removal instead.
func (s *Server) handleAddPlaylistVideo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	var req struct {
		VideoID int64 `json:"video_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if _, err := s.deps.Store.VideoByID(r.Context(), req.VideoID); err != nil {
		writeStoreError(w, err)
		return
	}
	entry, err := s.deps.Store.AppendEntry(r.Context(), p.ID, req.VideoID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{
		"playlist_id": entry.PlaylistID,
		"video_id":    entry.VideoID,
		"position":    entry.Position,
	})
}

func (s *Server) handleRemovePlaylistVideo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	videoID, ok := pathID(r, "videoID")
	if !ok {
		writeNotFound(w)
		return
	}
	if err := s.deps.Store.RemoveEntry(r.Context(), p.ID, videoID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportPlaylist renders the playlist as M3U and keeps an atomic
// copy under the export directory.
func (s *Server) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlaylist(w, r)
	if !ok {
		return
	}
	videos, err := s.deps.Store.VideosForPlaylist(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if s.deps.ExportDir != "" {
		path := filepath.Join(s.deps.ExportDir, fmt.Sprintf("playlist-%d.m3u", p.ID))
		if err := playlist.ExportFile(path, videos, s.deps.Log); err != nil {
			s.deps.Log.Error().Err(err).Int64("playlist_id", p.ID).Msg("playlist export failed")
		}
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Name+".m3u"))
	if err := playlist.WriteM3U(w, videos); err != nil {
		s.deps.Log.Debug().Err(err).Msg("write M3U response")
	}
}
