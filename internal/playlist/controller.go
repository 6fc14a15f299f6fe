// Package playlist decides which video plays next: within an attached
// playlist, or by catalog order when no playlist is active.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/inf/reelbox/internal/store"
)

var (
	// ErrEndOfPlaylist is reported by Next at the last entry. Playback
	// stops there; there is no auto-advance past a playlist boundary.
	ErrEndOfPlaylist = errors.New("playlist: end of playlist reached")
	// ErrStartOfPlaylist is reported by Previous at the first entry.
	ErrStartOfPlaylist = errors.New("playlist: start of playlist reached")
	// ErrNoMoreVideos is reported when the catalog fallback has no
	// adjacent video either.
	ErrNoMoreVideos = errors.New("playlist: no more videos")
)

// Store is the storage slice the controller consumes.
type Store interface {
	VideosForPlaylist(ctx context.Context, playlistID int64) ([]store.Video, error)
	NextVideoAfter(ctx context.Context, id int64) (*store.Video, error)
	PreviousVideoBefore(ctx context.Context, id int64) (*store.Video, error)
}

// Controller caches the ordered member list of the attached playlist
// once per attach; navigation never re-queries it.
type Controller struct {
	store Store

	mu         sync.Mutex
	playlistID int64
	videos     []store.Video
}

// NewController creates a detached controller.
func NewController(s Store) *Controller {
	return &Controller{store: s}
}

// Attach loads and caches the playlist's ordered videos.
func (c *Controller) Attach(ctx context.Context, playlistID int64) error {
	videos, err := c.store.VideosForPlaylist(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("load playlist %d: %w", playlistID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlistID = playlistID
	c.videos = videos
	return nil
}

// Detach drops the playlist context; navigation falls back to catalog
// order.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlistID = 0
	c.videos = nil
}

// PlaylistID returns the attached playlist, 0 when detached.
func (c *Controller) PlaylistID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playlistID
}

// Next returns the video after currentID: the adjacent cached entry
// when a playlist is attached and contains the current video, otherwise
// the next catalog video by ID.
func (c *Controller) Next(ctx context.Context, currentID int64) (*store.Video, error) {
	c.mu.Lock()
	idx, attached := c.indexOfLocked(currentID)
	if attached && idx >= 0 {
		if idx == len(c.videos)-1 {
			c.mu.Unlock()
			return nil, ErrEndOfPlaylist
		}
		v := c.videos[idx+1]
		c.mu.Unlock()
		return &v, nil
	}
	c.mu.Unlock()

	v, err := c.store.NextVideoAfter(ctx, currentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoMoreVideos
	}
	return v, err
}

// Previous mirrors Next in the other direction.
func (c *Controller) Previous(ctx context.Context, currentID int64) (*store.Video, error) {
	c.mu.Lock()
	idx, attached := c.indexOfLocked(currentID)
	if attached && idx >= 0 {
		if idx == 0 {
			c.mu.Unlock()
			return nil, ErrStartOfPlaylist
		}
		v := c.videos[idx-1]
		c.mu.Unlock()
		return &v, nil
	}
	c.mu.Unlock()

	v, err := c.store.PreviousVideoBefore(ctx, currentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoMoreVideos
	}
	return v, err
}

// indexOfLocked locates the current video by identity. Linear scan:
// playlists are short by construction.
func (c *Controller) indexOfLocked(currentID int64) (int, bool) {
	if c.playlistID == 0 {
		return -1, false
	}
	for i := range c.videos {
		if c.videos[i].ID == currentID {
			return i, true
		}
	}
	return -1, true
}
