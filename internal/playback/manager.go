package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/metrics"
	"github.com/inf/reelbox/internal/player"
	"github.com/inf/reelbox/internal/playlist"
	"github.com/inf/reelbox/internal/store"
	"github.com/inf/reelbox/internal/subtitle"
)

// Subtitle event types appended to the session's own event stream.
const (
	EventSubtitleShow EventType = "subtitle-show"
	EventSubtitleHide EventType = "subtitle-hide"
)

const advanceTimeout = 5 * time.Second

// ManagerStore is the full storage surface the manager wires together.
type ManagerStore interface {
	Catalog
	playlist.Store
	subtitle.Lookup
}

// Status is a point-in-time snapshot of the active playback.
type Status struct {
	State            State  `json:"state"`
	VideoID          int64  `json:"video_id,omitempty"`
	Title            string `json:"title,omitempty"`
	PositionMs       int64  `json:"position_ms"`
	DurationMs       int64  `json:"duration_ms"`
	PlaylistID       int64  `json:"playlist_id,omitempty"`
	SubtitlesEnabled bool   `json:"subtitles_enabled"`
}

// Manager ties the session, the subtitle tracker and playlist
// continuity together and fans events out to subscribers.
type Manager struct {
	session    *Session
	tracker    *subtitle.Tracker
	continuity *playlist.Controller
	log        zerolog.Logger

	stopC    chan struct{}
	pumpDone chan struct{}

	mu       sync.Mutex
	closed   bool
	subs     map[int64]chan Event
	nextSub  int64
	subtitle bool
}

// NewManager wires a fresh session against the given store. Close must
// be called to release it.
func NewManager(st ManagerStore, resolver Resolver, factory player.Factory, log zerolog.Logger, opts ...Option) *Manager {
	session := NewSession(st, resolver, factory, log, opts...)
	m := &Manager{
		session:    session,
		tracker:    subtitle.NewTracker(session, st, log),
		continuity: playlist.NewController(st),
		log:        log,
		stopC:      make(chan struct{}),
		pumpDone:   make(chan struct{}),
		subs:       make(map[int64]chan Event),
		subtitle:   true,
	}
	go m.pump()
	return m
}

// Load starts playback of a video. A playlistID above zero attaches
// playlist continuity; zero detaches it and navigation falls back to
// catalog order.
func (m *Manager) Load(ctx context.Context, videoID, playlistID int64) error {
	if playlistID > 0 {
		if err := m.continuity.Attach(ctx, playlistID); err != nil {
			return err
		}
	} else {
		m.continuity.Detach()
	}
	m.tracker.Stop()
	return m.session.Load(ctx, videoID, true)
}

// Play resumes a ready or paused session.
func (m *Manager) Play() error {
	if err := m.session.Play(); err != nil {
		return err
	}
	if v := m.session.Video(); v != nil {
		m.tracker.Start(v.ID)
	}
	return nil
}

// Pause halts playback, keeping the position.
func (m *Manager) Pause() error {
	m.tracker.Stop()
	return m.session.Pause()
}

// Seek moves the playhead.
func (m *Manager) Seek(positionMs int64) error {
	return m.session.Seek(positionMs)
}

// Next switches to the following video. At the end of an attached
// playlist, or of the catalog, playback stops and rewinds instead.
func (m *Manager) Next(ctx context.Context) error {
	return m.switchTo(ctx, m.continuity.Next)
}

// Previous switches to the preceding video, stopping at the start of
// the playlist or catalog.
func (m *Manager) Previous(ctx context.Context) error {
	return m.switchTo(ctx, m.continuity.Previous)
}

// Suspend persists the position and halts playback, e.g. when the
// client goes to background. Playback stays paused until Play.
func (m *Manager) Suspend() error {
	m.tracker.Stop()
	if err := m.session.Pause(); err != nil && !errors.Is(err, ErrPrecondition) {
		return err
	}
	return nil
}

// SetSubtitlesEnabled toggles subtitle display for the active session.
func (m *Manager) SetSubtitlesEnabled(enabled bool) {
	m.mu.Lock()
	m.subtitle = enabled
	m.mu.Unlock()
	m.tracker.SetEnabled(enabled)
}

// Status snapshots the active playback.
func (m *Manager) Status() Status {
	m.mu.Lock()
	subsOn := m.subtitle
	m.mu.Unlock()

	st := Status{
		State:            m.session.State(),
		PositionMs:       m.session.Position(),
		DurationMs:       m.session.Duration(),
		PlaylistID:       m.continuity.PlaylistID(),
		SubtitlesEnabled: subsOn,
	}
	if v := m.session.Video(); v != nil {
		st.VideoID = v.ID
		st.Title = v.Title
	}
	return st
}

// Subscribe registers an event consumer. Slow consumers lose events.
func (m *Manager) Subscribe() (int64, <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	ch := make(chan Event, 32)
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (m *Manager) Unsubscribe(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// Close stops event delivery, the tracker and the session. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopC)
	<-m.pumpDone
	m.tracker.Close()
	m.session.Dispose()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) switchTo(ctx context.Context, pick func(context.Context, int64) (*store.Video, error)) error {
	cur := m.session.Video()
	if cur == nil {
		return ErrPrecondition
	}
	next, err := pick(ctx, cur.ID)
	switch {
	case err == nil:
		m.tracker.Stop()
		m.session.ResetSavedPosition()
		return m.session.Load(ctx, next.ID, true)
	case errors.Is(err, playlist.ErrEndOfPlaylist),
		errors.Is(err, playlist.ErrStartOfPlaylist),
		errors.Is(err, playlist.ErrNoMoreVideos):
		m.tracker.Stop()
		return m.session.Stop()
	default:
		return err
	}
}

// pump fans session and subtitle events out to subscribers and drives
// automatic playlist continuity.
func (m *Manager) pump() {
	defer close(m.pumpDone)
	for {
		select {
		case <-m.stopC:
			return
		case ev := <-m.session.Events():
			m.handleSessionEvent(ev)
		case sev := <-m.tracker.Events():
			if sev.Show {
				m.broadcast(Event{Type: EventSubtitleShow, Text: sev.Text})
			} else {
				m.broadcast(Event{Type: EventSubtitleHide})
			}
		}
	}
}

func (m *Manager) handleSessionEvent(ev Event) {
	m.broadcast(ev)
	switch ev.Type {
	case EventPrepared:
		if m.session.Playing() {
			m.tracker.Start(ev.VideoID)
		}
	case EventEnded:
		m.tracker.Stop()
		m.advance(ev.VideoID)
	case EventFailed:
		m.tracker.Stop()
	}
}

// advance loads the next video after a natural completion. Boundaries
// leave the session in its ended state.
func (m *Manager) advance(endedID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), advanceTimeout)
	defer cancel()

	next, err := m.continuity.Next(ctx, endedID)
	switch {
	case err == nil:
		metrics.RecordAutoAdvance()
		m.log.Info().Int64("from", endedID).Int64("to", next.ID).Msg("advancing to next video")
		if err := m.session.Load(ctx, next.ID, true); err != nil {
			m.log.Error().Err(err).Int64("video_id", next.ID).Msg("auto-advance load failed")
		}
	case errors.Is(err, playlist.ErrEndOfPlaylist), errors.Is(err, playlist.ErrNoMoreVideos):
		m.log.Info().Int64("video_id", endedID).Msg("playback finished, nothing follows")
	default:
		m.log.Error().Err(err).Int64("video_id", endedID).Msg("auto-advance lookup failed")
	}
}

func (m *Manager) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.log.Debug().Int64("subscriber", id).Str("type", string(ev.Type)).Msg("event dropped: slow subscriber")
		}
	}
}
