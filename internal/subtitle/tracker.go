// Package subtitle resolves the active subtitle line against the
// playback position and publishes show/hide events.
package subtitle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/metrics"
	"github.com/inf/reelbox/internal/store"
)

// DefaultInterval is the poll period. 100ms is imperceptible against
// subtitle boundary granularity without meaningful query load.
const DefaultInterval = 100 * time.Millisecond

// Player exposes the slice of the playback session the tracker reads.
type Player interface {
	Playing() bool
	Position() int64
}

// Lookup is the subtitle storage query the tracker performs each tick.
type Lookup interface {
	SubtitleActiveAt(ctx context.Context, videoID, atMs int64) (*store.Subtitle, error)
}

// Event is a subtitle display change. Show=false clears the overlay.
type Event struct {
	Show bool
	Text string
}

// Tracker polls the playback position and emits an event only when the
// active line changes.
type Tracker struct {
	player   Player
	lookup   Lookup
	log      zerolog.Logger
	interval time.Duration

	mu       sync.Mutex
	videoID  int64
	enabled  bool
	running  bool
	closed   bool
	stop     chan struct{}
	loopDone chan struct{}
	lastText string
	shown    bool

	events chan Event
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the poll period (tests use a short one).
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// NewTracker creates a tracker; Start begins polling.
func NewTracker(player Player, lookup Lookup, log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		player:   player,
		lookup:   lookup,
		log:      log,
		interval: DefaultInterval,
		enabled:  true,
		events:   make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events delivers show/hide changes. The channel closes on Close.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Start begins polling for the given video. Calling Start while running
// re-targets the video without spawning a second loop.
func (t *Tracker) Start(videoID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.videoID = videoID
	if t.running {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.loopDone = make(chan struct{})
	go t.loop(t.stop, t.loopDone)
}

func (t *Tracker) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// Stop halts polling. Must be called whenever the session leaves
// Playing so no timer outlives it. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	done := t.loopDone
	t.mu.Unlock()
	<-done
}

// SetEnabled toggles subtitle display. Disabling forces a hide even
// mid-line; enabling re-evaluates immediately instead of waiting for
// the next tick.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	if !enabled {
		t.emitLocked(Event{Show: false})
		t.lastText = ""
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.tick()
}

// Close stops polling and closes the event channel.
func (t *Tracker) Close() {
	t.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.events)
}

func (t *Tracker) tick() {
	t.mu.Lock()
	videoID := t.videoID
	enabled := t.enabled
	t.mu.Unlock()

	if !enabled || videoID == 0 || !t.player.Playing() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	position := t.player.Position()
	sub, err := t.lookup.SubtitleActiveAt(ctx, videoID, position)
	text := ""
	switch {
	case err == nil:
		text = sub.Text
	case errors.Is(err, store.ErrNotFound):
		// no active line
	default:
		t.log.Debug().Err(err).Int64("video_id", videoID).Msg("subtitle lookup failed")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if text == t.lastText && t.shown == (text != "") {
		return
	}
	t.lastText = text
	if text == "" {
		t.emitLocked(Event{Show: false})
	} else {
		t.emitLocked(Event{Show: true, Text: text})
	}
}

// emitLocked publishes a change, dropping if the consumer lags. A
// redundant hide is suppressed.
func (t *Tracker) emitLocked(ev Event) {
	if t.closed {
		return
	}
	if !ev.Show && !t.shown {
		return
	}
	t.shown = ev.Show
	metrics.RecordSubtitleEvent(ev.Show)
	select {
	case t.events <- ev:
	default:
		t.log.Debug().Msg("subtitle event dropped: slow consumer")
	}
}
