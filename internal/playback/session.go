// Package playback owns the lifecycle of the single active playback
// session: resolving a stored locator, driving the media engine,
// remembering positions and surfacing state changes as events.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/metrics"
	"github.com/inf/reelbox/internal/player"
	"github.com/inf/reelbox/internal/source"
	"github.com/inf/reelbox/internal/store"
)

// ResumeWindowMs is the tail window in which a saved position is
// treated as "finished": resuming inside the last 10 seconds would
// only replay the credits, so playback restarts from zero instead.
const ResumeWindowMs = 10000

const (
	resolveTimeout = 10 * time.Second
	persistTimeout = 3 * time.Second

	// DefaultPositionInterval is how often a playing session samples the
	// playhead for position events.
	DefaultPositionInterval = time.Second
)

// ErrPrecondition is returned when an operation does not apply in the
// session's current state.
var ErrPrecondition = errors.New("playback: operation not valid in current state")

// ErrDisposed is returned by operations on a disposed session.
var ErrDisposed = errors.New("playback: session disposed")

// State is the session lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StatePreparing State = "preparing"
	StateReady     State = "ready"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateEnded     State = "ended"
)

// FailureKind classifies user-visible playback failures.
type FailureKind string

const (
	FailureSourceNotFound    FailureKind = "source-not-found"
	FailurePermissionExpired FailureKind = "permission-expired"
	FailureUnsupportedFormat FailureKind = "unsupported-format"
	FailureIO                FailureKind = "io"
	FailureTimeout           FailureKind = "timeout"
	FailureUnknown           FailureKind = "unknown"
)

// EventType discriminates session events.
type EventType string

const (
	EventPrepared EventType = "prepared"
	EventPosition EventType = "position"
	EventEnded    EventType = "ended"
	EventFailed   EventType = "failed"
)

// Event is a session notification. Failed events carry the failure
// kind and whether removing the catalog entry is a sensible remedy.
type Event struct {
	Type       EventType   `json:"type"`
	VideoID    int64       `json:"video_id"`
	PositionMs int64       `json:"position_ms,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
	Message    string      `json:"message,omitempty"`
	Text       string      `json:"text,omitempty"`
	CanDelete  bool        `json:"can_delete,omitempty"`
}

// Catalog is the video metadata slice the session reads and writes.
type Catalog interface {
	VideoByID(ctx context.Context, id int64) (*store.Video, error)
	UpdateLastPosition(ctx context.Context, id, positionMs int64) error
	UpdateDuration(ctx context.Context, id, durationMs int64) error
}

// Resolver verifies locators before they reach the engine.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (source.PlayableSource, error)
}

type persistReq struct {
	videoID    int64
	positionMs int64
}

// Session drives one video at a time. Every Load supersedes the
// previous one: the epoch counter invalidates callbacks and resolution
// results that arrive after a newer load has started.
type Session struct {
	catalog  Catalog
	resolver Resolver
	factory  player.Factory
	log      zerolog.Logger

	posInterval time.Duration

	mu       sync.Mutex
	state    State
	epoch    uint64
	engine   player.Engine
	video    *store.Video
	autoplay bool
	retried  bool
	duration int64
	disposed bool
	posStop  chan struct{}
	posDone  chan struct{}

	lastPos atomic.Int64

	persistC    chan persistReq
	persistDone chan struct{}

	events chan Event
}

// Option configures a Session.
type Option func(*Session)

// WithPositionInterval overrides the position sampling period.
func WithPositionInterval(d time.Duration) Option {
	return func(s *Session) { s.posInterval = d }
}

// NewSession creates an idle session and starts its persistence worker.
// Dispose must be called to release it.
func NewSession(catalog Catalog, resolver Resolver, factory player.Factory, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		catalog:     catalog,
		resolver:    resolver,
		factory:     factory,
		log:         log,
		posInterval: DefaultPositionInterval,
		state:       StateIdle,
		persistC:    make(chan persistReq, 64),
		persistDone: make(chan struct{}),
		events:      make(chan Event, 32),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.persistLoop()
	return s
}

// Events delivers session notifications. The channel stays open for
// the session's lifetime; slow consumers lose events rather than
// blocking playback.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Load resolves and prepares the given video, superseding whatever the
// session was doing. With autoplay, playback starts as soon as the
// engine reports prepared.
func (s *Session) Load(ctx context.Context, videoID int64, autoplay bool) error {
	video, err := s.catalog.VideoByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video %d: %w", videoID, err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.epoch++
	epoch := s.epoch
	s.teardownLocked()
	s.video = video
	s.autoplay = autoplay
	s.retried = false
	s.duration = 0
	s.lastPos.Store(video.LastPositionMs)
	s.setStateLocked(StateResolving)
	s.mu.Unlock()

	metrics.RecordSessionStart()
	go s.resolveAndPrepare(epoch)
	return nil
}

// Play starts or resumes playback. Idempotent while playing.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying:
		return nil
	case StateReady, StatePaused:
	default:
		return fmt.Errorf("%w: play in state %s", ErrPrecondition, s.state)
	}
	if err := s.engine.Play(); err != nil {
		return fmt.Errorf("engine play: %w", err)
	}
	s.setStateLocked(StatePlaying)
	s.startPositionLoopLocked()
	return nil
}

// Pause halts playback and persists the position. Pausing an already
// paused session is a no-op and writes nothing.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		return nil
	}
	if s.state != StatePlaying {
		return fmt.Errorf("%w: pause in state %s", ErrPrecondition, s.state)
	}
	if err := s.engine.Pause(); err != nil {
		return fmt.Errorf("engine pause: %w", err)
	}
	s.stopPositionLoopLocked()
	pos := s.engine.Position()
	s.lastPos.Store(pos)
	s.setStateLocked(StatePaused)
	s.persistC <- persistReq{videoID: s.video.ID, positionMs: pos}
	return nil
}

// Seek moves the playhead and persists the new position. Targets
// outside [0, duration) are clamped once the duration is known.
func (s *Session) Seek(positionMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady, StatePlaying, StatePaused:
	default:
		return fmt.Errorf("%w: seek in state %s", ErrPrecondition, s.state)
	}
	if positionMs < 0 {
		positionMs = 0
	}
	if s.duration > 0 && positionMs >= s.duration {
		positionMs = s.duration - 1
	}
	if err := s.engine.SeekTo(positionMs); err != nil {
		return fmt.Errorf("engine seek: %w", err)
	}
	s.lastPos.Store(positionMs)
	s.persistC <- persistReq{videoID: s.video.ID, positionMs: positionMs}
	return nil
}

// Stop halts playback and rewinds to the start, persisting zero. The
// video stays loaded and ready for another Play.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying:
		if err := s.engine.Pause(); err != nil {
			return fmt.Errorf("engine pause: %w", err)
		}
		s.stopPositionLoopLocked()
	case StatePaused, StateReady, StateEnded:
	default:
		return fmt.Errorf("%w: stop in state %s", ErrPrecondition, s.state)
	}
	if err := s.engine.SeekTo(0); err != nil {
		return fmt.Errorf("engine seek: %w", err)
	}
	s.lastPos.Store(0)
	s.setStateLocked(StateReady)
	s.persistC <- persistReq{videoID: s.video.ID, positionMs: 0}
	return nil
}

// ResetSavedPosition persists position zero for the current video.
// Used when the user deliberately moves on to another video.
func (s *Session) ResetSavedPosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.video == nil {
		return
	}
	s.lastPos.Store(0)
	s.persistC <- persistReq{videoID: s.video.ID, positionMs: 0}
}

// Dispose persists the position of an interrupted playback, releases
// the engine and drains pending writes. Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.epoch++
	s.stopPositionLoopLocked()
	if s.engine != nil {
		if s.state == StatePlaying || s.state == StatePaused {
			pos := s.engine.Position()
			s.lastPos.Store(pos)
			s.persistC <- persistReq{videoID: s.video.ID, positionMs: pos}
		}
		s.engine.Release()
		s.engine = nil
	}
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	close(s.persistC)
	<-s.persistDone
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Video returns a copy of the loaded video, nil when idle.
func (s *Session) Video() *store.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return nil
	}
	v := *s.video
	return &v
}

// Playing reports whether the session is actively playing.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePlaying
}

// Position returns the current playhead in milliseconds.
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine.Position()
	}
	return s.lastPos.Load()
}

// Duration returns the media duration in milliseconds, 0 if unknown.
func (s *Session) Duration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Session) resolveAndPrepare(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	video := *s.video
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	src, err := s.resolver.Resolve(ctx, video.Locator)
	if errors.Is(err, source.ErrPermissionExpired) && s.markRetry(epoch) {
		metrics.RecordPlaybackRetry()
		s.log.Debug().Int64("video_id", video.ID).Msg("permission expired, retrying resolution once")
		src, err = s.resolver.Resolve(ctx, video.Locator)
	}
	if err != nil {
		s.fail(epoch, failureForResolve(err), err)
		return
	}

	engine := s.factory()
	engine.SetCallbacks(player.Callbacks{
		OnPrepared:   func(durationMs int64) { s.onPrepared(epoch, durationMs) },
		OnCompletion: func() { s.onCompletion(epoch) },
		OnError:      func(kind player.Kind, err error) { s.onEngineError(epoch, kind, err) },
	})
	if err := engine.SetSource(src); err != nil {
		engine.Release()
		s.fail(epoch, FailureIO, err)
		return
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		engine.Release()
		return
	}
	s.engine = engine
	s.setStateLocked(StatePreparing)
	s.mu.Unlock()

	if err := engine.Prepare(); err != nil {
		s.fail(epoch, FailureIO, err)
	}
}

// markRetry consumes the single silent retry this load is entitled to.
func (s *Session) markRetry(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.retried {
		return false
	}
	s.retried = true
	return true
}

func (s *Session) onPrepared(epoch uint64, durationMs int64) {
	s.mu.Lock()
	if epoch != s.epoch || s.engine == nil {
		s.mu.Unlock()
		return
	}
	video := *s.video
	s.mu.Unlock()

	if durationMs > 0 && video.DurationMs != durationMs {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.catalog.UpdateDuration(ctx, video.ID, durationMs); err != nil {
			s.log.Warn().Err(err).Int64("video_id", video.ID).Msg("duration update failed")
		}
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.engine == nil {
		return
	}
	s.duration = durationMs

	// Resume at the saved position unless it falls inside the final
	// window. Without a known duration the window cannot be checked, so
	// playback starts from zero.
	resumeAt := int64(0)
	if durationMs > 0 && video.LastPositionMs < durationMs-ResumeWindowMs {
		resumeAt = video.LastPositionMs
		if err := s.engine.SeekTo(resumeAt); err != nil {
			s.log.Warn().Err(err).Int64("video_id", video.ID).Msg("resume seek failed")
			resumeAt = 0
		}
	}
	s.lastPos.Store(resumeAt)
	s.setStateLocked(StateReady)
	s.emit(Event{Type: EventPrepared, VideoID: video.ID, PositionMs: resumeAt, DurationMs: durationMs})

	if s.autoplay {
		if err := s.engine.Play(); err != nil {
			s.log.Error().Err(err).Int64("video_id", video.ID).Msg("autoplay failed")
			return
		}
		s.setStateLocked(StatePlaying)
		s.startPositionLoopLocked()
	}
}

func (s *Session) onCompletion(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.video == nil {
		return
	}
	s.stopPositionLoopLocked()
	s.setStateLocked(StateEnded)
	// A finished video restarts from the beginning next time.
	s.lastPos.Store(0)
	s.persistC <- persistReq{videoID: s.video.ID, positionMs: 0}
	s.emit(Event{Type: EventEnded, VideoID: s.video.ID, DurationMs: s.duration})
}

func (s *Session) onEngineError(epoch uint64, kind player.Kind, err error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if kind == player.KindPermission && !s.retried {
		s.retried = true
		s.stopPositionLoopLocked()
		if s.engine != nil {
			s.engine.Release()
			s.engine = nil
		}
		videoID := s.video.ID
		s.setStateLocked(StateResolving)
		s.mu.Unlock()

		metrics.RecordPlaybackRetry()
		s.log.Debug().Int64("video_id", videoID).Msg("engine permission error, retrying resolution once")
		go s.resolveAndPrepare(epoch)
		return
	}
	s.mu.Unlock()
	s.fail(epoch, failureForKind(kind), err)
}

// fail tears the session down to idle and emits a single failed event.
func (s *Session) fail(epoch uint64, kind FailureKind, cause error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.stopPositionLoopLocked()
	if s.engine != nil {
		s.engine.Release()
		s.engine = nil
	}
	video := *s.video
	s.setStateLocked(StateIdle)
	s.emit(Event{
		Type:      EventFailed,
		VideoID:   video.ID,
		Kind:      kind,
		Message:   cause.Error(),
		CanDelete: kind == FailureSourceNotFound || kind == FailurePermissionExpired,
	})
	s.mu.Unlock()

	metrics.RecordPlaybackFailure(string(kind))
	s.log.Error().Err(cause).Int64("video_id", video.ID).Str("kind", string(kind)).Msg("playback failed")
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.log.Debug().Str("from", string(s.state)).Str("to", string(st)).Msg("session state")
	s.state = st
}

func (s *Session) startPositionLoopLocked() {
	if s.posStop != nil {
		return
	}
	s.posStop = make(chan struct{})
	s.posDone = make(chan struct{})
	go s.positionLoop(s.engine, s.video.ID, s.posStop, s.posDone)
}

func (s *Session) stopPositionLoopLocked() {
	if s.posStop == nil {
		return
	}
	close(s.posStop)
	<-s.posDone
	s.posStop, s.posDone = nil, nil
}

// positionLoop samples the playhead while playing. It must not take
// s.mu: stopPositionLoopLocked joins it while holding the lock.
func (s *Session) positionLoop(engine player.Engine, videoID int64, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.posInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pos := engine.Position()
			s.lastPos.Store(pos)
			s.emit(Event{Type: EventPosition, VideoID: videoID, PositionMs: pos, DurationMs: engine.Duration()})
		}
	}
}

// teardownLocked stops the current playback without touching saved
// positions; Load and Dispose decide what to persist.
func (s *Session) teardownLocked() {
	s.stopPositionLoopLocked()
	if s.engine != nil {
		s.engine.Release()
		s.engine = nil
	}
}

// persistLoop applies position writes in order. Writes are fire and
// forget from the caller's point of view; failures are counted and
// logged, never surfaced to playback.
func (s *Session) persistLoop() {
	defer close(s.persistDone)
	for req := range s.persistC {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := s.catalog.UpdateLastPosition(ctx, req.videoID, req.positionMs)
		cancel()
		metrics.RecordPositionWrite(err == nil)
		if err != nil {
			s.log.Warn().Err(err).Int64("video_id", req.videoID).Int64("position_ms", req.positionMs).Msg("position write failed")
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug().Str("type", string(ev.Type)).Msg("session event dropped: slow consumer")
	}
}

func failureForResolve(err error) FailureKind {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return FailureSourceNotFound
	case errors.Is(err, source.ErrPermissionExpired):
		return FailurePermissionExpired
	default:
		return FailureUnknown
	}
}

func failureForKind(kind player.Kind) FailureKind {
	switch kind {
	case player.KindIO:
		return FailureIO
	case player.KindUnsupported:
		return FailureUnsupportedFormat
	case player.KindPermission:
		return FailurePermissionExpired
	case player.KindTimeout:
		return FailureTimeout
	default:
		return FailureUnknown
	}
}
