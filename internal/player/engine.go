// Package player defines the capability interface for the underlying
// media engine. Decoding, rendering and buffering live behind it; the
// playback session only orchestrates.
package player

import (
	"github.com/inf/reelbox/internal/source"
)

// Kind classifies engine-reported errors.
type Kind string

const (
	KindIO          Kind = "io"
	KindUnsupported Kind = "unsupported"
	KindPermission  Kind = "permission"
	KindTimeout     Kind = "timeout"
	KindUnknown     Kind = "unknown"
)

// Callbacks receive engine notifications. They are always invoked from
// engine-owned goroutines, never synchronously from an Engine method,
// so implementations may call back into the engine.
type Callbacks struct {
	// OnPrepared fires once the source is ready; durationMs may be 0 if
	// the engine cannot determine it.
	OnPrepared func(durationMs int64)
	// OnCompletion fires on natural end of playback.
	OnCompletion func()
	// OnError fires on any engine failure.
	OnError func(kind Kind, err error)
}

// Engine is the black-box media engine capability.
type Engine interface {
	SetCallbacks(cb Callbacks)
	SetSource(src source.PlayableSource) error
	// Prepare starts asynchronous preparation; completion is signalled
	// via OnPrepared or OnError.
	Prepare() error
	Play() error
	Pause() error
	SeekTo(positionMs int64) error
	// Position returns the current playback position in milliseconds.
	Position() int64
	// Duration returns the media duration in milliseconds, 0 if unknown.
	Duration() int64
	// Release frees the engine resource. Idempotent.
	Release()
}

// Factory produces a fresh engine per playback session. Two sessions
// never hold an engine concurrently; the session releases its engine
// before a new one is created.
type Factory func() Engine
