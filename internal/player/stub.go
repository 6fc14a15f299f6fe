package player

import (
	"errors"
	"sync"

	"github.com/inf/reelbox/internal/source"
)

// StubEngine is an in-process Engine used by tests and by daemons
// running without a real decode engine. Preparation, completion and
// errors are driven manually (or automatically with AutoPrepare).
type StubEngine struct {
	mu sync.Mutex

	src      source.PlayableSource
	cb       Callbacks
	prepared bool
	playing  bool
	released bool

	position int64
	duration int64

	// AutoPrepare completes preparation on its own goroutine as soon as
	// Prepare is called.
	AutoPrepare bool
	// Durations maps locators to durations reported on prepare.
	Durations map[string]int64
	// DefaultDuration is reported when Durations has no entry.
	DefaultDuration int64

	seeks []int64
}

// NewStubEngine returns an engine that must be driven manually.
func NewStubEngine() *StubEngine {
	return &StubEngine{DefaultDuration: 60000}
}

func (e *StubEngine) SetCallbacks(cb Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cb = cb
}

func (e *StubEngine) SetSource(src source.PlayableSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("stub engine: released")
	}
	e.src = src
	return nil
}

func (e *StubEngine) Prepare() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return errors.New("stub engine: released")
	}
	auto := e.AutoPrepare
	e.mu.Unlock()

	if auto {
		go e.CompletePrepare()
	}
	return nil
}

// CompletePrepare finishes preparation and fires OnPrepared.
func (e *StubEngine) CompletePrepare() {
	e.mu.Lock()
	if e.released || e.prepared {
		e.mu.Unlock()
		return
	}
	e.prepared = true
	d, ok := e.Durations[e.src.Locator]
	if !ok {
		d = e.DefaultDuration
	}
	e.duration = d
	cb := e.cb.OnPrepared
	e.mu.Unlock()

	if cb != nil {
		cb(d)
	}
}

// FailWith fires OnError with the given kind.
func (e *StubEngine) FailWith(kind Kind, err error) {
	e.mu.Lock()
	cb := e.cb.OnError
	e.mu.Unlock()
	if cb != nil {
		cb(kind, err)
	}
}

// FinishPlayback simulates natural completion.
func (e *StubEngine) FinishPlayback() {
	e.mu.Lock()
	e.playing = false
	e.position = e.duration
	cb := e.cb.OnCompletion
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// AdvanceTo moves the playhead, as if time passed.
func (e *StubEngine) AdvanceTo(positionMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = positionMs
}

func (e *StubEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released || !e.prepared {
		return errors.New("stub engine: not prepared")
	}
	e.playing = true
	return nil
}

func (e *StubEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("stub engine: released")
	}
	e.playing = false
	return nil
}

func (e *StubEngine) SeekTo(positionMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("stub engine: released")
	}
	e.position = positionMs
	e.seeks = append(e.seeks, positionMs)
	return nil
}

func (e *StubEngine) Position() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *StubEngine) Duration() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *StubEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	e.playing = false
}

// Seeks returns every seek issued, in order.
func (e *StubEngine) Seeks() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int64, len(e.seeks))
	copy(out, e.seeks)
	return out
}

// Playing reports whether the engine is currently playing.
func (e *StubEngine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Released reports whether Release has been called.
func (e *StubEngine) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}
