package subtitle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inf/reelbox/internal/store"
)

type scriptedPlayer struct {
	mu       sync.Mutex
	playing  bool
	position int64
}

func (p *scriptedPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *scriptedPlayer) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *scriptedPlayer) set(playing bool, position int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = playing
	p.position = position
}

type memoryLookup struct {
	mu   sync.Mutex
	subs []store.Subtitle
}

func (m *memoryLookup) SubtitleActiveAt(_ context.Context, videoID, atMs int64) (*store.Subtitle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *store.Subtitle
	for i := range m.subs {
		s := &m.subs[i]
		if s.VideoID != videoID || s.StartMs > atMs || s.EndMs < atMs {
			continue
		}
		if active == nil || s.StartMs > active.StartMs {
			active = s
		}
	}
	if active == nil {
		return nil, store.ErrNotFound
	}
	return active, nil
}

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, out)
		}
	}
	return out
}

func TestTrackerEmitsOnChangeOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := &scriptedPlayer{}
	lookup := &memoryLookup{subs: []store.Subtitle{
		{VideoID: 1, StartMs: 0, EndMs: 5000, Text: "A"},
		{VideoID: 1, StartMs: 3000, EndMs: 8000, Text: "B"},
	}}
	tr := NewTracker(player, lookup, zerolog.Nop(), WithInterval(5*time.Millisecond))
	defer tr.Close()

	tr.Start(1)
	player.set(true, 1000)

	evs := collect(t, tr.Events(), 1)
	require.True(t, evs[0].Show)
	require.Equal(t, "A", evs[0].Text)

	// Overlap region: later start wins.
	player.set(true, 4000)
	evs = collect(t, tr.Events(), 1)
	require.Equal(t, "B", evs[0].Text)

	// Past both lines: a single hide.
	player.set(true, 9000)
	evs = collect(t, tr.Events(), 1)
	require.False(t, evs[0].Show)

	// No further events while nothing changes.
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerIgnoresPausedPlayer(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := &scriptedPlayer{}
	lookup := &memoryLookup{subs: []store.Subtitle{{VideoID: 1, StartMs: 0, EndMs: 5000, Text: "A"}}}
	tr := NewTracker(player, lookup, zerolog.Nop(), WithInterval(5*time.Millisecond))
	defer tr.Close()

	tr.Start(1)
	player.set(false, 1000)

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event while paused: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerSetEnabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := &scriptedPlayer{}
	lookup := &memoryLookup{subs: []store.Subtitle{{VideoID: 1, StartMs: 0, EndMs: 10000, Text: "A"}}}
	tr := NewTracker(player, lookup, zerolog.Nop(), WithInterval(5*time.Millisecond))
	defer tr.Close()

	tr.Start(1)
	player.set(true, 1000)
	evs := collect(t, tr.Events(), 1)
	require.True(t, evs[0].Show)

	// Disabling forces an immediate hide, even mid-line.
	tr.SetEnabled(false)
	evs = collect(t, tr.Events(), 1)
	require.False(t, evs[0].Show)

	// Enabling re-evaluates immediately.
	tr.SetEnabled(true)
	evs = collect(t, tr.Events(), 1)
	require.True(t, evs[0].Show)
	require.Equal(t, "A", evs[0].Text)
}

func TestTrackerStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	player := &scriptedPlayer{}
	lookup := &memoryLookup{}
	tr := NewTracker(player, lookup, zerolog.Nop(), WithInterval(5*time.Millisecond))

	tr.Start(1)
	tr.Stop()
	tr.Stop()
	tr.Close()
}
