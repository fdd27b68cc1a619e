package presence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/talkwire/internal/config"
)

func testPresenceConfig() config.PresenceConfig {
	return config.PresenceConfig{
		AFKTimeout:    120 * time.Millisecond,
		AFKWarning:    60 * time.Millisecond,
		TypingTimeout: 40 * time.Millisecond,
	}
}

type hookRecorder struct {
	warns chan string
	kicks chan string
	stops chan string
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{
		warns: make(chan string, 8),
		kicks: make(chan string, 8),
		stops: make(chan string, 8),
	}
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		OnWarn:       func(id string) { r.warns <- id },
		OnKick:       func(id string) { r.kicks <- id },
		OnTypingStop: func(id string) { r.stops <- id },
	}
}

func expectEvent(t *testing.T, ch <-chan string, want string, within time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(within):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNoEvent(t *testing.T, ch <-chan string, within time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected event for %q", got)
	case <-time.After(within):
	}
}

func TestAFKWarnThenKick(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Watch("alice")

	// The warning leads the kick by the configured margin.
	expectEvent(t, rec.warns, "alice", time.Second)
	expectEvent(t, rec.kicks, "alice", time.Second)
}

func TestTouchRearmsTimers(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Watch("alice")

	// Keep touching for longer than the AFK timeout: no kick fires.
	for i := 0; i < 8; i++ {
		time.Sleep(30 * time.Millisecond)
		m.Touch("alice")
	}
	expectNoEvent(t, rec.kicks, 20*time.Millisecond)

	// Stop touching: the kick arrives.
	expectEvent(t, rec.kicks, "alice", time.Second)
}

func TestTouchIgnoresUnwatched(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Touch("ghost")
	expectNoEvent(t, rec.kicks, 200*time.Millisecond)
}

func TestUnwatchCancels(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Watch("alice")
	m.Unwatch("alice")

	expectNoEvent(t, rec.kicks, 200*time.Millisecond)
}

func TestTypingAutoStop(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Typing("alice", true)
	expectEvent(t, rec.stops, "alice", time.Second)
}

func TestTypingExplicitStopDisarms(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Typing("alice", true)
	m.Typing("alice", false)
	expectNoEvent(t, rec.stops, 150*time.Millisecond)
}

func TestTypingRestartRearms(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Typing("alice", true)
	time.Sleep(25 * time.Millisecond)
	m.Typing("alice", true)

	// The rearm pushed the stop out past the original deadline.
	expectNoEvent(t, rec.stops, 25*time.Millisecond)
	expectEvent(t, rec.stops, "alice", time.Second)
}

func TestWatchTwoIdentitiesIndependently(t *testing.T) {
	rec := newHookRecorder()
	m := NewMonitor(testPresenceConfig(), rec.hooks(), zerolog.Nop())

	m.Watch("alice")
	m.Watch("bob")
	m.Unwatch("bob")

	expectEvent(t, rec.kicks, "alice", time.Second)
	expectNoEvent(t, rec.kicks, 100*time.Millisecond)

	require.NotPanics(t, func() { m.Unwatch("alice") })
}
