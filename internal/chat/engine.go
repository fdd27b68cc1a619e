// Package chat is the synchronization engine: one text buffer per identity,
// mutated only by that identity's diffs in arrival order, batched through a
// timer-drained pending queue so N edits become O(1) broadcasts per tick.
package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/filter"
	"github.com/weiawesome/talkwire/internal/guard"
)

// Locator resolves the room an identity currently occupies.
type Locator func(identity string) (roomID string, ok bool)

// Broadcaster delivers a consolidated update to the identity's room.
type Broadcaster func(roomID, identity string, diff domain.Diff)

// Engine owns all per-identity buffers and pending queues.
type Engine struct {
	cfg     config.ChatConfig
	logger  zerolog.Logger
	filter  *filter.Filter
	guard   *guard.Guard
	breaker *Breaker

	locate    Locator
	broadcast Broadcaster

	mu     sync.Mutex
	states map[string]*identityState
}

// identityState is one identity's buffer plus its pending queue. Enqueue and
// drain share the mutex so a drain never races a concurrent enqueue.
type identityState struct {
	mu        sync.Mutex
	buffer    []rune
	queue     []domain.Diff
	timer     *time.Timer
	scheduled bool
}

// NewEngine creates the engine. locate and broadcast are injected so the
// engine stays ignorant of registry and hub internals.
func NewEngine(cfg config.ChatConfig, f *filter.Filter, g *guard.Guard, locate Locator, broadcast Broadcaster, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		filter:    f,
		guard:     g,
		breaker:   NewBreaker(cfg.BreakerLimit, cfg.BreakerCooloff),
		locate:    locate,
		broadcast: broadcast,
		states:    make(map[string]*identityState),
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (e *Engine) Breaker() *Breaker {
	return e.breaker
}

// Enqueue validates the diff synchronously and queues it for the next drain.
// Malformed diffs and an open breaker reject here; nothing invalid is ever
// queued.
func (e *Engine) Enqueue(identity string, diff domain.Diff) error {
	if err := diff.Validate(e.cfg.MaxTextLength); err != nil {
		return err
	}
	if err := e.breaker.Allow(); err != nil {
		return err
	}

	st := e.state(identity)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.queue = append(st.queue, diff)
	if !st.scheduled {
		st.scheduled = true
		st.timer = time.AfterFunc(e.cfg.DrainInterval, func() { e.drain(identity) })
	}
	return nil
}

// Buffer returns the identity's current text.
func (e *Engine) Buffer(identity string) string {
	st := e.state(identity)
	st.mu.Lock()
	defer st.mu.Unlock()
	return string(st.buffer)
}

// Buffers returns the current text of each given identity, keyed by identity.
func (e *Engine) Buffers(identities []string) map[string]string {
	out := make(map[string]string, len(identities))
	for _, id := range identities {
		out[id] = e.Buffer(id)
	}
	return out
}

// Clear discards the identity's buffer, queue, and pending drain. Called on
// room leave and disconnect.
func (e *Engine) Clear(identity string) {
	e.mu.Lock()
	st, ok := e.states[identity]
	if ok {
		delete(e.states, identity)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	if st.timer != nil {
		st.timer.Stop()
	}
	st.buffer = nil
	st.queue = nil
	st.scheduled = false
	st.mu.Unlock()
}

func (e *Engine) state(identity string) *identityState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[identity]
	if !ok {
		st = &identityState{}
		e.states[identity] = st
	}
	return st
}

// drain consumes up to the batch ceiling from the queue, folds the consumed
// diffs into the buffer, filters, and broadcasts one consolidated
// full-replace. The fired timer is cleared before any rescheduling, so drains
// for one identity never overlap.
func (e *Engine) drain(identity string) {
	st := e.state(identity)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.scheduled = false
	st.timer = nil

	if len(st.queue) == 0 {
		return
	}

	batch := len(st.queue)
	if batch > e.cfg.BatchCeiling {
		batch = e.cfg.BatchCeiling
	}

	// Limiter budget scales with batch size; exhaustion shrinks the batch,
	// never drops it. Whatever stays queued is picked up next tick.
	granted := e.guard.ReserveBatch(identity, batch)
	if granted < batch {
		e.logger.Warn().
			Str("identity", identity).
			Int("requested", batch).
			Int("granted", granted).
			Msg("drain budget exhausted, shrinking batch")
	}

	if granted > 0 {
		consumed := st.queue[:granted]
		st.queue = append([]domain.Diff(nil), st.queue[granted:]...)

		if err := e.process(identity, st, consumed); err != nil {
			e.breaker.RecordFailure()
			e.logger.Error().Err(err).Str("identity", identity).Msg("drain failed")
		} else {
			e.breaker.RecordSuccess()
		}
	}

	if len(st.queue) > 0 {
		st.scheduled = true
		st.timer = time.AfterFunc(e.cfg.DrainInterval, func() { e.drain(identity) })
	}
}

// process folds the batch, runs the word filter, and broadcasts. Panics in
// the pipeline convert to errors so they reach the breaker instead of
// crashing the timer goroutine.
func (e *Engine) process(identity string, st *identityState, batch []domain.Diff) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat pipeline panic: %v", r)
		}
	}()

	for _, d := range batch {
		st.buffer = applyDiff(st.buffer, d, e.cfg.MaxTextLength)
	}

	text := string(st.buffer)
	if res := e.filter.CheckText(text); res.HasOffensiveWord {
		text = e.filter.FilterText(text)
		st.buffer = []rune(text)
	}

	roomID, ok := e.locate(identity)
	if !ok {
		// Left the room between enqueue and drain; nothing to broadcast.
		return nil
	}

	e.broadcast(roomID, identity, domain.Diff{Op: domain.DiffFullReplace, Text: text})
	return nil
}

// applyDiff applies one edit. Indices and lengths are clamped so a stale or
// malicious client can never corrupt the buffer or exceed the length cap.
func applyDiff(buffer []rune, d domain.Diff, maxLen int) []rune {
	switch d.Op {
	case domain.DiffFullReplace:
		return truncate([]rune(d.Text), maxLen)

	case domain.DiffAdd:
		idx := clamp(d.Index, 0, len(buffer))
		text := []rune(d.Text)
		out := make([]rune, 0, len(buffer)+len(text))
		out = append(out, buffer[:idx]...)
		out = append(out, text...)
		out = append(out, buffer[idx:]...)
		return truncate(out, maxLen)

	case domain.DiffDelete:
		idx := clamp(d.Index, 0, len(buffer))
		count := clamp(d.Count, 0, len(buffer)-idx)
		return append(buffer[:idx], buffer[idx+count:]...)

	case domain.DiffReplace:
		idx := clamp(d.Index, 0, len(buffer))
		text := []rune(d.Text)
		removed := len(text)
		if rem := len(buffer) - idx; removed > rem {
			removed = rem
		}
		out := make([]rune, 0, len(buffer)-removed+len(text))
		out = append(out, buffer[:idx]...)
		out = append(out, text...)
		out = append(out, buffer[idx+removed:]...)
		return truncate(out, maxLen)

	default:
		// Unknown ops are rejected at Enqueue; reaching here is a bug.
		return buffer
	}
}

func truncate(runes []rune, max int) []rune {
	if len(runes) > max {
		return runes[:max]
	}
	return runes
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
