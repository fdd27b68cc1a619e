package chat

import (
	"sync"
	"time"

	"github.com/weiawesome/talkwire/internal/domain"
)

// Breaker is the engine's self-protection: repeated pipeline failures open
// it, synchronously rejecting chat updates until the cooldown elapses.
// Expected domain errors never reach it.
type Breaker struct {
	mu        sync.Mutex
	failures  int
	limit     int
	cooloff   time.Duration
	openUntil time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(limit int, cooloff time.Duration) *Breaker {
	return &Breaker{limit: limit, cooloff: cooloff}
}

// Allow returns a retryable CIRCUIT_OPEN error while the breaker is open.
// An elapsed cooldown closes it and resets the counter.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return nil
	}
	if time.Now().Before(b.openUntil) {
		retry := int(time.Until(b.openUntil).Seconds()) + 1
		return domain.NewError(domain.CodeCircuitOpen, "chat processing temporarily unavailable", map[string]any{
			"retry_after_seconds": retry,
		})
	}
	b.openUntil = time.Time{}
	b.failures = 0
	return nil
}

// RecordFailure counts one pipeline failure; crossing the limit opens the
// breaker for the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.limit && b.openUntil.IsZero() {
		b.openUntil = time.Now().Add(b.cooloff)
	}
}

// RecordSuccess decays the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
	}
}

// Open reports whether the breaker currently rejects work.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && time.Now().Before(b.openUntil)
}
