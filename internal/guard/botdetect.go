package guard

import (
	"sync"
	"time"
)

// attemptWindow is a sliding window of timestamps, one per join/create
// attempt. Exceeding the threshold marks the key suspicious; exceeding twice
// the threshold is treated as bot traffic.
type attemptWindow struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	window    time.Duration
	threshold int
}

func newAttemptWindow(window time.Duration, threshold int) *attemptWindow {
	return &attemptWindow{
		attempts:  make(map[string][]time.Time),
		window:    window,
		threshold: threshold,
	}
}

// Record adds an attempt for key and returns the count inside the window.
func (w *attemptWindow) Record(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	kept := w.attempts[key][:0]
	for _, t := range w.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.attempts[key] = kept
	return len(kept)
}

// Suspicious reports whether the count crosses the threshold.
func (w *attemptWindow) Suspicious(count int) bool {
	return count > w.threshold
}

// Hostile reports whether the count crosses twice the threshold.
func (w *attemptWindow) Hostile(count int) bool {
	return count > 2*w.threshold
}

// cleanup drops keys whose every attempt has aged out.
func (w *attemptWindow) cleanup(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	for key, ts := range w.attempts {
		alive := false
		for _, t := range ts {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(w.attempts, key)
		}
	}
}
