package guard

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
)

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{
		MaxConnsPerIP: 2,
		IPRate:        10000,
		IPBurst:       10000,
		EventRate:     0.001,
		EventBurst:    3,
		JoinWindow:    time.Minute,
		JoinThreshold: 2,
		BlockDuration: 50 * time.Millisecond,
		CleanupEvery:  time.Minute,
	}
}

func testBatchConfig() config.ChatConfig {
	return config.ChatConfig{
		LimiterRate:  0.001,
		LimiterBurst: 10,
	}
}

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	return New(testGuardConfig(), testBatchConfig(), zerolog.Nop())
}

func TestAdmitConnectionCap(t *testing.T) {
	g := newTestGuard(t)

	require.NoError(t, g.Admit("10.0.0.1"))
	require.NoError(t, g.Admit("10.0.0.1"))

	err := g.Admit("10.0.0.1")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeRateLimited, derr.Code)

	// Other addresses are unaffected.
	assert.NoError(t, g.Admit("10.0.0.2"))

	// Releasing a slot re-opens admission.
	g.Release("10.0.0.1")
	assert.NoError(t, g.Admit("10.0.0.1"))
}

func TestAdmitRateLimit(t *testing.T) {
	cfg := testGuardConfig()
	cfg.IPRate = 0.001
	cfg.IPBurst = 2
	cfg.MaxConnsPerIP = 100
	g := New(cfg, testBatchConfig(), zerolog.Nop())

	require.NoError(t, g.Admit("10.0.0.1"))
	require.NoError(t, g.Admit("10.0.0.1"))

	err := g.Admit("10.0.0.1")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeRateLimited, derr.Code)
	assert.Contains(t, derr.Details, "retry_after_seconds")
}

func TestAllowEvent(t *testing.T) {
	g := newTestGuard(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, g.AllowEvent("conn-1"))
	}

	err := g.AllowEvent("conn-1")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeRateLimited, derr.Code)

	// Per-connection buckets are independent.
	assert.NoError(t, g.AllowEvent("conn-2"))
}

func TestReserveBatchShrinks(t *testing.T) {
	g := newTestGuard(t)

	// Full grant while the budget holds.
	assert.Equal(t, 4, g.ReserveBatch("conn-1", 4))

	// Asking past the remaining budget grants the remainder, not zero.
	granted := g.ReserveBatch("conn-1", 10)
	assert.Equal(t, 6, granted)

	// Exhausted budget grants nothing.
	assert.Equal(t, 0, g.ReserveBatch("conn-1", 5))
	assert.Equal(t, 0, g.ReserveBatch("conn-1", 0))
}

func TestForgetResetsBudgets(t *testing.T) {
	g := newTestGuard(t)

	assert.Equal(t, 10, g.ReserveBatch("conn-1", 10))
	assert.Equal(t, 0, g.ReserveBatch("conn-1", 1))

	g.Forget("conn-1")
	assert.Equal(t, 10, g.ReserveBatch("conn-1", 10))
}

func TestBotDetectionBlocks(t *testing.T) {
	g := newTestGuard(t)

	// Threshold 2: counts of 5 and above cross the hostile bar (2x).
	var err error
	for i := 0; i < 5; i++ {
		err = g.RecordJoinAttempt("alice", "10.0.0.9")
	}

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeForbidden, derr.Code)

	assert.True(t, g.Blocked("alice"))
	assert.True(t, g.Blocked("10.0.0.9"))

	// Blocked identity cannot retry and the address cannot reconnect.
	require.ErrorAs(t, g.RecordJoinAttempt("alice", "10.0.0.9"), &derr)
	assert.Equal(t, domain.CodeForbidden, derr.Code)
	require.ErrorAs(t, g.Admit("10.0.0.9"), &derr)
	assert.Equal(t, domain.CodeForbidden, derr.Code)

	// Blocks expire on their own.
	assert.Eventually(t, func() bool {
		return !g.Blocked("alice") && !g.Blocked("10.0.0.9")
	}, time.Second, 10*time.Millisecond)
}

func TestJoinAttemptsBelowThresholdPass(t *testing.T) {
	g := newTestGuard(t)

	for i := 0; i < 4; i++ {
		assert.NoError(t, g.RecordJoinAttempt(fmt.Sprintf("user-%d", i%2), "10.0.0.7"))
	}
	assert.False(t, g.Blocked("10.0.0.7"))
}

func TestAttemptWindowSlides(t *testing.T) {
	w := newAttemptWindow(30*time.Millisecond, 2)

	now := time.Now()
	assert.Equal(t, 1, w.Record("k", now))
	assert.Equal(t, 2, w.Record("k", now))
	assert.Equal(t, 3, w.Record("k", now))

	// Old attempts age out of the window.
	later := now.Add(50 * time.Millisecond)
	assert.Equal(t, 1, w.Record("k", later))

	assert.False(t, w.Suspicious(2))
	assert.True(t, w.Suspicious(3))
	assert.False(t, w.Hostile(4))
	assert.True(t, w.Hostile(5))
}

func TestKeyedLimitersCleanup(t *testing.T) {
	k := newKeyedLimiters(1, 1, 10*time.Millisecond)

	k.Allow("a")
	k.Allow("b")
	require.Len(t, k.limiters, 2)

	k.cleanup(time.Now().Add(time.Second))
	assert.Empty(t, k.limiters)
}
