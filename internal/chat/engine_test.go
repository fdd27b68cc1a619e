package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/filter"
	"github.com/weiawesome/talkwire/internal/guard"
)

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		MaxTextLength:  200,
		DrainInterval:  5 * time.Millisecond,
		BatchCeiling:   25,
		LimiterRate:    10000,
		LimiterBurst:   10000,
		BreakerLimit:   3,
		BreakerCooloff: 50 * time.Millisecond,
	}
}

type broadcastRecorder struct {
	mu    sync.Mutex
	diffs []domain.Diff
}

func (r *broadcastRecorder) record(roomID, identity string, diff domain.Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, diff)
}

func (r *broadcastRecorder) last() (domain.Diff, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.diffs) == 0 {
		return domain.Diff{}, false
	}
	return r.diffs[len(r.diffs)-1], true
}

func (r *broadcastRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diffs)
}

func newTestEngine(t *testing.T, cfg config.ChatConfig) (*Engine, *broadcastRecorder) {
	t.Helper()

	f, err := filter.New(128, "")
	require.NoError(t, err)

	g := guard.New(config.GuardConfig{
		MaxConnsPerIP: 100,
		IPRate:        10000,
		IPBurst:       10000,
		EventRate:     10000,
		EventBurst:    10000,
		JoinWindow:    time.Minute,
		JoinThreshold: 1000,
		BlockDuration: time.Minute,
		CleanupEvery:  time.Minute,
	}, cfg, zerolog.Nop())

	rec := &broadcastRecorder{}
	engine := NewEngine(cfg,
		f,
		g,
		func(identity string) (string, bool) { return "room-1", true },
		rec.record,
		zerolog.Nop(),
	)
	return engine, rec
}

func TestEnqueueValidation(t *testing.T) {
	engine, _ := newTestEngine(t, testChatConfig())

	tests := []struct {
		name string
		diff domain.Diff
	}{
		{"unknown op", domain.Diff{Op: "swap"}},
		{"negative index", domain.Diff{Op: domain.DiffAdd, Index: -1, Text: "x"}},
		{"negative count", domain.Diff{Op: domain.DiffDelete, Index: 0, Count: -2}},
		{"oversized text", domain.Diff{Op: domain.DiffFullReplace, Text: string(make([]rune, 201))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Enqueue("alice", tt.diff)
			var derr *domain.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, domain.CodeValidation, derr.Code)
		})
	}
}

func TestEnqueueAndDrain(t *testing.T) {
	engine, rec := newTestEngine(t, testChatConfig())

	require.NoError(t, engine.Enqueue("alice", domain.Diff{Op: domain.DiffFullReplace, Text: "hello"}))

	assert.Eventually(t, func() bool {
		return engine.Buffer("alice") == "hello"
	}, time.Second, 2*time.Millisecond)

	diff, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, domain.DiffFullReplace, diff.Op)
	assert.Equal(t, "hello", diff.Text)
}

func TestBatchConsolidation(t *testing.T) {
	engine, rec := newTestEngine(t, testChatConfig())

	// Several diffs queued inside one drain window fold into the buffer in
	// order and broadcast as one full-replace.
	diffs := []domain.Diff{
		{Op: domain.DiffFullReplace, Text: "helo"},
		{Op: domain.DiffAdd, Index: 2, Text: "l"},
		{Op: domain.DiffAdd, Index: 5, Text: " there"},
		{Op: domain.DiffDelete, Index: 5, Count: 6},
		{Op: domain.DiffAdd, Index: 5, Text: " world"},
	}
	for _, d := range diffs {
		require.NoError(t, engine.Enqueue("alice", d))
	}

	assert.Eventually(t, func() bool {
		return engine.Buffer("alice") == "hello world"
	}, time.Second, 2*time.Millisecond)

	diff, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "hello world", diff.Text)
	assert.LessOrEqual(t, rec.count(), len(diffs))
}

func TestDrainFiltersProfanity(t *testing.T) {
	engine, rec := newTestEngine(t, testChatConfig())

	require.NoError(t, engine.Enqueue("alice", domain.Diff{Op: domain.DiffFullReplace, Text: "what the shit"}))

	assert.Eventually(t, func() bool {
		return engine.Buffer("alice") == "what the ****"
	}, time.Second, 2*time.Millisecond)

	diff, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "what the ****", diff.Text)
}

func TestBuffersPerIdentity(t *testing.T) {
	engine, _ := newTestEngine(t, testChatConfig())

	require.NoError(t, engine.Enqueue("alice", domain.Diff{Op: domain.DiffFullReplace, Text: "from alice"}))
	require.NoError(t, engine.Enqueue("bob", domain.Diff{Op: domain.DiffFullReplace, Text: "from bob"}))

	assert.Eventually(t, func() bool {
		return engine.Buffer("alice") == "from alice" && engine.Buffer("bob") == "from bob"
	}, time.Second, 2*time.Millisecond)

	buffers := engine.Buffers([]string{"alice", "bob", "carol"})
	assert.Equal(t, "from alice", buffers["alice"])
	assert.Equal(t, "from bob", buffers["bob"])
	assert.Equal(t, "", buffers["carol"])
}

func TestClear(t *testing.T) {
	engine, _ := newTestEngine(t, testChatConfig())

	require.NoError(t, engine.Enqueue("alice", domain.Diff{Op: domain.DiffFullReplace, Text: "something"}))
	assert.Eventually(t, func() bool {
		return engine.Buffer("alice") == "something"
	}, time.Second, 2*time.Millisecond)

	engine.Clear("alice")
	assert.Equal(t, "", engine.Buffer("alice"))
}

func TestApplyDiff(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		diff   domain.Diff
		want   string
	}{
		{"full replace", "old", domain.Diff{Op: domain.DiffFullReplace, Text: "new"}, "new"},
		{"add at start", "world", domain.Diff{Op: domain.DiffAdd, Index: 0, Text: "hello "}, "hello world"},
		{"add at end", "hello", domain.Diff{Op: domain.DiffAdd, Index: 5, Text: "!"}, "hello!"},
		{"add index clamped", "hi", domain.Diff{Op: domain.DiffAdd, Index: 99, Text: "!"}, "hi!"},
		{"delete middle", "hello", domain.Diff{Op: domain.DiffDelete, Index: 1, Count: 3}, "ho"},
		{"delete count clamped", "hello", domain.Diff{Op: domain.DiffDelete, Index: 3, Count: 99}, "hel"},
		{"delete index clamped", "hello", domain.Diff{Op: domain.DiffDelete, Index: 99, Count: 2}, "hello"},
		{"replace", "hello", domain.Diff{Op: domain.DiffReplace, Index: 0, Text: "J"}, "Jello"},
		{"replace past end", "hi", domain.Diff{Op: domain.DiffReplace, Index: 1, Text: "owdy"}, "howdy"},
		{"unicode aware", "héllo", domain.Diff{Op: domain.DiffDelete, Index: 1, Count: 1}, "hllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyDiff([]rune(tt.buffer), tt.diff, 100)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestApplyDiffEnforcesMaxLength(t *testing.T) {
	got := applyDiff(nil, domain.Diff{Op: domain.DiffFullReplace, Text: "abcdefgh"}, 5)
	assert.Equal(t, "abcde", string(got))

	got = applyDiff([]rune("abcde"), domain.Diff{Op: domain.DiffAdd, Index: 5, Text: "fgh"}, 5)
	assert.Equal(t, "abcde", string(got))
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	b := NewBreaker(2, 40*time.Millisecond)

	require.NoError(t, b.Allow())
	assert.False(t, b.Open())

	b.RecordFailure()
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.True(t, b.Open())

	err := b.Allow()
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeCircuitOpen, derr.Code)
	assert.Contains(t, derr.Details, "retry_after_seconds")

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, b.Allow())
	assert.False(t, b.Open())
}

func TestBreakerSuccessDecays(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.Open())

	b.RecordFailure()
	assert.True(t, b.Open())
}

func TestEngineRejectsWhileBreakerOpen(t *testing.T) {
	engine, _ := newTestEngine(t, testChatConfig())

	for i := 0; i < 3; i++ {
		engine.breaker.RecordFailure()
	}

	err := engine.Enqueue("alice", domain.Diff{Op: domain.DiffFullReplace, Text: "hi"})
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeCircuitOpen, derr.Code)
}
