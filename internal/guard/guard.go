// Package guard is the admission and abuse-control layer: per-IP connection
// caps and limiters, per-connection event throttling, join-attempt bot
// detection, and a temporary blocklist.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
)

// Guard owns all abuse-control state.
type Guard struct {
	cfg    config.GuardConfig
	logger zerolog.Logger

	mu      sync.Mutex
	ipConns map[string]int
	blocked map[string]time.Time // key (identity or IP) -> expiry

	ipLimiters    *keyedLimiters
	eventLimiters *keyedLimiters
	batchLimiters *keyedLimiters

	identityJoins *attemptWindow
	ipJoins       *attemptWindow
}

// New creates a guard. Batch limiter settings come from the chat config since
// that bucket funds drain batches.
func New(cfg config.GuardConfig, chat config.ChatConfig, logger zerolog.Logger) *Guard {
	return &Guard{
		cfg:           cfg,
		logger:        logger,
		ipConns:       make(map[string]int),
		blocked:       make(map[string]time.Time),
		ipLimiters:    newKeyedLimiters(cfg.IPRate, cfg.IPBurst, cfg.CleanupEvery),
		eventLimiters: newKeyedLimiters(cfg.EventRate, cfg.EventBurst, cfg.CleanupEvery),
		batchLimiters: newKeyedLimiters(chat.LimiterRate, chat.LimiterBurst, cfg.CleanupEvery),
		identityJoins: newAttemptWindow(cfg.JoinWindow, cfg.JoinThreshold),
		ipJoins:       newAttemptWindow(cfg.JoinWindow, cfg.JoinThreshold),
	}
}

// Admit gates a new connection from ip. Order: block check, IP limiter token,
// concurrent connection cap. On success the connection is counted until
// Release.
func (g *Guard) Admit(ip string) error {
	if g.isBlocked(ip) {
		return domain.NewError(domain.CodeForbidden, "source address is temporarily blocked", nil)
	}

	if !g.ipLimiters.Allow(ip) {
		return domain.NewError(domain.CodeRateLimited, "too many connection attempts, retry shortly", map[string]any{
			"retry_after_seconds": 5,
		})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ipConns[ip] >= g.cfg.MaxConnsPerIP {
		return domain.NewError(domain.CodeRateLimited, "too many concurrent connections from this address", nil)
	}
	g.ipConns[ip]++
	return nil
}

// Release returns the connection slot for ip.
func (g *Guard) Release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ipConns[ip] > 1 {
		g.ipConns[ip]--
	} else {
		delete(g.ipConns, ip)
	}
}

// AllowEvent throttles non-trivial events per connection. Lightweight events
// (typing-stop, room list queries) must not be routed through here.
func (g *Guard) AllowEvent(connID string) error {
	if !g.eventLimiters.Allow(connID) {
		return domain.NewError(domain.CodeRateLimited, "event rate exceeded", nil)
	}
	return nil
}

// ReserveBatch consumes up to n tokens of the connection's drain budget and
// returns how many were granted. Exhaustion shrinks the batch, never drops it:
// the caller processes the granted prefix and requeues the rest.
func (g *Guard) ReserveBatch(connID string, n int) int {
	if n <= 0 {
		return 0
	}
	if g.batchLimiters.AllowN(connID, n) {
		return n
	}
	avail := g.batchLimiters.Tokens(connID)
	if avail <= 0 {
		return 0
	}
	if avail > n {
		avail = n
	}
	if g.batchLimiters.AllowN(connID, avail) {
		return avail
	}
	return 0
}

// RecordJoinAttempt feeds the bot detector with one join/create attempt and
// rejects when identity or IP is currently blocked or just crossed the
// hostile threshold.
func (g *Guard) RecordJoinAttempt(identity, ip string) error {
	if g.isBlocked(identity) || g.isBlocked(ip) {
		return domain.NewError(domain.CodeForbidden, "join attempts are temporarily blocked", nil)
	}

	now := time.Now()
	idCount := g.identityJoins.Record(identity, now)
	ipCount := g.ipJoins.Record(ip, now)

	if g.identityJoins.Hostile(idCount) || g.ipJoins.Hostile(ipCount) {
		g.block(identity, ip)
		g.logger.Warn().
			Str("identity", identity).
			Str("ip", ip).
			Int("identity_attempts", idCount).
			Int("ip_attempts", ipCount).
			Msg("bot pattern detected, blocking identity and address")
		return domain.NewError(domain.CodeForbidden, "join attempts are temporarily blocked", nil)
	}

	if g.identityJoins.Suspicious(idCount) || g.ipJoins.Suspicious(ipCount) {
		g.logger.Warn().
			Str("identity", identity).
			Str("ip", ip).
			Int("identity_attempts", idCount).
			Int("ip_attempts", ipCount).
			Msg("suspicious join rate")
	}
	return nil
}

// Blocked reports whether key (identity or IP) is currently blocked.
func (g *Guard) Blocked(key string) bool {
	return g.isBlocked(key)
}

// Run cleans up idle limiters, aged attempt windows, and expired blocks until
// ctx is done.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.ipLimiters.cleanup(now)
			g.eventLimiters.cleanup(now)
			g.batchLimiters.cleanup(now)
			g.identityJoins.cleanup(now)
			g.ipJoins.cleanup(now)
			g.expireBlocks(now)
		}
	}
}

// Forget drops per-connection limiter state on disconnect.
func (g *Guard) Forget(connID string) {
	g.eventLimiters.Remove(connID)
	g.batchLimiters.Remove(connID)
}

func (g *Guard) block(keys ...string) {
	expiry := time.Now().Add(g.cfg.BlockDuration)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			g.blocked[k] = expiry
		}
	}
}

func (g *Guard) isBlocked(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.blocked[key]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(g.blocked, key)
		return false
	}
	return true
}

func (g *Guard) expireBlocks(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, expiry := range g.blocked {
		if now.After(expiry) {
			delete(g.blocked, key)
		}
	}
}
