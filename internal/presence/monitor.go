// Package presence tracks liveness of room-resident identities: AFK timers
// with a pre-timeout warning, and short-lived typing indicators.
package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/config"
)

// Hooks are the monitor's outbound effects, injected by the service layer.
type Hooks struct {
	OnWarn       func(identity string)
	OnKick       func(identity string)
	OnTypingStop func(identity string)
}

// Monitor owns all AFK and typing timers.
type Monitor struct {
	cfg    config.PresenceConfig
	logger zerolog.Logger
	hooks  Hooks

	mu     sync.Mutex
	afk    map[string]*afkState
	typing map[string]*time.Timer
}

type afkState struct {
	warnTimer *time.Timer
	kickTimer *time.Timer
}

// NewMonitor creates a monitor with the given effect hooks.
func NewMonitor(cfg config.PresenceConfig, hooks Hooks, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
		afk:    make(map[string]*afkState),
		typing: make(map[string]*time.Timer),
	}
}

// Watch arms the AFK timers for a freshly room-resident identity.
func (m *Monitor) Watch(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked(identity)
}

// Touch rearms the AFK timers on any inbound activity. Identities that are
// not being watched are ignored.
func (m *Monitor) Touch(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.afk[identity]; ok {
		m.armLocked(identity)
	}
}

// Unwatch cancels all timers for the identity. Called on leave, kick, and
// disconnect.
func (m *Monitor) Unwatch(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.afk[identity]; ok {
		st.warnTimer.Stop()
		st.kickTimer.Stop()
		delete(m.afk, identity)
	}
	if t, ok := m.typing[identity]; ok {
		t.Stop()
		delete(m.typing, identity)
	}
}

// Typing handles a typing signal. A start arms (or rearms) the stop timer
// that auto-broadcasts "stopped" when no further signal arrives within the
// typing window; an explicit stop disarms it.
func (m *Monitor) Typing(identity string, isTyping bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.typing[identity]; ok {
		t.Stop()
		delete(m.typing, identity)
	}

	if isTyping {
		m.typing[identity] = time.AfterFunc(m.cfg.TypingTimeout, func() {
			m.mu.Lock()
			delete(m.typing, identity)
			m.mu.Unlock()
			m.hooks.OnTypingStop(identity)
		})
	}
}

func (m *Monitor) armLocked(identity string) {
	if st, ok := m.afk[identity]; ok {
		st.warnTimer.Stop()
		st.kickTimer.Stop()
	}

	warnAfter := m.cfg.AFKTimeout - m.cfg.AFKWarning
	if warnAfter < 0 {
		warnAfter = 0
	}

	m.afk[identity] = &afkState{
		warnTimer: time.AfterFunc(warnAfter, func() {
			m.hooks.OnWarn(identity)
		}),
		kickTimer: time.AfterFunc(m.cfg.AFKTimeout, func() {
			m.mu.Lock()
			_, watched := m.afk[identity]
			delete(m.afk, identity)
			m.mu.Unlock()
			if watched {
				m.logger.Info().Str("identity", identity).Msg("afk timeout, forcing leave")
				m.hooks.OnKick(identity)
			}
		}),
	}
}
