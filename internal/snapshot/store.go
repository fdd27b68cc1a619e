// Package snapshot persists the registry across restarts: debounced,
// atomically written JSON. Live buffers and timers never serialize.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/registry"
)

// Store coalesces snapshot writes to at most one per interval.
type Store struct {
	cfg    config.SnapshotConfig
	logger zerolog.Logger
	source func() registry.Export
	dirty  atomic.Bool
}

// New creates a store reading state through source.
func New(cfg config.SnapshotConfig, logger zerolog.Logger, source func() registry.Export) *Store {
	return &Store{cfg: cfg, logger: logger, source: source}
}

// MarkDirty requests a write on the next tick. Cheap; called on every
// registry mutation.
func (s *Store) MarkDirty() {
	s.dirty.Store(true)
}

// Run writes pending snapshots until ctx is done, then flushes once.
func (s *Store) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.dirty.Swap(false) {
				if err := s.write(); err != nil {
					s.logger.Error().Err(err).Msg("final snapshot write failed")
				}
			}
			return
		case <-ticker.C:
			if s.dirty.Swap(false) {
				if err := s.write(); err != nil {
					s.logger.Error().Err(err).Msg("snapshot write failed")
					s.dirty.Store(true)
				}
			}
		}
	}
}

// Flush forces an immediate write regardless of the debounce.
func (s *Store) Flush() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.dirty.Store(false)
	return s.write()
}

// Load reads the snapshot from disk. The second return is false when no
// snapshot exists yet.
func (s *Store) Load() (registry.Export, bool, error) {
	var exp registry.Export
	if !s.cfg.Enabled {
		return exp, false, nil
	}

	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exp, false, nil
		}
		return exp, false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &exp); err != nil {
		return exp, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return exp, true, nil
}

// write marshals current state to a temp file and renames it over the target
// so readers never observe a partial snapshot.
func (s *Store) write() error {
	exp := s.source()

	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "rooms-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.cfg.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.logger.Debug().Str("path", s.cfg.Path).Int("rooms", len(exp.Rooms)).Msg("snapshot written")
	return nil
}
