// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/models"
)

var ErrUnknownKey = errors.New("unknown setting")

type Options struct {
	SiteName   string
	AdminEmail string
	// CacheTTL of zero disables snapshot caching
	CacheTTL time.Duration
}

// Store reads and writes settings through the option table.
// Snapshots are cached per write generation: every successful write bumps the
// generation, so the next read never sees a pre-write snapshot.
type Store struct {
	options  *models.OptionStore
	cache    *ristretto.Cache
	cacheTTL time.Duration
	siteName string
	defaults map[string]any

	generation atomic.Uint64

	mu       sync.RWMutex
	lastGood *Snapshot
}

func NewStore(options *models.OptionStore, opts Options) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create settings cache: %w", err)
	}

	defaults := make(map[string]any, len(Schema))
	for _, f := range Schema {
		defaults[f.Key] = f.defaultValue()
	}
	if email, ok := SanitizeEmail(opts.AdminEmail); ok {
		defaults[KeyContactEmail] = email
	}

	return &Store{
		options:  options,
		cache:    cache,
		cacheTTL: opts.CacheTTL,
		siteName: opts.SiteName,
		defaults: defaults,
	}, nil
}

func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) defaultFor(f Field) any {
	if set, ok := s.defaults[f.Key].([]string); ok {
		return slices.Clone(set)
	}
	return s.defaults[f.Key]
}

// Get returns the typed value of key with the default filled in
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	f, ok := Lookup(key)
	if !ok {
		return nil, errors.Wrap(ErrUnknownKey, key)
	}

	raw, err := s.options.GetRaw(ctx, models.OptionPrefix+key)
	if errors.Is(err, models.ErrOptionNotFound) {
		return s.defaultFor(f), nil
	}
	if err != nil {
		return nil, err
	}

	return s.decode(f, raw), nil
}

// Set coerces value for key and stores it
func (s *Store) Set(ctx context.Context, key string, value any) error {
	return s.SetMany(ctx, map[string]any{key: value})
}

// SetMany validates every value first and writes all of them or none
func (s *Store) SetMany(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	coerced := make(map[string]any, len(values))
	for _, key := range keys {
		f, ok := Lookup(key)
		if !ok {
			return &ValidationError{Key: key, Reason: "unknown setting"}
		}
		v, err := f.Coerce(values[key])
		if err != nil {
			return err
		}
		coerced[models.OptionPrefix+key] = v
	}

	if err := s.options.SetMany(ctx, coerced); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.Invalidate()
	log.Debug().Strs("keys", keys).Msg("Settings updated")

	return nil
}

// ApplyNamespaced applies ezmp_<key> entries. Names outside the namespace or
// unknown to the schema are ignored. Returns the applied keys, sorted.
func (s *Store) ApplyNamespaced(ctx context.Context, values map[string]any) ([]string, error) {
	filtered := make(map[string]any)
	for name, value := range values {
		key, ok := strings.CutPrefix(name, models.OptionPrefix)
		if !ok {
			continue
		}
		if _, known := Lookup(key); !known {
			continue
		}
		filtered[key] = value
	}

	if err := s.SetMany(ctx, filtered); err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(filtered))
	for key := range filtered {
		applied = append(applied, models.OptionPrefix+key)
	}
	sort.Strings(applied)

	return applied, nil
}

// Snapshot returns every setting. A read error is returned as-is; callers
// that must keep serving can fall back to LastGood.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	gen := s.generation.Load()

	if s.cacheTTL > 0 {
		if cached, found := s.cache.Get(gen); found {
			return cached.(Snapshot).Clone(), nil
		}
	}

	values, err := s.options.List(ctx, models.OptionPrefix)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load settings: %w", err)
	}

	snap := snapshotFrom(func(f Field) any {
		raw, ok := values[models.OptionPrefix+f.Key]
		if !ok {
			return s.defaultFor(f)
		}
		return s.decode(f, raw)
	})
	snap.SiteName = s.siteName

	if s.cacheTTL > 0 {
		s.cache.SetWithTTL(gen, snap.Clone(), 1, s.cacheTTL)
	}

	s.mu.Lock()
	last := snap.Clone()
	s.lastGood = &last
	s.mu.Unlock()

	return snap, nil
}

// LastGood returns the most recent snapshot that loaded successfully
func (s *Store) LastGood() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastGood == nil {
		return Snapshot{}, false
	}
	return s.lastGood.Clone(), true
}

// Seed adds defaults for keys that are not stored yet
func (s *Store) Seed(ctx context.Context) error {
	for _, f := range Schema {
		if _, err := s.options.Add(ctx, models.OptionPrefix+f.Key, s.defaultFor(f)); err != nil {
			return fmt.Errorf("failed to seed %s: %w", f.Key, err)
		}
	}

	s.Invalidate()
	return nil
}

// Reset deletes every ezmp_ option, including the license record and the API
// key, then seeds the defaults again.
func (s *Store) Reset(ctx context.Context) error {
	deleted, err := s.options.DeletePrefix(ctx, models.OptionPrefix)
	if err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}

	log.Info().Int64("deleted", deleted).Msg("Settings reset to defaults")

	return s.Seed(ctx)
}

// Invalidate drops cached snapshots
func (s *Store) Invalidate() {
	s.generation.Add(1)
}

// decode re-coerces the stored value so a hand-edited row cannot break the type
func (s *Store) decode(f Field, raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Str("key", f.Key).Msg("Stored setting is not valid JSON, using default")
		return s.defaultFor(f)
	}

	coerced, err := f.Coerce(v)
	if err != nil {
		log.Warn().Str("key", f.Key).Err(err).Msg("Stored setting is invalid, using default")
		return s.defaultFor(f)
	}

	return coerced
}
