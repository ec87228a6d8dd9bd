// Package ratelimit keeps per-model rate-limit blocks derived from 429 responses.
//
// The store is reactive: it never counts requests locally, it only remembers
// the retry delay the backend reported and answers availability questions
// against an injected clock.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

const keyPrefix = "ratelimit:"

// maxDelayMillis caps a block at one year so absurd retry delays cannot overflow the expiry.
const maxDelayMillis = int64(365 * 24 * time.Hour / time.Millisecond)

// Hit carries the details of a single observed 429.
type Hit struct {
	RetryDelaySeconds float64
	QuotaMetric       string
	QuotaID           string
	QuotaDimensions   map[string]string
	ErrorMessage      string
}

// Store maps model identifiers to rate-limit blocks over a key-value store.
type Store struct {
	kv     ports.KeyValueStore
	now    func() time.Time
	logger *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore wraps kv.
func NewStore(kv ports.KeyValueStore, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func delayMillis(seconds float64) int64 {
	ms := math.Round(seconds * 1000)
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= float64(maxDelayMillis):
		return maxDelayMillis
	}
	return int64(ms)
}

// RecordHit overwrites the block for model with one expiring after the retry delay.
func (s *Store) RecordHit(ctx context.Context, model string, hit Hit) (domain.RateLimitBlock, error) {
	now := s.now()
	block := domain.RateLimitBlock{
		Model:             model,
		BlockedUntil:      now.UnixMilli() + delayMillis(hit.RetryDelaySeconds),
		RetryDelaySeconds: hit.RetryDelaySeconds,
		QuotaMetric:       hit.QuotaMetric,
		QuotaID:           hit.QuotaID,
		QuotaDimensions:   hit.QuotaDimensions,
		ErrorMessage:      hit.ErrorMessage,
		RecordedAt:        now.UnixMilli(),
	}

	raw, err := json.Marshal(block)
	if err != nil {
		return domain.RateLimitBlock{}, &domain.StorageError{Op: "encode", Key: key(model), Err: err}
	}
	if err := s.kv.Set(ctx, key(model), raw); err != nil {
		return domain.RateLimitBlock{}, &domain.StorageError{Op: "set", Key: key(model), Err: err}
	}

	s.info("rate limit recorded", "model", model, "retry_delay_s", hit.RetryDelaySeconds, "quota_id", hit.QuotaID)
	return block, nil
}

// IsAvailable reports whether model has no active block, clearing an expired one.
func (s *Store) IsAvailable(ctx context.Context, model string) (bool, error) {
	block, err := s.GetBlock(ctx, model)
	if err != nil {
		return false, err
	}
	return block == nil, nil
}

// RemainingSeconds is the whole number of seconds until model becomes usable.
func (s *Store) RemainingSeconds(ctx context.Context, model string) (int, error) {
	block, err := s.GetBlock(ctx, model)
	if err != nil || block == nil {
		return 0, err
	}
	return s.remaining(*block), nil
}

// GetBlock returns the active block for model or nil. Expired and corrupt
// entries are removed as a side effect.
func (s *Store) GetBlock(ctx context.Context, model string) (*domain.RateLimitBlock, error) {
	block, stale, err := s.load(ctx, model)
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.Clear(ctx, model); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return block, nil
}

// Peek is GetBlock without the lazy clear.
func (s *Store) Peek(ctx context.Context, model string) (*domain.RateLimitBlock, error) {
	block, stale, err := s.load(ctx, model)
	if err != nil || stale {
		return nil, err
	}
	return block, nil
}

// Remaining computes the seconds left on block against the store clock.
func (s *Store) Remaining(block domain.RateLimitBlock) int {
	return s.remaining(block)
}

// Clear removes the block for model. Missing entries are not an error.
func (s *Store) Clear(ctx context.Context, model string) error {
	if err := s.kv.Remove(ctx, key(model)); err != nil {
		return &domain.StorageError{Op: "remove", Key: key(model), Err: err}
	}
	return nil
}

// ClearAll removes every stored block.
func (s *Store) ClearAll(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return &domain.StorageError{Op: "list", Key: keyPrefix, Err: err}
	}
	for _, k := range keys {
		if err := s.kv.Remove(ctx, k); err != nil {
			return &domain.StorageError{Op: "remove", Key: k, Err: err}
		}
	}
	s.info("rate limits cleared", "count", len(keys))
	return nil
}

// Models lists every model that currently has a stored entry, expired or not.
func (s *Store) Models(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Key: keyPrefix, Err: err}
	}
	models := make([]string, 0, len(keys))
	for _, k := range keys {
		models = append(models, strings.TrimPrefix(k, keyPrefix))
	}
	return models, nil
}

// load reads the entry; stale is true when it exists but is expired or unreadable.
func (s *Store) load(ctx context.Context, model string) (*domain.RateLimitBlock, bool, error) {
	raw, found, err := s.kv.Get(ctx, key(model))
	if err != nil {
		return nil, false, &domain.StorageError{Op: "get", Key: key(model), Err: err}
	}
	if !found {
		return nil, false, nil
	}

	var block domain.RateLimitBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		s.warn("discarding unreadable rate limit entry", "model", model, "error", err)
		return nil, true, nil
	}
	if s.now().UnixMilli() >= block.BlockedUntil {
		return nil, true, nil
	}
	return &block, false, nil
}

func (s *Store) remaining(block domain.RateLimitBlock) int {
	left := block.BlockedUntil - s.now().UnixMilli()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / 1000))
}

func key(model string) string {
	return keyPrefix + model
}

func (s *Store) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Store) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
