package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// OverrideTTL is the validity window of a session price override.
const OverrideTTL = 24 * time.Hour

// OverrideStore holds per-session custom prices. Overrides are keyed by
// (session, pricing record id), expire automatically and are never
// shared across sessions.
type OverrideStore interface {
	Get(ctx context.Context, sessionID, pricingID string) (float64, bool)
	Set(ctx context.Context, sessionID, pricingID string, price float64, reason string) error
	Delete(ctx context.Context, sessionID, pricingID string) error
	CleanupSession(ctx context.Context, sessionID string) (int, error)
}

type overrideValue struct {
	Price  float64 `json:"price"`
	Reason string  `json:"reason,omitempty"`
}

// RedisOverrideStore implements OverrideStore with TTL-backed keys.
type RedisOverrideStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisOverrideStore(rdb *redis.Client, logger zerolog.Logger) *RedisOverrideStore {
	return &RedisOverrideStore{
		rdb: rdb,
		log: logger.With().Str("component", "override-store").Logger(),
	}
}

func overrideKey(sessionID, pricingID string) string {
	return fmt.Sprintf("override:%s:%s", sessionID, pricingID)
}

func (s *RedisOverrideStore) Get(ctx context.Context, sessionID, pricingID string) (float64, bool) {
	data, err := s.rdb.Get(ctx, overrideKey(sessionID, pricingID)).Bytes()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("override read failed")
		return 0, false
	}
	var val overrideValue
	if err := json.Unmarshal(data, &val); err != nil {
		return 0, false
	}
	return val.Price, true
}

func (s *RedisOverrideStore) Set(ctx context.Context, sessionID, pricingID string, price float64, reason string) error {
	data, err := json.Marshal(overrideValue{Price: price, Reason: reason})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, overrideKey(sessionID, pricingID), data, OverrideTTL).Err(); err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	return nil
}

func (s *RedisOverrideStore) Delete(ctx context.Context, sessionID, pricingID string) error {
	if err := s.rdb.Del(ctx, overrideKey(sessionID, pricingID)).Err(); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// CleanupSession purges every override a session created and returns
// how many were removed.
func (s *RedisOverrideStore) CleanupSession(ctx context.Context, sessionID string) (int, error) {
	pattern := fmt.Sprintf("override:%s:*", sessionID)
	keys, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan overrides: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge overrides: %w", err)
	}
	return int(deleted), nil
}
