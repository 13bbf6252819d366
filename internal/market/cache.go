package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StatsCache provides Redis-backed caching for per-symbol market stats so
// the risk manager does not recompute volatility on every cycle
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a new stats cache. A nil client disables caching.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get retrieves cached stats for a symbol. Returns nil on miss or error;
// a cache miss is never fatal.
func (c *StatsCache) Get(ctx context.Context, symbol string) *Stats {
	if c == nil || c.client == nil {
		return nil
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, c.buildKey(symbol)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Stats cache read failed")
		}
		return nil
	}

	var stats Stats
	if err := json.Unmarshal([]byte(cached), &stats); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Stats cache entry corrupt")
		return nil
	}

	return &stats
}

// Set stores stats for a symbol with the configured TTL
func (c *StatsCache) Set(ctx context.Context, stats *Stats) {
	if c == nil || c.client == nil || stats == nil {
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, c.buildKey(stats.Symbol), payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", stats.Symbol).Msg("Stats cache write failed")
	}
}

func (c *StatsCache) buildKey(symbol string) string {
	return fmt.Sprintf("market:stats:%s", symbol)
}
