package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupStatsCache(t *testing.T, ttl time.Duration) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStatsCache(client, ttl), mr
}

func TestStatsCacheRoundTrip(t *testing.T) {
	cache, _ := setupStatsCache(t, time.Minute)
	ctx := context.Background()

	stats := &Stats{
		Symbol:      "BTCUSDT",
		Volatility:  0.045,
		QuoteVolume: 1_500_000,
		LastPrice:   42000,
		ComputedAt:  time.Now().UTC().Truncate(time.Second),
	}
	cache.Set(ctx, stats)

	got := cache.Get(ctx, "BTCUSDT")
	if got == nil {
		t.Fatal("Expected cache hit")
	}
	if got.Symbol != stats.Symbol || got.Volatility != stats.Volatility ||
		got.QuoteVolume != stats.QuoteVolume || got.LastPrice != stats.LastPrice {
		t.Errorf("Cached stats mismatch: %+v vs %+v", got, stats)
	}
}

func TestStatsCacheMiss(t *testing.T) {
	cache, _ := setupStatsCache(t, time.Minute)

	if got := cache.Get(context.Background(), "DOGEUSDT"); got != nil {
		t.Errorf("Expected miss, got %+v", got)
	}
}

func TestStatsCacheExpiry(t *testing.T) {
	cache, mr := setupStatsCache(t, 30*time.Second)
	ctx := context.Background()

	cache.Set(ctx, &Stats{Symbol: "ETHUSDT", Volatility: 0.02})

	mr.FastForward(time.Minute)

	if got := cache.Get(ctx, "ETHUSDT"); got != nil {
		t.Errorf("Expected entry to expire, got %+v", got)
	}
}

func TestStatsCacheCorruptEntry(t *testing.T) {
	cache, mr := setupStatsCache(t, time.Minute)

	if err := mr.Set("market:stats:BTCUSDT", "not json"); err != nil {
		t.Fatalf("Failed to seed miniredis: %v", err)
	}

	if got := cache.Get(context.Background(), "BTCUSDT"); got != nil {
		t.Errorf("Expected nil for a corrupt entry, got %+v", got)
	}
}

func TestStatsCacheNilClient(t *testing.T) {
	cache := NewStatsCache(nil, time.Minute)
	if cache != nil {
		t.Fatal("Expected nil cache for a nil client")
	}

	// Methods on the nil cache are safe no-ops
	cache.Set(context.Background(), &Stats{Symbol: "BTCUSDT"})
	if got := cache.Get(context.Background(), "BTCUSDT"); got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
}
