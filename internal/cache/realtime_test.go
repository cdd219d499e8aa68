package cache

import (
	"testing"
	"time"

	"OracleFeed/internal/domain/models"
)

func newTestCache(t *testing.T, cfg Config) (*RealTime, *time.Time) {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		// keep the background sweep out of clock-manipulating tests
		cfg.CleanupInterval = time.Hour
	}
	c, err := NewRealTime(cfg)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(c.Close)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func ethFeed() models.FeedID {
	return models.NewFeedID(models.CategoryCrypto, "ETH/USD")
}

func entry(price float64) Entry {
	return Entry{Value: price, Timestamp: time.Now().UnixMilli(), Sources: []string{"binance"}, Confidence: 0.9}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	c.Set("k", entry(50000), 0)
	got := c.Get("k")
	if got == nil || got.Value != 50000 {
		t.Fatalf("expected 50000 back, got %+v", got)
	}
	if c.Get("absent") != nil {
		t.Fatalf("absent key must return nil")
	}
}

func TestLazyExpiry(t *testing.T) {
	c, now := newTestCache(t, Config{TTL: time.Second})

	c.Set("k", entry(50000), time.Second)
	*now = now.Add(1100 * time.Millisecond)

	if got := c.Get("k"); got != nil {
		t.Fatalf("expired entry must read as nil, got %+v", got)
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be deleted on read, len=%d", c.Len())
	}
	stats := c.GetStats()
	if stats.Expired != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 expired + 1 miss, got %+v", stats)
	}
}

func TestEvictionPrefersColdStaleEntries(t *testing.T) {
	c, now := newTestCache(t, Config{TTL: time.Second, MaxSize: 3})

	c.Set("cold", entry(1), time.Second)
	c.Set("hot-a", entry(2), time.Second)
	c.Set("hot-b", entry(3), time.Second)

	for i := 0; i < 5; i++ {
		c.Get("hot-a")
		c.Get("hot-b")
	}

	// cold is untouched and near expiry when the fourth key arrives
	*now = now.Add(900 * time.Millisecond)
	c.Set("hot-a", entry(2), time.Second)
	c.Set("hot-b", entry(3), time.Second)
	c.Set("new", entry(4), time.Second)

	if c.Get("cold") != nil {
		t.Fatalf("cold near-expired entry must be the eviction victim")
	}
	if c.Get("hot-a") == nil || c.Get("hot-b") == nil || c.Get("new") == nil {
		t.Fatalf("hot and fresh entries must survive eviction")
	}
	if c.Len() > 3 {
		t.Fatalf("cache must never exceed max size, len=%d", c.Len())
	}
	if c.GetStats().Evictions == 0 {
		t.Fatalf("eviction counter must advance")
	}
}

func TestAdaptiveTTLExtendsHotKeys(t *testing.T) {
	c, now := newTestCache(t, Config{TTL: time.Second})

	c.Set("hot", entry(50000), time.Second)
	for i := 0; i < 10; i++ {
		c.Get("hot")
	}
	// overwrite while hot: TTL is boosted up to the 1.5x ceiling
	c.Set("hot", entry(50001), time.Second)
	c.Set("cold", entry(1), time.Second)

	*now = now.Add(1200 * time.Millisecond)
	if c.Get("hot") == nil {
		t.Fatalf("hot key must outlive the base TTL")
	}
	if c.Get("cold") != nil {
		t.Fatalf("cold key must expire at the base TTL")
	}

	*now = now.Add(400 * time.Millisecond) // 1.6s total, past the ceiling
	if c.Get("hot") != nil {
		t.Fatalf("adaptive TTL must respect the 1.5x ceiling")
	}
}

func TestVotingRoundIsolation(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	feed := ethFeed()

	c.SetForVotingRound(feed, 10, entry(3000))
	c.SetPrice(feed, entry(3010))
	c.InvalidateOnPriceUpdate(feed)

	// round invalidation runs off the caller's path
	deadline := time.Now().Add(time.Second)
	for c.GetForVotingRound(feed, 10) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("voting-round snapshot must be invalidated after a price update")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := c.GetPrice(feed)
	if got == nil || got.Value != 3010 {
		t.Fatalf("current-price slot must survive round invalidation, got %+v", got)
	}
}

func TestInvalidateOnPriceUpdateScopedToFeed(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	eth := ethFeed()
	btc := models.NewFeedID(models.CategoryCrypto, "BTC/USD")

	c.SetForVotingRound(eth, 7, entry(3000))
	c.SetForVotingRound(btc, 7, entry(50000))
	c.InvalidateOnPriceUpdate(eth)

	deadline := time.Now().Add(time.Second)
	for c.GetForVotingRound(eth, 7) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("eth round snapshot must be invalidated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.GetForVotingRound(btc, 7) == nil {
		t.Fatalf("other feeds' round snapshots must be untouched")
	}
}

func TestSweepPurgesExpired(t *testing.T) {
	c, now := newTestCache(t, Config{TTL: time.Second})

	c.Set("a", entry(1), time.Second)
	c.Set("b", entry(2), time.Second)
	*now = now.Add(2 * time.Second)

	c.sweep()
	if c.Len() != 0 {
		t.Fatalf("sweep must purge expired entries, len=%d", c.Len())
	}
	if c.GetStats().Expired != 2 {
		t.Fatalf("expired counter must count swept entries, got %+v", c.GetStats())
	}
}

func TestClearAndStats(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	c.Set("k", entry(1), 0)
	c.Get("k")
	c.Get("missing")

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AvgGetLatencyMs < 0 || stats.AvgSetLatencyMs < 0 {
		t.Fatalf("latency averages must be non-negative")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("clear must empty the cache")
	}
}
