package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(10))
	defer mc.Close()

	ctx := context.Background()
	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}

	if err := mc.Set(ctx, "price:BTC/USD", &quote{Symbol: "BTC/USD", Price: 42000}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got quote
	if err := mc.Get(ctx, "price:BTC/USD", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Symbol != "BTC/USD" || got.Price != 42000 {
		t.Fatalf("got %+v", got)
	}

	if err := mc.Get(ctx, "price:ETH/USD", &got); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	ctx := context.Background()
	if err := mc.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var s string
	if err := mc.Get(ctx, "k", &s); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	ctx := context.Background()
	_ = mc.Set(ctx, "a", "1", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	time.Sleep(time.Millisecond)

	// touch "a" so "b" is the least recently used
	var s string
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("Get a: %v", err)
	}

	_ = mc.Set(ctx, "c", "3", time.Minute)

	if err := mc.Get(ctx, "b", &s); err != ErrCacheMiss {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("expected a retained: %v", err)
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	key := GenerateKeyWithParams("oraclefeed", "round", "BTC/USD", int64(7))
	if key != "oraclefeed:round:BTC/USD:7" {
		t.Fatalf("got %q", key)
	}
}
