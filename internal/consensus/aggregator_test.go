package consensus

import (
	"testing"
	"time"

	"OracleFeed/internal/domain/models"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a
}

func btcFeed() models.FeedID {
	return models.NewFeedID(models.CategoryCrypto, "BTC/USD")
}

func update(source string, price float64, conf float64, now time.Time) *models.PriceUpdate {
	return &models.PriceUpdate{
		Symbol:     "BTC/USD",
		Price:      price,
		Timestamp:  now.UnixMilli(),
		Source:     source,
		Confidence: conf,
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	a := newTestAggregator(t)
	if got := a.Aggregate(btcFeed(), nil, 3); got != nil {
		t.Fatalf("empty input must yield nil, got %+v", got)
	}
}

func TestAggregateSingleSourceVerbatim(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }

	got := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance": update("binance", 50000, 0.85, now),
	}, 3)
	if got == nil {
		t.Fatalf("expected result")
	}
	if got.Price != 50000 || got.Confidence != 0.85 {
		t.Fatalf("single source must pass through verbatim, got %+v", got)
	}
	if got.ConsensusScore < 0.33 || got.ConsensusScore > 0.34 {
		t.Fatalf("1 of 3 sources must give score ~0.33, got %v", got.ConsensusScore)
	}
}

func TestAggregateFusionWithinRange(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }

	got := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance":  update("binance", 50000, 0.9, now),
		"coinbase": update("coinbase", 50100, 0.9, now),
		"kraken":   update("kraken", 49900, 0.9, now),
	}, 3)
	if got == nil {
		t.Fatalf("expected result")
	}
	if got.Price < 49900 || got.Price > 50100 {
		t.Fatalf("fused price must stay within source range, got %v", got.Price)
	}
	if len(got.Sources) != 3 {
		t.Fatalf("all agreeing sources must contribute, got %v", got.Sources)
	}
	if got.ConsensusScore != 1 {
		t.Fatalf("3 of 3 sources must give score 1, got %v", got.ConsensusScore)
	}
}

func TestSpreadLowersConfidence(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }
	// wide-spread prices would be dropped by outlier rejection, so disable it
	a.cfg.OutlierThreshold = 10

	tight := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance":  update("binance", 50000, 0.9, now),
		"coinbase": update("coinbase", 50100, 0.9, now),
		"kraken":   update("kraken", 49900, 0.9, now),
	}, 3)
	wide := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance":  update("binance", 45000, 0.9, now),
		"coinbase": update("coinbase", 50000, 0.9, now),
		"kraken":   update("kraken", 55000, 0.9, now),
	}, 3)

	if tight == nil || wide == nil {
		t.Fatalf("expected results")
	}
	if wide.Confidence >= tight.Confidence {
		t.Fatalf("wide spread must lower confidence: tight=%v wide=%v",
			tight.Confidence, wide.Confidence)
	}
}

func TestOutlierSourceRejected(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }

	got := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance":  update("binance", 50000, 0.9, now),
		"coinbase": update("coinbase", 50100, 0.9, now),
		"shady":    update("shady", 90000, 0.9, now),
	}, 3)
	if got == nil {
		t.Fatalf("expected result")
	}
	for _, s := range got.Sources {
		if s == "shady" {
			t.Fatalf("outlier source must be rejected, sources=%v", got.Sources)
		}
	}
	if got.Price > 50100 {
		t.Fatalf("rejected outlier must not pull the fused price, got %v", got.Price)
	}
}

func TestRejectionNeverEmptiesConsensus(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }

	// two sources far apart: each deviates >5% from their midpoint median,
	// so naive rejection would drop both
	got := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"binance":  update("binance", 40000, 0.9, now),
		"coinbase": update("coinbase", 60000, 0.9, now),
	}, 2)
	if got == nil {
		t.Fatalf("non-empty input must never produce empty consensus")
	}
	if len(got.Sources) == 0 {
		t.Fatalf("expected surviving sources")
	}
}

func TestRecencyDecayFavorsFreshSources(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now()
	a.now = func() time.Time { return now }
	a.cfg.OutlierThreshold = 10 // keep both sources in play

	stale := update("stale", 48000, 0.9, now)
	stale.Timestamp = now.Add(-40 * time.Second).UnixMilli()
	fresh := update("fresh", 52000, 0.9, now)

	got := a.Aggregate(btcFeed(), map[string]*models.PriceUpdate{
		"stale": stale,
		"fresh": fresh,
	}, 2)
	if got == nil {
		t.Fatalf("expected result")
	}
	// weighted median with a decayed stale source lands on the fresh price
	if got.Price != 52000 {
		t.Fatalf("fresh source must dominate the weighted median, got %v", got.Price)
	}
}
