package orchestrator

import (
	"context"
	"testing"
	"time"

	"OracleFeed/internal/cache"
	"OracleFeed/internal/consensus"
	"OracleFeed/internal/domain/models"
	"OracleFeed/internal/validation"
)

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	v, err := validation.New(validation.Config{}, nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	a, err := consensus.New(consensus.Config{}, nil)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	c, err := cache.NewRealTime(cache.Config{CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(c.Close)

	o, err := New(Config{}, v, a, c, opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func ethFeed() models.FeedID {
	return models.NewFeedID(models.CategoryCrypto, "ETH/USD")
}

func tick(source string, price float64, ts time.Time) *models.PriceUpdate {
	return &models.PriceUpdate{
		Symbol:     "ETH/USD",
		Price:      price,
		Timestamp:  ts.UnixMilli(),
		Source:     source,
		Confidence: 0.9,
	}
}

func TestEndToEndConsensus(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance", "coinbase"})
	ctx := context.Background()
	now := time.Now()

	agg, err := o.ProcessPriceUpdate(ctx, feed, tick("binance", 3000, now))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if agg == nil || agg.Price != 3000 {
		t.Fatalf("single source must yield its own price, got %+v", agg)
	}
	if agg.ConsensusScore != 0.5 {
		t.Fatalf("1 of 2 configured sources must give score 0.5, got %v", agg.ConsensusScore)
	}

	agg, err = o.ProcessPriceUpdate(ctx, feed, tick("coinbase", 3010, now.Add(time.Millisecond)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if agg == nil || agg.Price < 3000 || agg.Price > 3010 {
		t.Fatalf("fused price must stay within source range, got %+v", agg)
	}
	if agg.ConsensusScore != 1 {
		t.Fatalf("both sources reporting must give score 1, got %v", agg.ConsensusScore)
	}

	// a repeat from one source still refreshes consensus, the other source's
	// latest price keeps contributing
	agg, err = o.ProcessPriceUpdate(ctx, feed, tick("binance", 3005, now.Add(2*time.Millisecond)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if agg == nil || len(agg.Sources) != 2 {
		t.Fatalf("both sources must still contribute, got %+v", agg)
	}

	got := o.GetAggregatedPrice(feed)
	if got == nil || got.Price != agg.Price {
		t.Fatalf("read path must serve the latest consensus, got %+v want %v", got, agg.Price)
	}
	if got.ConsensusScore != 1 {
		t.Fatalf("read path must carry the consensus score, got %+v", got)
	}
}

func TestRejectedUpdateLeavesStateUntouched(t *testing.T) {
	var criticals int
	o := newTestOrchestrator(t, WithHooks(Hooks{
		CriticalValidationError: func(models.FeedID, *models.PriceUpdate, models.ValidationResult) {
			criticals++
		},
	}))
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})
	ctx := context.Background()
	now := time.Now()

	if _, err := o.ProcessPriceUpdate(ctx, feed, tick("binance", 3000, now)); err != nil {
		t.Fatalf("process: %v", err)
	}

	bad := tick("binance", -5, now.Add(time.Millisecond))
	agg, err := o.ProcessPriceUpdate(ctx, feed, bad)
	if err != nil {
		t.Fatalf("bad data must not surface as a pipeline error: %v", err)
	}
	if agg != nil {
		t.Fatalf("rejected update must not produce consensus, got %+v", agg)
	}
	if criticals != 1 {
		t.Fatalf("critical hook must fire once, got %d", criticals)
	}

	got := o.GetAggregatedPrice(feed)
	if got == nil || got.Price != 3000 {
		t.Fatalf("rejected update must leave the last consensus intact, got %+v", got)
	}
}

func TestSubscribersOrderedWithPanicIsolation(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})

	var order []int
	o.Subscribe(feed, func(models.FeedID, *models.AggregatedPrice) { order = append(order, 1) })
	o.Subscribe(feed, func(models.FeedID, *models.AggregatedPrice) { panic("boom") })
	unsub := o.Subscribe(feed, func(models.FeedID, *models.AggregatedPrice) { order = append(order, 3) })

	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3000, time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("subscribers must run in order with panics isolated, got %v", order)
	}

	unsub()
	order = nil
	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3001, time.Now().Add(time.Millisecond))); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(order) != 1 || order[0] != 1 {
		t.Fatalf("unsubscribed callback must not fire, got %v", order)
	}
}

func TestPartialQuorumStaysLiveWithLowScore(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance", "coinbase", "kraken"})

	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3000, time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}

	// a thin quorum with fresh data is a score problem, not a health problem
	q := o.Quality(feed)
	if q.State != models.FeedLive {
		t.Fatalf("fresh data must keep the feed live, got %s", q.State)
	}
	if q.ConsensusScore > 0.34 {
		t.Fatalf("unexpected score %v", q.ConsensusScore)
	}
}

func TestFeedLifecycleColdLiveDegraded(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})

	if q := o.Quality(feed); q.State != models.FeedCold {
		t.Fatalf("feed with no updates must be cold, got %s", q.State)
	}

	now := time.Now()
	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3000, now)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if q := o.Quality(feed); q.State != models.FeedLive {
		t.Fatalf("feed with a fresh source must be live, got %s", q.State)
	}

	// all sources age past the staleness bound; the sweep downgrades the feed
	o.now = func() time.Time { return now.Add(3 * time.Second) }
	o.sweepStale()
	q := o.Quality(feed)
	if q.State != models.FeedDegraded {
		t.Fatalf("feed with only stale sources must be degraded, got %s", q.State)
	}

	// a fresh accepted tick revives the feed
	o.now = time.Now
	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3002, time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if q := o.Quality(feed); q.State != models.FeedLive {
		t.Fatalf("fresh data must revive a degraded feed, got %s", q.State)
	}
}

func TestSweepRetainsSourceState(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})

	now := time.Now()
	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3000, now)); err != nil {
		t.Fatalf("process: %v", err)
	}

	o.now = func() time.Time { return now.Add(5 * time.Second) }
	o.sweepStale()

	q := o.Quality(feed)
	if q.State != models.FeedDegraded {
		t.Fatalf("stale-only feed must be degraded, got %s", q.State)
	}
	if len(q.SourceAgeMillis) != 1 {
		t.Fatalf("source entries must survive the degraded transition, got %v", q.SourceAgeMillis)
	}
	if age := q.SourceAgeMillis["binance"]; age < 5000 {
		t.Fatalf("retained entry must report its real age, got %d", age)
	}
}

func TestReadPathsDoNotRegisterFeeds(t *testing.T) {
	o := newTestOrchestrator(t)
	o.RegisterFeed(ethFeed(), []string{"binance"})

	unknown := models.NewFeedID(models.CategoryCrypto, "DOGE/USD")
	if p := o.GetAggregatedPrice(unknown); p != nil {
		t.Fatalf("unknown feed must read as nil, got %+v", p)
	}
	if q := o.Quality(unknown); q.State != models.FeedCold {
		t.Fatalf("unknown feed must read as cold, got %s", q.State)
	}
	if p := o.SnapshotVotingRound(unknown, 1); p != nil {
		t.Fatalf("snapshot of unknown feed must be nil, got %+v", p)
	}

	if n := len(o.Feeds()); n != 1 {
		t.Fatalf("read paths must not register feeds, got %d registered", n)
	}
}

func TestSubscriberMayQueryDuringDelivery(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})

	var seenPrice float64
	var seenState models.FeedState
	o.Subscribe(feed, func(_ models.FeedID, p *models.AggregatedPrice) {
		// reentering the read APIs from a callback must not deadlock
		if got := o.GetAggregatedPrice(feed); got != nil {
			seenPrice = got.Price
		}
		seenState = o.Quality(feed).State
	})

	if _, err := o.ProcessPriceUpdate(context.Background(), feed, tick("binance", 3000, time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if seenPrice != 3000 {
		t.Fatalf("callback must see the fresh consensus, got %v", seenPrice)
	}
	if seenState != models.FeedLive {
		t.Fatalf("callback must see the live state, got %s", seenState)
	}
}

func TestVotingRoundSnapshotLifecycle(t *testing.T) {
	o := newTestOrchestrator(t)
	feed := ethFeed()
	o.RegisterFeed(feed, []string{"binance"})
	ctx := context.Background()
	now := time.Now()

	if snap := o.SnapshotVotingRound(feed, 42); snap != nil {
		t.Fatalf("snapshot before any consensus must be nil, got %+v", snap)
	}

	if _, err := o.ProcessPriceUpdate(ctx, feed, tick("binance", 3000, now)); err != nil {
		t.Fatalf("process: %v", err)
	}
	snap := o.SnapshotVotingRound(feed, 42)
	if snap == nil || snap.Price != 3000 {
		t.Fatalf("snapshot must freeze the current consensus, got %+v", snap)
	}
	if got := o.GetVotingRoundPrice(feed, 42); got == nil || got.Price != 3000 {
		t.Fatalf("round read must serve the frozen value, got %+v", got)
	}

	// a fresh consensus invalidates the frozen rounds but not the live price
	if _, err := o.ProcessPriceUpdate(ctx, feed, tick("binance", 3100, now.Add(time.Millisecond))); err != nil {
		t.Fatalf("process: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for o.GetVotingRoundPrice(feed, 42) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("round snapshot must be invalidated by a fresh consensus")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := o.GetAggregatedPrice(feed); got == nil || got.Price != 3100 {
		t.Fatalf("live price must survive round invalidation, got %+v", got)
	}
}
