package validation

import (
	"testing"
	"time"

	"OracleFeed/internal/domain/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func freshUpdate(now time.Time) *models.PriceUpdate {
	return &models.PriceUpdate{
		Symbol:     "BTC/USD",
		Price:      50000,
		Timestamp:  now.UnixMilli(),
		Source:     "binance",
		Confidence: 0.9,
	}
}

func TestValidateNilUpdate(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(nil, nil)
	if res.IsValid {
		t.Fatalf("nil update must be invalid")
	}
	if len(res.Errors) != 1 || res.Errors[0].Severity != models.SeverityCritical {
		t.Fatalf("expected single critical issue, got %+v", res.Errors)
	}
}

func TestValidateCleanUpdatePasses(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	res := v.Validate(freshUpdate(now), &Context{})
	if !res.IsValid {
		t.Fatalf("expected valid, got issues %+v", res.Errors)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("clean update must keep input confidence, got %v", res.Confidence)
	}
	if res.AdjustedUpdate == nil || res.AdjustedUpdate.Confidence != res.Confidence {
		t.Fatalf("adjusted update must carry the clamped confidence")
	}
}

func TestValidateMissingFieldsCritical(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(&models.PriceUpdate{}, nil)
	if res.IsValid {
		t.Fatalf("empty update must be invalid")
	}
	if !res.HasCritical() {
		t.Fatalf("expected critical issues")
	}
	if res.Confidence > 0.01 {
		t.Fatalf("critical issues must drive confidence toward 0, got %v", res.Confidence)
	}
}

func TestStalenessBoundary(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }
	maxAge := v.Config().MaxAge.Milliseconds()

	tooOld := freshUpdate(now)
	tooOld.Timestamp = now.UnixMilli() - maxAge - 1
	if res := v.Validate(tooOld, nil); res.IsValid {
		t.Fatalf("update older than max age must be invalid")
	}

	justFresh := freshUpdate(now)
	justFresh.Timestamp = now.UnixMilli() - maxAge + 1
	justFresh.Source = "kraken" // avoid memo collision with tooOld
	res := v.Validate(justFresh, nil)
	if !res.IsValid {
		t.Fatalf("update within max age must be valid, issues %+v", res.Errors)
	}
	// past the 80% mark, the low-severity early warning fires
	found := false
	for _, e := range res.Errors {
		if e.Kind == models.IssueStaleness && e.Severity == models.SeverityLow {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected low-severity staleness warning near max age")
	}
}

func TestOutlierRoundTrip(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }
	vctx := &Context{HistoricalPrices: []float64{49800, 50100, 49900}}

	outlier := freshUpdate(now)
	outlier.Price = 60000
	res := v.Validate(outlier, vctx)
	hasOutlier := false
	for _, e := range res.Errors {
		if e.Kind == models.IssueOutlier {
			hasOutlier = true
		}
	}
	if !hasOutlier {
		t.Fatalf("60000 against [49800,50100,49900] must raise an outlier issue")
	}

	inlier := freshUpdate(now)
	inlier.Price = 50050
	inlier.Source = "kraken"
	res = v.Validate(inlier, vctx)
	for _, e := range res.Errors {
		if e.Kind == models.IssueOutlier {
			t.Fatalf("50050 must not be flagged: %+v", e)
		}
	}
}

func TestOutlierSkippedOnColdStart(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	u := freshUpdate(now)
	u.Price = 999999 // would be a wild outlier with history present
	res := v.Validate(u, &Context{HistoricalPrices: []float64{50000, 50100}})
	for _, e := range res.Errors {
		if e.Kind == models.IssueOutlier {
			t.Fatalf("outlier check must be skipped with <3 history points")
		}
	}
}

func TestCrossSourceCheck(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	vctx := &Context{
		CrossSourcePrices: []models.SourcePrice{
			{Source: "coinbase", Price: 50000, Timestamp: now.UnixMilli()},
			{Source: "kraken", Price: 50100, Timestamp: now.UnixMilli()},
		},
	}
	u := freshUpdate(now)
	u.Price = 60000
	res := v.Validate(u, vctx)
	hasCross := false
	for _, e := range res.Errors {
		if e.Kind == models.IssueCrossSource {
			hasCross = true
		}
	}
	if !hasCross {
		t.Fatalf("expected cross-source issue for 60000 vs 50k peers")
	}

	// one peer only: not enough independent sources, check skipped
	vctx.CrossSourcePrices = vctx.CrossSourcePrices[:1]
	u2 := freshUpdate(now)
	u2.Price = 60000
	u2.Source = "okx"
	res = v.Validate(u2, vctx)
	for _, e := range res.Errors {
		if e.Kind == models.IssueCrossSource {
			t.Fatalf("cross-source check must be skipped with <2 peers")
		}
	}
}

func TestConsensusDeviationTighterThanOutlier(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	// 3% off consensus: under the 5% outlier threshold but over the
	// consensus tolerance of 5%*(1-0.5)=2.5%.
	u := freshUpdate(now)
	u.Price = 51500
	res := v.Validate(u, &Context{ConsensusMedian: 50000, HasConsensus: true})
	found := false
	for _, e := range res.Errors {
		if e.Kind == models.IssueConsensusDeviation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected consensus deviation issue at 3%% off consensus")
	}
}

func TestConfidenceMonotonicity(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	clean := v.Validate(freshUpdate(now), &Context{})

	flagged := freshUpdate(now)
	flagged.Source = "kraken"
	flagged.Price = 60000
	dirty := v.Validate(flagged, &Context{HistoricalPrices: []float64{49800, 50100, 49900}})

	if dirty.Confidence >= clean.Confidence {
		t.Fatalf("more issues must never increase confidence: clean=%v dirty=%v",
			clean.Confidence, dirty.Confidence)
	}
	if dirty.Confidence < 0 || dirty.Confidence > 1 {
		t.Fatalf("confidence out of [0,1]: %v", dirty.Confidence)
	}
}

func TestValidateBatchKeying(t *testing.T) {
	v := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }

	a := freshUpdate(now)
	b := freshUpdate(now)
	b.Source = "coinbase"
	results := v.ValidateBatch([]*models.PriceUpdate{a, b}, &Context{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for key, res := range results {
		if !res.IsValid {
			t.Fatalf("result %s unexpectedly invalid: %+v", key, res.Errors)
		}
	}
}
