package consensus

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/creasty/defaults"

	"OracleFeed/internal/domain/models"
	"OracleFeed/pkg/logger"
)

// Config tunes consensus fusion. The formula shapes (median outlier rejection,
// exponential recency decay, weighted-median fusion, agreement-scaled
// confidence) are the contract; the constants are a tuning surface.
type Config struct {
	// OutlierThreshold is the relative deviation from the cross-source median
	// beyond which a source is dropped from the fusion pass.
	OutlierThreshold float64 `yaml:"outlier_threshold" default:"0.05"`

	// DecayLambda is the per-millisecond exponential decay constant for
	// recency weighting: weight = confidence * exp(-lambda*ageMs). The
	// default gives a half-life of roughly 14 seconds, so stale-but-alive
	// sources fade out instead of being hard-cut.
	DecayLambda float64 `yaml:"decay_lambda" default:"0.00005"`

	// AgreementPenalty scales how quickly confidence drops as the relative
	// spread among surviving prices grows.
	AgreementPenalty float64 `yaml:"agreement_penalty" default:"5"`
}

// Aggregator fuses the currently-known per-source prices for one feed into a
// single consensus price with a confidence and a consensus-quality score.
type Aggregator struct {
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// New creates an aggregator, filling zero config fields with defaults.
func New(cfg Config, lgr *logger.Logger) (*Aggregator, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("aggregator defaults: %w", err)
	}
	return &Aggregator{cfg: cfg, logger: lgr, now: time.Now}, nil
}

type weighted struct {
	source string
	price  float64
	conf   float64
	weight float64
}

// Aggregate fuses the given validated per-source updates. configuredSources is
// the number of sources configured for the feed, used for the consensus score.
// Returns nil for empty input; callers gate that state before calling.
func (a *Aggregator) Aggregate(feed models.FeedID, sourcePrices map[string]*models.PriceUpdate, configuredSources int) *models.AggregatedPrice {
	if len(sourcePrices) == 0 {
		return nil
	}
	now := a.now()

	// Single live source: its own price and confidence verbatim.
	if len(sourcePrices) == 1 {
		for src, u := range sourcePrices {
			return a.result(feed, u.Price, u.Confidence, []string{src}, configuredSources, now)
		}
	}

	survivors := a.rejectOutliers(feed, sourcePrices)

	// Recency-decayed weighting.
	entries := make([]weighted, 0, len(survivors))
	for src, u := range survivors {
		age := float64(u.AgeMillis(now))
		if age < 0 {
			age = 0
		}
		conf := u.Confidence
		if conf <= 0 {
			conf = 1
		}
		entries = append(entries, weighted{
			source: src,
			price:  u.Price,
			conf:   conf,
			weight: conf * math.Exp(-a.cfg.DecayLambda*age),
		})
	}

	fused := weightedMedian(entries)
	confidence := a.confidence(entries, fused)

	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, e.source)
	}
	sort.Strings(sources)

	return a.result(feed, fused, confidence, sources, configuredSources, now)
}

// rejectOutliers drops sources deviating from the cross-source median by more
// than the threshold. If rejection would leave nothing, it is skipped: a
// non-empty input never produces an empty consensus.
func (a *Aggregator) rejectOutliers(feed models.FeedID, sourcePrices map[string]*models.PriceUpdate) map[string]*models.PriceUpdate {
	prices := make([]float64, 0, len(sourcePrices))
	for _, u := range sourcePrices {
		prices = append(prices, u.Price)
	}
	med := median(prices)
	if med <= 0 {
		return sourcePrices
	}

	kept := make(map[string]*models.PriceUpdate, len(sourcePrices))
	for src, u := range sourcePrices {
		dev := math.Abs(u.Price-med) / med
		if dev > a.cfg.OutlierThreshold {
			if a.logger != nil {
				a.logger.Debug("rejecting outlier source",
					logger.String("feed", feed.Key()),
					logger.String("source", src),
					logger.Float64("price", u.Price),
					logger.Float64("median", med))
			}
			continue
		}
		kept[src] = u
	}
	if len(kept) == 0 {
		return sourcePrices
	}
	return kept
}

// confidence combines the mean of surviving source confidences with an
// agreement term that shrinks as the relative spread among survivors grows:
// tight agreement keeps confidence near the source mean, wide disagreement
// pulls it down.
func (a *Aggregator) confidence(entries []weighted, fused float64) float64 {
	if len(entries) == 0 || fused <= 0 {
		return 0
	}
	var sum, lo, hi float64
	lo, hi = entries[0].price, entries[0].price
	for _, e := range entries {
		sum += e.conf
		if e.price < lo {
			lo = e.price
		}
		if e.price > hi {
			hi = e.price
		}
	}
	meanConf := sum / float64(len(entries))
	spread := (hi - lo) / fused
	agreement := 1 / (1 + a.cfg.AgreementPenalty*spread)
	conf := meanConf * agreement
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func (a *Aggregator) result(feed models.FeedID, price, confidence float64, sources []string, configured int, now time.Time) *models.AggregatedPrice {
	score := 0.0
	if configured > 0 {
		score = float64(len(sources)) / float64(configured)
		if score > 1 {
			score = 1
		}
	}
	return &models.AggregatedPrice{
		Symbol:         feed.Name,
		Price:          price,
		Timestamp:      now.UnixMilli(),
		Sources:        sources,
		Confidence:     confidence,
		ConsensusScore: score,
	}
}

// weightedMedian returns the price at which cumulative weight reaches half of
// the total. With an exact split, the two middle prices are averaged.
func weightedMedian(entries []weighted) float64 {
	n := len(entries)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return entries[0].price
	}

	sorted := make([]weighted, n)
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

	var total float64
	for _, e := range sorted {
		total += e.weight
	}
	if total <= 0 {
		return sorted[n/2].price
	}

	target := total / 2
	var cum float64
	for i, e := range sorted {
		cum += e.weight
		if cum >= target {
			if cum == target && i+1 < n {
				return (e.price + sorted[i+1].price) / 2
			}
			return e.price
		}
	}
	return sorted[n/2].price
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
