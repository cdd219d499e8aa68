package validation

import "time"

// Config tunes the per-update validation checks. Defaults are applied with
// creasty/defaults in New; the bootstrap layer only supplies overrides.
type Config struct {
	// MaxAge is the hard staleness bound. Older updates are rejected.
	MaxAge time.Duration `yaml:"max_age" default:"2s"`

	// Accepted absolute price range.
	PriceMin float64 `yaml:"price_min" default:"0.01"`
	PriceMax float64 `yaml:"price_max" default:"1000000"`

	// OutlierThreshold is the relative deviation from the historical median
	// (and from cross-source medians) beyond which a price is flagged.
	OutlierThreshold float64 `yaml:"outlier_threshold" default:"0.05"`

	// ConsensusWeight tightens the consensus-deviation tolerance: the
	// effective tolerance is OutlierThreshold*(1-ConsensusWeight), so a
	// higher weight means more trust in consensus and a tighter band.
	ConsensusWeight float64 `yaml:"consensus_weight" default:"0.5"`

	// HistoricalDataWindow bounds the rolling per-feed price history.
	HistoricalDataWindow int `yaml:"historical_data_window" default:"50"`

	// CrossSourceWindow is the trailing window for cross-source comparison.
	CrossSourceWindow time.Duration `yaml:"cross_source_window" default:"10s"`

	// MinHistoryPoints gates the statistical checks so a cold feed does not
	// produce false outlier positives.
	MinHistoryPoints int `yaml:"min_history_points" default:"3"`

	// ZScoreThreshold flags prices this many standard deviations from the
	// historical mean.
	ZScoreThreshold float64 `yaml:"z_score_threshold" default:"3"`

	// Result memoization, keyed by source+timestamp. Deduplicates redelivered
	// ticks without re-running the statistical checks.
	CacheSize int           `yaml:"validation_cache_size" default:"1024"`
	CacheTTL  time.Duration `yaml:"validation_cache_ttl" default:"500ms"`
}

// Severity-dependent confidence multipliers. The shapes (multiplicative
// penalties, clamped to [0,1]) are the contract; exact values are tuning.
const (
	penaltyCritical = 0.05
	penaltyHigh     = 0.5
	penaltyMedium   = 0.8
	penaltyLow      = 0.95

	// stalenessWarnFraction of MaxAge triggers an early low-severity warning.
	stalenessWarnFraction = 0.8
)
