package validation

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"OracleFeed/internal/domain/models"
	"OracleFeed/pkg/logger"
)

// Validator judges a single incoming price update for structural and
// statistical soundness against a rolling per-feed history. It never returns
// a Go error for bad data: malformed input is a data-quality verdict, not a
// process failure.
type Validator struct {
	cfg    Config
	logger *logger.Logger
	memo   *memoCache
	now    func() time.Time
}

// New creates a validator, filling zero config fields with defaults.
func New(cfg Config, lgr *logger.Logger) (*Validator, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("validator defaults: %w", err)
	}
	return &Validator{
		cfg:    cfg,
		logger: lgr,
		memo:   newMemoCache(cfg.CacheSize, cfg.CacheTTL),
		now:    time.Now,
	}, nil
}

// Config returns the effective configuration after defaulting.
func (v *Validator) Config() Config { return v.cfg }

// Validate runs all checks in order (cheap structural checks first) and
// returns the full issue set with an adjusted confidence. A nil update yields
// a single critical format issue.
func (v *Validator) Validate(u *models.PriceUpdate, vctx *Context) models.ValidationResult {
	now := v.now()

	if u == nil {
		return models.ValidationResult{
			IsValid: false,
			Errors: []models.ValidationIssue{{
				Kind:     models.IssueFormat,
				Severity: models.SeverityCritical,
				Field:    "update",
				Message:  "update is nil",
			}},
			Confidence: 0,
		}
	}

	key := memoKey(u)
	if cached, ok := v.memo.get(key, now); ok && cached.AdjustedUpdate != nil && cached.AdjustedUpdate.Symbol == u.Symbol {
		return cached
	}

	res := models.ValidationResult{}

	v.checkFormat(u, &res)
	v.checkRange(u, &res)
	v.checkStaleness(u, now, &res)
	v.checkOutlier(u, vctx, &res)
	v.checkCrossSource(u, vctx, now, &res)
	v.checkConsensusDeviation(u, vctx, &res)

	res.Confidence = v.adjustConfidence(u.Confidence, res.Errors)
	res.IsValid = !res.HasCritical()

	adjusted := u.Clone()
	adjusted.Confidence = res.Confidence
	res.AdjustedUpdate = adjusted

	if !res.IsValid && v.logger != nil {
		v.logger.Debug("update rejected",
			logger.String("source", u.Source),
			logger.String("symbol", u.Symbol),
			logger.Int("issues", len(res.Errors)))
	}

	v.memo.put(key, res, now)
	return res
}

// ValidateBatch applies Validate per item with no cross-item interaction.
// Results are keyed by source+timestamp.
func (v *Validator) ValidateBatch(updates []*models.PriceUpdate, vctx *Context) map[string]models.ValidationResult {
	results := make(map[string]models.ValidationResult, len(updates))
	for _, u := range updates {
		results[memoKey(u)] = v.Validate(u, vctx)
	}
	return results
}

// adjustConfidence starts from the input confidence (1.0 when absent) and
// multiplies in a severity-dependent penalty per issue, clamped to [0,1].
// Penalties are <=1, so adding issues can never raise confidence.
func (v *Validator) adjustConfidence(input float64, issues []models.ValidationIssue) float64 {
	conf := input
	if conf <= 0 || conf > 1 {
		conf = 1.0
	}
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			conf *= penaltyCritical
		case models.SeverityHigh:
			conf *= penaltyHigh
		case models.SeverityMedium:
			conf *= penaltyMedium
		case models.SeverityLow:
			conf *= penaltyLow
		}
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func memoKey(u *models.PriceUpdate) string {
	if u == nil {
		return "nil"
	}
	return fmt.Sprintf("%s:%d", u.Source, u.Timestamp)
}
