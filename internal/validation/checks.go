package validation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"OracleFeed/internal/domain/models"
)

// Checks append typed issues to the result instead of short-circuiting, so a
// caller always sees the full issue set for an update.

func (v *Validator) checkFormat(u *models.PriceUpdate, res *models.ValidationResult) {
	if u.Symbol == "" {
		addIssue(res, models.IssueFormat, models.SeverityCritical, "symbol", "symbol is required")
	}
	if math.IsNaN(u.Price) || math.IsInf(u.Price, 0) {
		addIssue(res, models.IssueFormat, models.SeverityCritical, "price", "price is not a finite number")
	} else if u.Price <= 0 {
		addIssue(res, models.IssueFormat, models.SeverityCritical, "price", "price must be positive")
	}
	if u.Timestamp <= 0 {
		addIssue(res, models.IssueFormat, models.SeverityCritical, "timestamp", "timestamp must be positive")
	}
	if u.Source == "" {
		addIssue(res, models.IssueFormat, models.SeverityCritical, "source", "source is required")
	}
	if u.Confidence < 0 || u.Confidence > 1 {
		addIssue(res, models.IssueFormat, models.SeverityMedium, "confidence",
			fmt.Sprintf("confidence %.3f outside [0,1]", u.Confidence))
	}
}

func (v *Validator) checkRange(u *models.PriceUpdate, res *models.ValidationResult) {
	if u.Price <= 0 || math.IsNaN(u.Price) || math.IsInf(u.Price, 0) {
		return // already critical via format
	}
	if u.Price < v.cfg.PriceMin {
		addIssue(res, models.IssueRange, models.SeverityHigh, "price",
			fmt.Sprintf("price %.8f below minimum %.8f", u.Price, v.cfg.PriceMin))
	}
	if u.Price > v.cfg.PriceMax {
		addIssue(res, models.IssueRange, models.SeverityHigh, "price",
			fmt.Sprintf("price %.2f above maximum %.2f", u.Price, v.cfg.PriceMax))
	}
}

func (v *Validator) checkStaleness(u *models.PriceUpdate, now time.Time, res *models.ValidationResult) {
	if u.Timestamp <= 0 {
		return
	}
	age := now.UnixMilli() - u.Timestamp
	maxAge := v.cfg.MaxAge.Milliseconds()
	switch {
	case age > maxAge:
		addIssue(res, models.IssueStaleness, models.SeverityCritical, "timestamp",
			fmt.Sprintf("update is %dms old, max age %dms", age, maxAge))
	case float64(age) > stalenessWarnFraction*float64(maxAge):
		addIssue(res, models.IssueStaleness, models.SeverityLow, "timestamp",
			fmt.Sprintf("update is %dms old, approaching max age %dms", age, maxAge))
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: update age %dms exceeds %.0f%% of max age", u.Source, age, stalenessWarnFraction*100))
	}
}

func (v *Validator) checkOutlier(u *models.PriceUpdate, vctx *Context, res *models.ValidationResult) {
	if vctx == nil || len(vctx.HistoricalPrices) < v.cfg.MinHistoryPoints || u.Price <= 0 {
		return
	}

	med := median(vctx.HistoricalPrices)
	if med > 0 {
		dev := math.Abs(u.Price-med) / med
		if dev > v.cfg.OutlierThreshold {
			addIssue(res, models.IssueOutlier, models.SeverityHigh, "price",
				fmt.Sprintf("price deviates %.2f%% from historical median %.8f", dev*100, med))
		}
	}

	mean, std := meanStddev(vctx.HistoricalPrices)
	if std > 0 {
		z := math.Abs(u.Price-mean) / std
		if z > v.cfg.ZScoreThreshold {
			addIssue(res, models.IssueOutlier, models.SeverityHigh, "price",
				fmt.Sprintf("price z-score %.2f exceeds %.2f", z, v.cfg.ZScoreThreshold))
		}
	}
}

func (v *Validator) checkCrossSource(u *models.PriceUpdate, vctx *Context, now time.Time, res *models.ValidationResult) {
	if vctx == nil || u.Price <= 0 {
		return
	}
	cutoff := now.UnixMilli() - v.cfg.CrossSourceWindow.Milliseconds()
	others := make([]float64, 0, len(vctx.CrossSourcePrices))
	for _, sp := range vctx.CrossSourcePrices {
		if sp.Source == u.Source || sp.Timestamp < cutoff {
			continue
		}
		others = append(others, sp.Price)
	}
	if len(others) < 2 {
		return // not enough independent sources to judge
	}

	med := median(others)
	if med <= 0 {
		return
	}
	dev := math.Abs(u.Price-med) / med
	if dev > v.cfg.OutlierThreshold {
		addIssue(res, models.IssueCrossSource, models.SeverityHigh, "price",
			fmt.Sprintf("price deviates %.2f%% from %d other sources (median %.8f)", dev*100, len(others), med))
	}
}

func (v *Validator) checkConsensusDeviation(u *models.PriceUpdate, vctx *Context, res *models.ValidationResult) {
	if vctx == nil || !vctx.HasConsensus || vctx.ConsensusMedian <= 0 || u.Price <= 0 {
		return
	}
	// Consensus is presumed more trustworthy than any single history window,
	// so the tolerance band is tighter than the plain outlier threshold.
	tolerance := v.cfg.OutlierThreshold * (1 - v.cfg.ConsensusWeight)
	dev := math.Abs(u.Price-vctx.ConsensusMedian) / vctx.ConsensusMedian
	if dev > tolerance {
		addIssue(res, models.IssueConsensusDeviation, models.SeverityHigh, "price",
			fmt.Sprintf("price deviates %.2f%% from consensus %.8f (tolerance %.2f%%)", dev*100, vctx.ConsensusMedian, tolerance*100))
	}
}

func addIssue(res *models.ValidationResult, kind models.IssueKind, sev models.Severity, field, msg string) {
	res.Errors = append(res.Errors, models.ValidationIssue{
		Kind:     kind,
		Severity: sev,
		Field:    field,
		Message:  msg,
	})
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

func meanStddev(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}
