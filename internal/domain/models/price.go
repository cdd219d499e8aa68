package models

import "time"

// PriceUpdate is a single tick reported by one external source for one symbol.
// Timestamps are milliseconds since epoch. An update is immutable once emitted
// by an adapter; validation produces adjusted copies instead of mutating it.
type PriceUpdate struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"`
	Source     string  `json:"source"`
	Volume     float64 `json:"volume,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Clone returns a copy of the update safe to adjust downstream.
func (u *PriceUpdate) Clone() *PriceUpdate {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// AgeMillis returns how old the update is relative to now.
func (u *PriceUpdate) AgeMillis(now time.Time) int64 {
	return now.UnixMilli() - u.Timestamp
}

// AggregatedPrice is the fused, cross-source consensus price for a feed.
// It is produced once per aggregation pass and superseded, never mutated.
type AggregatedPrice struct {
	Symbol         string   `json:"symbol"`
	Price          float64  `json:"price"`
	Timestamp      int64    `json:"timestamp"`
	Sources        []string `json:"sources"`
	Confidence     float64  `json:"confidence"`
	ConsensusScore float64  `json:"consensus_score"`
}

// SourcePrice is one source's contribution visible to cross-source checks.
type SourcePrice struct {
	Source    string
	Price     float64
	Timestamp int64
}

// QualityMetrics exposes per-feed consensus health for monitoring.
type QualityMetrics struct {
	Feed            FeedID           `json:"feed"`
	State           FeedState        `json:"state"`
	ConsensusScore  float64          `json:"consensus_score"`
	SourceAgeMillis map[string]int64 `json:"source_age_ms"`
	LastUpdated     int64            `json:"last_updated,omitempty"`
}
