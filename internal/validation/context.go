package validation

import "OracleFeed/internal/domain/models"

// Context is a read-only snapshot of per-feed state built fresh for each
// validation call by the orchestrator. The validator never mutates it.
type Context struct {
	Feed      models.FeedID
	Timestamp int64
	Source    string

	// HistoricalPrices is the feed's rolling window of accepted prices,
	// oldest first, bounded by Config.HistoricalDataWindow.
	HistoricalPrices []float64

	// CrossSourcePrices are other sources' latest prices for the same feed
	// within Config.CrossSourceWindow. May include the update's own source;
	// the cross-source check excludes it.
	CrossSourcePrices []models.SourcePrice

	// ConsensusMedian is the feed's current consensus price, when known.
	ConsensusMedian float64
	HasConsensus    bool
}
