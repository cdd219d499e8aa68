package repository

import (
	"context"

	"OracleFeed/internal/domain/models"
)

// MarketStream is the boundary to one exchange adapter. Implementations own
// the wire protocol and deliver normalized PriceUpdate events.
type MarketStream interface {
	Name() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ConsensusPublisher pushes finished consensus prices to an external bus.
type ConsensusPublisher interface {
	Publish(ctx context.Context, p *models.AggregatedPrice) error
	Close() error
}

// HistorySink records consensus prices for offline analytics. Write-only:
// the serve path never reads from it, and a restart is an in-memory cold start.
type HistorySink interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, p *models.AggregatedPrice) error
	StoreBatch(ctx context.Context, ps []*models.AggregatedPrice) error
	Health(ctx context.Context) error
	Close() error
}

// Mirror replicates current and per-round consensus values to an external
// store so out-of-process readers can follow the feed. Best effort only.
type Mirror interface {
	MirrorPrice(ctx context.Context, p *models.AggregatedPrice) error
	MirrorRound(ctx context.Context, feed models.FeedID, round int64, p *models.AggregatedPrice) error
}

// Exporter is a fan-out hook invoked after every successful aggregation pass.
// Exports are observational and must never block or fail the pipeline.
type Exporter interface {
	Export(ctx context.Context, p *models.AggregatedPrice) error
}

// Metrics records pipeline observability signals.
type Metrics interface {
	RecordUpdateReceived(source, symbol string)
	RecordValidation(feed string, valid bool)
	RecordConsensus(feed string, price, confidence, score float64)
	RecordCacheHit(hit bool)
	RecordEviction(count int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
