package usecase

import (
	"context"

	"OracleFeed/internal/domain/models"
	drepo "OracleFeed/internal/domain/repository"
	mid "OracleFeed/internal/middleware"
	"OracleFeed/pkg/logger"
)

// UpdateCollector connects the exchange adapters to the ingest pipeline. One
// collector drives all configured streams; each stream gets its own consume
// goroutine so one stalled venue cannot block the others.
type UpdateCollector struct {
	streams []drepo.MarketStream
	pipe    *mid.IngestPipeline
	metrics drepo.Metrics
	logger  *logger.Logger

	// byPair resolves a normalized pair name to its configured feed id.
	byPair map[string]models.FeedID
}

// NewUpdateCollector creates a collector routing stream ticks to the feeds.
func NewUpdateCollector(streams []drepo.MarketStream, pipe *mid.IngestPipeline, metrics drepo.Metrics, lgr *logger.Logger, feeds []models.FeedID) *UpdateCollector {
	byPair := make(map[string]models.FeedID, len(feeds))
	for _, f := range feeds {
		byPair[f.Name] = f
	}
	return &UpdateCollector{
		streams: streams,
		pipe:    pipe,
		metrics: metrics,
		logger:  lgr,
		byPair:  byPair,
	}
}

// IsConnected reports whether every stream is connected.
func (c *UpdateCollector) IsConnected() bool {
	for _, s := range c.streams {
		if !s.IsConnected() {
			return false
		}
	}
	return len(c.streams) > 0
}

// Start connects and subscribes every stream and begins consuming.
func (c *UpdateCollector) Start(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	for _, s := range c.streams {
		if err := s.Connect(ctx); err != nil {
			return err
		}
		if err := s.Subscribe(ctx); err != nil {
			return err
		}
		uCh, errCh := s.Read(ctx)
		go c.consume(ctx, s, uCh, errCh)
	}
	return nil
}

func (c *UpdateCollector) consume(ctx context.Context, s drepo.MarketStream, uCh <-chan *models.PriceUpdate, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordError("stream")
				}
				if c.logger != nil {
					c.logger.Warn("stream error, reconnecting",
						logger.String("exchange", s.Name()),
						logger.Error(err))
				}
				if rerr := s.Reconnect(ctx); rerr == nil {
					uCh, errCh = s.Read(ctx)
				}
			}
		case u := <-uCh:
			if u == nil {
				continue
			}
			_ = c.pipe.Process(ctx, c.resolve(u.Symbol), u)
		}
	}
}

// resolve maps a normalized pair to its configured feed, defaulting to a
// crypto feed for pairs that arrive before configuration.
func (c *UpdateCollector) resolve(pair string) models.FeedID {
	if f, ok := c.byPair[pair]; ok {
		return f
	}
	return models.NewFeedID(models.CategoryCrypto, pair)
}

// Shutdown stops the pipeline and closes every stream.
func (c *UpdateCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	var first error
	for _, s := range c.streams {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
