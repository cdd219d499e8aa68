package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	"OracleFeed/internal/service/ratelimit"
)

// Proc is the minimal downstream interface the pipeline needs; the
// orchestrator satisfies it.
type Proc interface {
	ProcessPriceUpdate(ctx context.Context, feed models.FeedID, u *models.PriceUpdate) (*models.AggregatedPrice, error)
}

// IngestPipeline sits between the exchange adapters and the orchestrator.
// It drops structurally hopeless ticks early, throttles chatty sources per
// feed, and buffers updates when the downstream errors so a transient fault
// does not lose the stream.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	maxRPS  float64
	bufSize int
	bufCh   chan bufferedUpdate
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// optional normalization hook, e.g. quote-alias rewrites
	transform func(*models.PriceUpdate) *models.PriceUpdate
}

type bufferedUpdate struct {
	feed models.FeedID
	u    *models.PriceUpdate
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max updates per second per source and feed.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a normalization hook applied before throttling.
func WithTransform(fn func(*models.PriceUpdate) *models.PriceUpdate) PipelineOption {
	return func(p *IngestPipeline) { p.transform = fn }
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:    proc,
		metrics: metrics,
		limiter: ratelimit.New(),
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan bufferedUpdate, p.bufSize)
	return p
}

// Start launches background flushing of buffered updates.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case b := <-p.bufCh:
				if b.u == nil {
					continue
				}
				if _, err := p.proc.ProcessPriceUpdate(ctx, b.feed, b.u); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.recordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- b:
					default:
						p.recordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process screens, throttles and forwards one update, buffering on downstream
// errors. Structurally hopeless ticks are dropped here so the validator's
// statistical machinery never sees them.
func (p *IngestPipeline) Process(ctx context.Context, feed models.FeedID, u *models.PriceUpdate) error {
	start := time.Now()
	if err := screen(u); err != nil {
		p.recordError("pipeline_screen")
		return err
	}
	if p.transform != nil {
		u = p.transform(u)
		if err := screen(u); err != nil {
			p.recordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.Allow(u.Source+":"+feed.Key(), p.maxRPS, p.maxRPS) {
		// throttled; record and drop silently
		p.recordError("pipeline_throttle")
		return nil
	}

	if _, err := p.proc.ProcessPriceUpdate(ctx, feed, u); err != nil {
		p.recordError("pipeline_process")
		select {
		case p.bufCh <- bufferedUpdate{feed: feed, u: u}:
		default:
			p.recordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *IngestPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

// screen rejects updates too broken to be worth validating.
func screen(u *models.PriceUpdate) error {
	if u == nil {
		return fmt.Errorf("update nil")
	}
	if u.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if u.Source == "" {
		return fmt.Errorf("source empty")
	}
	if u.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if u.Price < 0 || u.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	return nil
}
