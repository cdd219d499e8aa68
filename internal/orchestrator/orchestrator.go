package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"

	"OracleFeed/internal/cache"
	"OracleFeed/internal/consensus"
	"OracleFeed/internal/domain/models"
	"OracleFeed/internal/domain/repository"
	"OracleFeed/internal/validation"
	"OracleFeed/pkg/logger"
)

// Config tunes orchestration behavior around the validate/aggregate core.
type Config struct {
	// SweepInterval drives the periodic staleness sweep.
	SweepInterval time.Duration `yaml:"sweep_interval" default:"1500ms"`

	// SweepFeedBatch bounds how many feeds one sweep tick inspects.
	SweepFeedBatch int `yaml:"sweep_feed_batch" default:"64"`
}

// Subscriber receives every fresh consensus price for a feed. Callbacks for
// one feed are invoked sequentially in subscription order; a panicking
// subscriber is isolated and does not stop delivery to the others.
type Subscriber func(feed models.FeedID, p *models.AggregatedPrice)

// Hooks are optional pipeline lifecycle callbacks.
type Hooks struct {
	ValidationPassed        func(feed models.FeedID, u *models.PriceUpdate)
	ValidationFailed        func(feed models.FeedID, u *models.PriceUpdate, res models.ValidationResult)
	CriticalValidationError func(feed models.FeedID, u *models.PriceUpdate, res models.ValidationResult)
	BatchCompleted          func(feed models.FeedID, processed int)
}

// Orchestrator drives the per-update pipeline: validate against per-feed
// state, fold the update in, re-aggregate, refresh the cache and fan the
// fresh consensus out to subscribers and exporters.
type Orchestrator struct {
	cfg        Config
	validator  *validation.Validator
	aggregator *consensus.Aggregator
	cache      *cache.RealTime

	logger    *logger.Logger
	metrics   repository.Metrics
	publisher repository.ConsensusPublisher
	exporters []repository.Exporter
	hooks     Hooks

	mu        sync.RWMutex
	feeds     map[string]*feedState
	subs      map[string][]subEntry
	nextSubID int64

	sweepCursor int
	stop        chan struct{}
	stopped     sync.Once
	now         func() time.Time
}

type subEntry struct {
	id int64
	fn Subscriber
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublisher attaches a consensus bus publisher. Publishing is best
// effort and never blocks the pipeline.
func WithPublisher(p repository.ConsensusPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithExporters attaches observational fan-out targets.
func WithExporters(es ...repository.Exporter) Option {
	return func(o *Orchestrator) { o.exporters = append(o.exporters, es...) }
}

func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// New wires the orchestrator around its three collaborators.
func New(cfg Config, v *validation.Validator, a *consensus.Aggregator, c *cache.RealTime, opts ...Option) (*Orchestrator, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("orchestrator defaults: %w", err)
	}
	if v == nil || a == nil || c == nil {
		return nil, fmt.Errorf("orchestrator requires validator, aggregator and cache")
	}
	o := &Orchestrator{
		cfg:        cfg,
		validator:  v,
		aggregator: a,
		cache:      c,
		feeds:      make(map[string]*feedState),
		subs:       make(map[string][]subEntry),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RegisterFeed declares a feed and its configured sources. Idempotent;
// re-registering updates the source list without dropping state.
func (o *Orchestrator) RegisterFeed(feed models.FeedID, sources []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if fs, ok := o.feeds[feed.Key()]; ok {
		fs.mu.Lock()
		fs.sources = sources
		fs.mu.Unlock()
		return
	}
	o.feeds[feed.Key()] = newFeedState(feed, sources)
}

// Feeds lists the registered feed ids.
func (o *Orchestrator) Feeds() []models.FeedID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.FeedID, 0, len(o.feeds))
	for _, fs := range o.feeds {
		out = append(out, fs.id)
	}
	return out
}

// feedFor returns the feed's state, lazily registering unknown feeds so an
// adapter racing ahead of configuration does not drop ticks.
func (o *Orchestrator) feedFor(feed models.FeedID) *feedState {
	o.mu.RLock()
	fs, ok := o.feeds[feed.Key()]
	o.mu.RUnlock()
	if ok {
		return fs
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if fs, ok = o.feeds[feed.Key()]; ok {
		return fs
	}
	fs = newFeedState(feed, nil)
	o.feeds[feed.Key()] = fs
	return fs
}

// ProcessPriceUpdate runs one update through validate -> fold -> aggregate ->
// cache -> notify. Returns the fresh consensus, or nil when the update was
// rejected. Bad data is a verdict, not an error; the error return is reserved
// for pipeline faults.
func (o *Orchestrator) ProcessPriceUpdate(ctx context.Context, feed models.FeedID, u *models.PriceUpdate) (*models.AggregatedPrice, error) {
	start := o.now()
	if u != nil && o.metrics != nil {
		o.metrics.RecordUpdateReceived(u.Source, u.Symbol)
	}

	fs := o.feedFor(feed)
	fs.mu.Lock()

	vctx := &validation.Context{
		Feed:              feed,
		Timestamp:         o.now().UnixMilli(),
		HistoricalPrices:  fs.historySnapshot(),
		CrossSourcePrices: fs.crossSourceSnapshot(),
	}
	if u != nil {
		vctx.Source = u.Source
	}
	if fs.last != nil {
		vctx.ConsensusMedian = fs.last.Price
		vctx.HasConsensus = true
	}

	res := o.validator.Validate(u, vctx)
	if o.metrics != nil {
		o.metrics.RecordValidation(feed.Key(), res.IsValid)
	}

	if !res.IsValid {
		fs.mu.Unlock()
		if res.HasCritical() && o.hooks.CriticalValidationError != nil {
			o.hooks.CriticalValidationError(feed, u, res)
		}
		if o.hooks.ValidationFailed != nil {
			o.hooks.ValidationFailed(feed, u, res)
		}
		if o.metrics != nil {
			o.metrics.RecordError("validation")
		}
		if o.logger != nil && u != nil {
			o.logger.Debug("update rejected",
				logger.String("feed", feed.Key()),
				logger.String("source", u.Source),
				logger.Int("issues", len(res.Errors)))
		}
		return nil, nil
	}
	if o.hooks.ValidationPassed != nil {
		o.hooks.ValidationPassed(feed, res.AdjustedUpdate)
	}

	adjusted := res.AdjustedUpdate
	fs.latest[adjusted.Source] = adjusted
	fs.pushHistory(adjusted.Price, o.validator.Config().HistoricalDataWindow)

	agg := o.aggregator.Aggregate(feed, fs.latest, fs.configuredSources())
	if agg == nil {
		fs.mu.Unlock()
		return nil, nil
	}
	fs.last = agg
	// fresh accepted data always revives the feed; a thin quorum shows up in
	// the consensus score, not in the health state
	fs.state = models.FeedLive

	o.cache.SetPrice(feed, cacheEntry(agg))
	o.cache.InvalidateOnPriceUpdate(feed)

	ticket := fs.notifyTicket
	fs.notifyTicket++
	fs.mu.Unlock()

	// deliver outside the feed lock, in ticket order, so subscribers observe
	// consensus prices in production order and may reenter the read APIs
	fs.notifyMu.Lock()
	for fs.notifyServed != ticket {
		fs.notifyCond.Wait()
	}
	fs.notifyMu.Unlock()
	o.notify(feed, agg)
	fs.notifyMu.Lock()
	fs.notifyServed++
	fs.notifyCond.Broadcast()
	fs.notifyMu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordConsensus(feed.Key(), agg.Price, agg.Confidence, agg.ConsensusScore)
		o.metrics.RecordLatency("process_update", o.now().Sub(start).Seconds())
	}
	o.export(ctx, agg)
	return agg, nil
}

// ProcessBatch folds a slice of updates for one feed in order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, feed models.FeedID, updates []*models.PriceUpdate) (*models.AggregatedPrice, error) {
	var last *models.AggregatedPrice
	for _, u := range updates {
		agg, err := o.ProcessPriceUpdate(ctx, feed, u)
		if err != nil {
			return last, err
		}
		if agg != nil {
			last = agg
		}
	}
	if o.hooks.BatchCompleted != nil {
		o.hooks.BatchCompleted(feed, len(updates))
	}
	return last, nil
}

// lookupFeed is the read-path counterpart of feedFor: it never registers, so
// querying an arbitrary unknown feed cannot grow the feed table.
func (o *Orchestrator) lookupFeed(feed models.FeedID) *feedState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.feeds[feed.Key()]
}

// GetAggregatedPrice returns the cached consensus for the feed, or nil when
// no fresh value exists. The cache is the freshness gate: a miss means the
// feed has no currently valid consensus.
func (o *Orchestrator) GetAggregatedPrice(feed models.FeedID) *models.AggregatedPrice {
	e := o.cache.GetPrice(feed)
	if e == nil {
		return nil
	}
	return fromCacheEntry(feed, e)
}

// SnapshotVotingRound freezes the feed's current consensus under the given
// round id and returns it. Returns nil when the feed has no consensus yet.
func (o *Orchestrator) SnapshotVotingRound(feed models.FeedID, round int64) *models.AggregatedPrice {
	fs := o.lookupFeed(feed)
	if fs == nil {
		return nil
	}
	fs.mu.Lock()
	agg := fs.last
	fs.mu.Unlock()
	if agg == nil {
		return nil
	}
	o.cache.SetForVotingRound(feed, round, cacheEntry(agg))
	return agg
}

// GetVotingRoundPrice returns the frozen consensus for (feed, round), or nil.
func (o *Orchestrator) GetVotingRoundPrice(feed models.FeedID, round int64) *models.AggregatedPrice {
	e := o.cache.GetForVotingRound(feed, round)
	if e == nil {
		return nil
	}
	return fromCacheEntry(feed, e)
}

// Quality reports the feed's health for monitoring. Unknown feeds read as
// cold without being registered.
func (o *Orchestrator) Quality(feed models.FeedID) *models.QualityMetrics {
	fs := o.lookupFeed(feed)
	if fs == nil {
		return &models.QualityMetrics{Feed: feed, State: models.FeedCold}
	}
	now := o.now()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	ages := make(map[string]int64, len(fs.latest))
	for src, u := range fs.latest {
		ages[src] = u.AgeMillis(now)
	}
	q := &models.QualityMetrics{
		Feed:            fs.id,
		State:           fs.state,
		SourceAgeMillis: ages,
	}
	if fs.last != nil {
		q.ConsensusScore = fs.last.ConsensusScore
		q.LastUpdated = fs.last.Timestamp
	}
	return q
}

// Subscribe registers a consensus callback for the feed and returns its
// unsubscribe function.
func (o *Orchestrator) Subscribe(feed models.FeedID, fn Subscriber) func() {
	o.mu.Lock()
	o.nextSubID++
	id := o.nextSubID
	key := feed.Key()
	o.subs[key] = append(o.subs[key], subEntry{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		entries := o.subs[key]
		for i, e := range entries {
			if e.id == id {
				o.subs[key] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (o *Orchestrator) notify(feed models.FeedID, agg *models.AggregatedPrice) {
	o.mu.RLock()
	entries := o.subs[feed.Key()]
	subs := make([]subEntry, len(entries))
	copy(subs, entries)
	o.mu.RUnlock()

	for _, s := range subs {
		o.invoke(feed, s, agg)
	}
}

// invoke isolates a single subscriber call so one panic cannot take down
// the pipeline or starve the remaining subscribers.
func (o *Orchestrator) invoke(feed models.FeedID, s subEntry, agg *models.AggregatedPrice) {
	defer func() {
		if r := recover(); r != nil {
			if o.metrics != nil {
				o.metrics.RecordError("subscriber_panic")
			}
			if o.logger != nil {
				o.logger.Error("subscriber panicked",
					logger.String("feed", feed.Key()),
					logger.Any("panic", r))
			}
		}
	}()
	s.fn(feed, agg)
}

// export fans the fresh consensus out to the bus and exporters off the hot
// path. Failures are counted and logged, never propagated.
func (o *Orchestrator) export(ctx context.Context, agg *models.AggregatedPrice) {
	if o.publisher == nil && len(o.exporters) == 0 {
		return
	}
	go func() {
		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, agg); err != nil {
				if o.metrics != nil {
					o.metrics.RecordError("publish")
				}
				if o.logger != nil {
					o.logger.Warn("consensus publish failed",
						logger.String("symbol", agg.Symbol),
						logger.Error(err))
				}
			}
		}
		for _, e := range o.exporters {
			if err := e.Export(ctx, agg); err != nil {
				if o.metrics != nil {
					o.metrics.RecordError("export")
				}
				if o.logger != nil {
					o.logger.Warn("consensus export failed",
						logger.String("symbol", agg.Symbol),
						logger.Error(err))
				}
			}
		}
	}()
}

// Start launches the periodic staleness sweep.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.sweepLoop(ctx)
}

// Close stops the sweep loop.
func (o *Orchestrator) Close() {
	o.stopped.Do(func() { close(o.stop) })
}

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	interval := o.cfg.SweepInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			o.sweepStale()
		}
	}
}

// sweepStale downgrades feeds whose every source has gone quiet past the
// staleness bound. Per-source entries are retained: recency decay fades
// them out of the fusion and the validator re-gates fresh ticks, so the
// sweep only observes ages, it never deletes state. Work per tick is
// bounded by SweepFeedBatch; the cursor rotates so every feed is reached
// eventually.
func (o *Orchestrator) sweepStale() {
	maxAge := o.validator.Config().MaxAge.Milliseconds()
	now := o.now()

	o.mu.RLock()
	all := make([]*feedState, 0, len(o.feeds))
	for _, fs := range o.feeds {
		all = append(all, fs)
	}
	o.mu.RUnlock()
	if len(all) == 0 {
		return
	}

	batch := o.cfg.SweepFeedBatch
	if batch <= 0 || batch > len(all) {
		batch = len(all)
	}
	for i := 0; i < batch; i++ {
		fs := all[(o.sweepCursor+i)%len(all)]
		fs.mu.Lock()
		if fs.state == models.FeedLive && fs.allStale(now, maxAge) {
			fs.state = models.FeedDegraded
			if o.logger != nil {
				o.logger.Warn("feed degraded, all sources stale",
					logger.String("feed", fs.id.Key()))
			}
		}
		fs.mu.Unlock()
	}
	o.sweepCursor = (o.sweepCursor + batch) % len(all)
}

func cacheEntry(agg *models.AggregatedPrice) cache.Entry {
	return cache.Entry{
		Value:      agg.Price,
		Timestamp:  agg.Timestamp,
		Sources:    agg.Sources,
		Confidence: agg.Confidence,
		Score:      agg.ConsensusScore,
	}
}

func fromCacheEntry(feed models.FeedID, e *cache.Entry) *models.AggregatedPrice {
	return &models.AggregatedPrice{
		Symbol:         feed.Name,
		Price:          e.Value,
		Timestamp:      e.Timestamp,
		Sources:        e.Sources,
		Confidence:     e.Confidence,
		ConsensusScore: e.Score,
	}
}
