package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"

	"OracleFeed/internal/domain/models"
	"OracleFeed/internal/domain/repository"
	"OracleFeed/pkg/logger"
)

// Config tunes the real-time consensus cache.
type Config struct {
	// TTL is the base lifetime of an entry. Adaptive scaling never exceeds
	// ttlCeilingFactor times this value.
	TTL time.Duration `yaml:"ttl" default:"5s"`

	// MaxSize bounds the entry count. Eviction runs before any insert that
	// would exceed it.
	MaxSize int `yaml:"max_size" default:"1000"`

	// EvictionPolicy biases the eviction score: lru, lfu, or ttl.
	EvictionPolicy string `yaml:"eviction_policy" default:"lru"`

	// MemoryLimit bounds the approximate retained bytes; 0 disables it.
	MemoryLimit int64 `yaml:"memory_limit" default:"0"`

	// Compression is accepted for config compatibility; entries are small
	// fixed-size structs so it is a no-op here.
	Compression bool `yaml:"compression"`

	// CleanupInterval drives the background sweep of expired entries.
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1500ms"`
}

const (
	// ttlCeilingFactor caps adaptive TTL extension over the base TTL.
	ttlCeilingFactor = 1.5

	// hotAccessRate is the access rate (per second) at which an entry earns
	// the maximum TTL boost.
	hotAccessRate = 2.0

	// evictFraction of entries is dropped in one eviction pass.
	evictFraction = 0.15

	// sweepBatchCap bounds how many expired entries one janitor tick purges,
	// so cleanup never holds the pipeline hostage.
	sweepBatchCap = 256

	// emaAlpha smooths the latency moving averages.
	emaAlpha = 0.1

	// approxEntryBytes estimates memory cost per entry for MemoryLimit.
	approxEntryBytes = 160
)

// Entry is the externally visible cached consensus value.
type Entry struct {
	Value      float64  `json:"value"`
	Timestamp  int64    `json:"timestamp"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	Score      float64  `json:"consensus_score"`
	Round      int64    `json:"voting_round,omitempty"`
}

// item wraps an entry with eviction and adaptive-TTL metadata. Invisible
// outside the cache.
type item struct {
	entry        Entry
	expiresAt    time.Time
	origTTL      time.Duration
	accessCount  int64
	lastAccessed time.Time
	createdAt    time.Time
}

// RealTime is a capacity- and memory-bounded store of the latest consensus
// value per feed and per voting round, with adaptive TTL and score-based
// batch eviction. It never returns errors for missing keys and never grows
// past MaxSize.
type RealTime struct {
	mu      sync.RWMutex
	items   map[string]*item
	cfg     Config
	logger  *logger.Logger
	metrics repository.Metrics
	stats   statsCounters
	stop    chan struct{}
	stopped sync.Once
	now     func() time.Time
}

// Option configures the cache.
type Option func(*RealTime)

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *RealTime) { c.logger = l }
}

// WithMetrics attaches a metrics recorder for hit/miss/eviction counters.
func WithMetrics(m repository.Metrics) Option {
	return func(c *RealTime) { c.metrics = m }
}

// NewRealTime creates the cache and starts its background sweep.
func NewRealTime(cfg Config, opts ...Option) (*RealTime, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("cache defaults: %w", err)
	}
	c := &RealTime{
		items: make(map[string]*item),
		cfg:   cfg,
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.janitor()
	return c, nil
}

// Close stops the background sweep.
func (c *RealTime) Close() {
	c.stopped.Do(func() { close(c.stop) })
}

// --- key helpers ---

func priceKey(feed models.FeedID) string {
	return "price:" + feed.Key()
}

func roundKey(feed models.FeedID, round int64) string {
	return "round:" + feed.Key() + ":" + strconv.FormatInt(round, 10)
}

func roundPrefix(feed models.FeedID) string {
	return "round:" + feed.Key() + ":"
}

// --- generic contract ---

// Set stores an entry under key with the requested TTL, scaled up for hot
// keys (bounded by the TTL ceiling) and clamped so cold feeds expire
// promptly. Eviction runs first if the cache is at capacity.
func (c *RealTime) Set(key string, entry Entry, ttl time.Duration) {
	start := c.now()
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.evictIfNeeded()
	}

	effective := c.adaptTTL(key, ttl)
	now := c.now()
	c.items[key] = &item{
		entry:        entry,
		expiresAt:    now.Add(effective),
		origTTL:      effective,
		lastAccessed: now,
		createdAt:    now,
	}
	c.mu.Unlock()

	c.stats.observeSet(c.now().Sub(start))
}

// Get returns the entry for key, or nil when absent or expired. Expired
// entries are opportunistically deleted.
func (c *RealTime) Get(key string) *Entry {
	start := c.now()
	now := start

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.miss(start)
		return nil
	}
	if now.After(it.expiresAt) {
		c.mu.Lock()
		// re-check under the write lock; a fresh Set may have replaced it
		if cur, still := c.items[key]; still && now.After(cur.expiresAt) {
			delete(c.items, key)
			c.stats.expired.Add(1)
		}
		c.mu.Unlock()
		c.miss(start)
		return nil
	}

	c.mu.Lock()
	it.accessCount++
	it.lastAccessed = now
	e := it.entry
	c.mu.Unlock()

	c.stats.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheHit(true)
	}
	c.stats.observeGet(c.now().Sub(start))
	return &e
}

// Invalidate removes a single key. Missing keys are a no-op.
func (c *RealTime) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear drops everything.
func (c *RealTime) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*item)
	c.mu.Unlock()
}

// Len returns the current entry count, expired-but-unswept included.
func (c *RealTime) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// --- feed-aware contract ---

// SetPrice overwrites the feed's current-price slot.
func (c *RealTime) SetPrice(feed models.FeedID, entry Entry) {
	c.Set(priceKey(feed), entry, c.cfg.TTL)
}

// GetPrice returns the feed's current consensus entry, or nil.
func (c *RealTime) GetPrice(feed models.FeedID) *Entry {
	return c.Get(priceKey(feed))
}

// SetForVotingRound stores a point-in-time snapshot keyed (feed, round),
// independent of the current-price slot.
func (c *RealTime) SetForVotingRound(feed models.FeedID, round int64, entry Entry) {
	entry.Round = round
	c.Set(roundKey(feed, round), entry, c.cfg.TTL)
}

// GetForVotingRound returns the snapshot for (feed, round), or nil.
func (c *RealTime) GetForVotingRound(feed models.FeedID, round int64) *Entry {
	return c.Get(roundKey(feed, round))
}

// InvalidateOnPriceUpdate drops the feed's voting-round snapshots after a
// fresh consensus. The current-price slot and other feeds are untouched, and
// the removal happens off the caller's path: round-cache invalidation is
// maintenance, not part of the read/write critical path.
func (c *RealTime) InvalidateOnPriceUpdate(feed models.FeedID) {
	prefix := roundPrefix(feed)

	c.mu.RLock()
	stale := make([]string, 0, 4)
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			stale = append(stale, key)
		}
	}
	c.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	go func() {
		c.mu.Lock()
		for _, key := range stale {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}()
}

// --- adaptive TTL ---

// adaptTTL scales the requested TTL by the key's historical access rate so
// hot feeds survive longer between recomputations. Bounded by the ceiling.
// Caller holds the write lock.
func (c *RealTime) adaptTTL(key string, requested time.Duration) time.Duration {
	ceiling := time.Duration(float64(c.cfg.TTL) * ttlCeilingFactor)

	prev, ok := c.items[key]
	if !ok {
		if requested > ceiling {
			return ceiling
		}
		return requested
	}

	boost := 0.5 * minf(c.accessRate(prev)/hotAccessRate, 1)
	effective := time.Duration(float64(requested) * (1 + boost))
	if effective > ceiling {
		return ceiling
	}
	return effective
}

// accessRate is the entry's accesses per second over its lifetime.
func (c *RealTime) accessRate(it *item) float64 {
	alive := c.now().Sub(it.createdAt).Seconds()
	if alive < 0.001 {
		alive = 0.001
	}
	return float64(it.accessCount) / alive
}

// --- eviction ---

// evictIfNeeded runs a batch eviction pass when the cache is at capacity
// (by entry count or approximate memory). Caller holds the write lock.
func (c *RealTime) evictIfNeeded() {
	over := len(c.items) >= c.cfg.MaxSize
	if !over && c.cfg.MemoryLimit > 0 {
		over = int64(len(c.items)+1)*approxEntryBytes > c.cfg.MemoryLimit
	}
	if !over {
		return
	}

	batch := int(float64(len(c.items)) * evictFraction)
	if batch < 1 {
		batch = 1
	}

	type scored struct {
		key   string
		score float64
	}
	now := c.now()
	candidates := make([]scored, 0, len(c.items))
	for key, it := range c.items {
		candidates = append(candidates, scored{key: key, score: c.evictionScore(it, now)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	for i := 0; i < batch && i < len(candidates); i++ {
		delete(c.items, candidates[i].key)
	}
	c.stats.evictions.Add(uint64(batch))
	if c.metrics != nil {
		c.metrics.RecordEviction(batch)
	}
	if c.logger != nil {
		c.logger.Debug("cache eviction pass", logger.Int("evicted", batch), logger.Int("remaining", len(c.items)))
	}
}

// evictionScore combines access frequency and freshness; the lowest-scored
// entries go first. The configured policy biases the weighting.
func (c *RealTime) evictionScore(it *item, now time.Time) float64 {
	rate := c.accessRate(it)

	fresh := 0.0
	if it.origTTL > 0 {
		remaining := it.expiresAt.Sub(now)
		if remaining > 0 {
			fresh = float64(remaining) / float64(it.origTTL)
		}
	}

	var wFreq, wFresh float64
	switch strings.ToLower(c.cfg.EvictionPolicy) {
	case "lfu":
		wFreq, wFresh = 0.8, 0.2
	case "ttl":
		wFreq, wFresh = 0.2, 0.8
	default: // lru
		wFreq, wFresh = 0.5, 0.5
	}
	return wFreq*minf(rate/hotAccessRate, 1) + wFresh*fresh
}

// --- background sweep ---

func (c *RealTime) janitor() {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep purges up to sweepBatchCap expired entries per tick.
func (c *RealTime) sweep() {
	now := c.now()
	c.mu.Lock()
	purged := 0
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			purged++
			if purged >= sweepBatchCap {
				break
			}
		}
	}
	c.mu.Unlock()
	if purged > 0 {
		c.stats.expired.Add(uint64(purged))
	}
}

func (c *RealTime) miss(start time.Time) {
	c.stats.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheHit(false)
	}
	c.stats.observeGet(c.now().Sub(start))
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
