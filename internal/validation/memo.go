package validation

import (
	"sync"
	"time"

	"OracleFeed/internal/domain/models"
)

type memoEntry struct {
	res models.ValidationResult
	exp time.Time
}

// memoCache is a small bounded TTL cache of validation results keyed by
// source+timestamp. It deduplicates redelivered ticks; TTLs are short enough
// that contextual checks (staleness, cross-source) stay accurate.
type memoCache struct {
	mu      sync.Mutex
	m       map[string]memoEntry
	maxSize int
	ttl     time.Duration
}

func newMemoCache(maxSize int, ttl time.Duration) *memoCache {
	return &memoCache{
		m:       make(map[string]memoEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *memoCache) get(key string, now time.Time) (models.ValidationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return models.ValidationResult{}, false
	}
	if now.After(e.exp) {
		delete(c.m, key)
		return models.ValidationResult{}, false
	}
	return e.res, true
}

func (c *memoCache) put(key string, res models.ValidationResult, now time.Time) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.maxSize {
		c.prune(now)
	}
	c.m[key] = memoEntry{res: res, exp: now.Add(c.ttl)}
}

// prune drops expired entries, falling back to the soonest-expiring ones when
// nothing has expired yet.
func (c *memoCache) prune(now time.Time) {
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
		}
	}
	for len(c.m) >= c.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.m {
			if oldestKey == "" || e.exp.Before(oldest) {
				oldestKey, oldest = k, e.exp
			}
		}
		delete(c.m, oldestKey)
	}
}
