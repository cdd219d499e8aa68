package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Evictions       uint64  `json:"evictions"`
	Expired         uint64  `json:"expired"`
	Size            int     `json:"size"`
	HitRate         float64 `json:"hit_rate"`
	AvgGetLatencyMs float64 `json:"avg_get_latency_ms"`
	AvgSetLatencyMs float64 `json:"avg_set_latency_ms"`
}

// statsCounters accumulates hit/miss/eviction counts and exponentially
// smoothed get/set latencies.
type statsCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64

	mu     sync.Mutex
	getEMA float64
	setEMA float64
}

func (s *statsCounters) observeGet(d time.Duration) {
	s.mu.Lock()
	s.getEMA = ema(s.getEMA, d)
	s.mu.Unlock()
}

func (s *statsCounters) observeSet(d time.Duration) {
	s.mu.Lock()
	s.setEMA = ema(s.setEMA, d)
	s.mu.Unlock()
}

func ema(prev float64, d time.Duration) float64 {
	ms := float64(d.Microseconds()) / 1000.0
	if prev == 0 {
		return ms
	}
	return emaAlpha*ms + (1-emaAlpha)*prev
}

// GetStats snapshots the counters.
func (c *RealTime) GetStats() Stats {
	hits := c.stats.hits.Load()
	misses := c.stats.misses.Load()

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	c.stats.mu.Lock()
	getEMA, setEMA := c.stats.getEMA, c.stats.setEMA
	c.stats.mu.Unlock()

	return Stats{
		Hits:            hits,
		Misses:          misses,
		Evictions:       c.stats.evictions.Load(),
		Expired:         c.stats.expired.Load(),
		Size:            c.Len(),
		HitRate:         rate,
		AvgGetLatencyMs: getEMA,
		AvgSetLatencyMs: setEMA,
	}
}
