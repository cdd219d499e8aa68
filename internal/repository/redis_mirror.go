package repository

import (
	"context"
	"time"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	pkgcache "OracleFeed/pkg/cache"
)

// RedisMirror implements Mirror over the shared cache service so external
// readers (dashboards, sidecars) can follow consensus without hitting the
// API. Values expire on their own; a missed write just leaves the previous
// value until then.
type RedisMirror struct {
	cache  pkgcache.Service
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a best-effort consensus mirror.
func NewRedisMirror(c pkgcache.Service, prefix string, ttl time.Duration) domrepo.Mirror {
	if prefix == "" {
		prefix = "oraclefeed"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisMirror{cache: c, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) MirrorPrice(ctx context.Context, p *models.AggregatedPrice) error {
	key := pkgcache.GenerateKeyWithParams(m.prefix, "price", p.Symbol)
	return m.cache.Set(ctx, key, p, m.ttl)
}

func (m *RedisMirror) MirrorRound(ctx context.Context, feed models.FeedID, round int64, p *models.AggregatedPrice) error {
	key := pkgcache.GenerateKeyWithParams(m.prefix, "round", feed.Key(), round)
	return m.cache.Set(ctx, key, p, m.ttl)
}
