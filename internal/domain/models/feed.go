package models

import (
	"fmt"
	"strings"
)

// FeedCategory groups feeds by asset class.
type FeedCategory string

const (
	CategoryCrypto    FeedCategory = "crypto"
	CategoryForex     FeedCategory = "forex"
	CategoryCommodity FeedCategory = "commodity"
	CategoryStock     FeedCategory = "stock"
)

// ParseCategory maps a config/query string to a category, defaulting to crypto.
func ParseCategory(s string) FeedCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forex":
		return CategoryForex
	case "commodity":
		return CategoryCommodity
	case "stock":
		return CategoryStock
	default:
		return CategoryCrypto
	}
}

// FeedID identifies a tradable pair, e.g. {crypto, BTC/USD}. It is the key for
// all per-feed state and is stable for the process lifetime.
type FeedID struct {
	Category FeedCategory `json:"category"`
	Name     string       `json:"name"` // "BASE/QUOTE"
}

// NewFeedID builds a feed id with a normalized upper-case pair name.
func NewFeedID(category FeedCategory, name string) FeedID {
	return FeedID{Category: category, Name: strings.ToUpper(strings.TrimSpace(name))}
}

// Key returns the canonical map/cache key for the feed.
func (f FeedID) Key() string {
	return fmt.Sprintf("%s:%s", f.Category, f.Name)
}

func (f FeedID) String() string { return f.Key() }

// FeedState is the informal per-feed health state machine:
// COLD (never reported) -> LIVE (>=1 fresh source) -> DEGRADED (all stale).
type FeedState string

const (
	FeedCold     FeedState = "cold"
	FeedLive     FeedState = "live"
	FeedDegraded FeedState = "degraded"
)
