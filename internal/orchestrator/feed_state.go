package orchestrator

import (
	"sync"
	"time"

	"OracleFeed/internal/domain/models"
)

// feedState is everything the orchestrator tracks for one feed. All fields
// are guarded by mu; per-feed updates are fully serialized while distinct
// feeds proceed in parallel.
type feedState struct {
	mu sync.Mutex

	id      models.FeedID
	sources []string // configured source names

	// latest holds the newest accepted (adjusted) update per source. Entries
	// are retained for as long as the feed is configured; staleness is a
	// weighting concern, not a deletion concern.
	latest map[string]*models.PriceUpdate

	// history is the rolling window of accepted prices, oldest first.
	history []float64

	last  *models.AggregatedPrice
	state models.FeedState

	// Subscriber delivery runs outside mu so callbacks may reenter the read
	// APIs. Each aggregation pass takes a ticket under mu and deliveries are
	// served strictly in ticket order.
	notifyMu     sync.Mutex
	notifyCond   *sync.Cond
	notifyTicket uint64
	notifyServed uint64
}

func newFeedState(id models.FeedID, sources []string) *feedState {
	fs := &feedState{
		id:      id,
		sources: sources,
		latest:  make(map[string]*models.PriceUpdate),
		state:   models.FeedCold,
	}
	fs.notifyCond = sync.NewCond(&fs.notifyMu)
	return fs
}

// configuredSources is the denominator of the consensus score. For feeds
// registered without an explicit source list it falls back to the number of
// sources ever observed.
func (fs *feedState) configuredSources() int {
	if n := len(fs.sources); n > 0 {
		return n
	}
	if n := len(fs.latest); n > 0 {
		return n
	}
	return 1
}

// pushHistory appends an accepted price, trimming to the window bound.
func (fs *feedState) pushHistory(price float64, window int) {
	fs.history = append(fs.history, price)
	if window > 0 && len(fs.history) > window {
		fs.history = fs.history[len(fs.history)-window:]
	}
}

// historySnapshot copies the window so validation never aliases live state.
func (fs *feedState) historySnapshot() []float64 {
	if len(fs.history) == 0 {
		return nil
	}
	out := make([]float64, len(fs.history))
	copy(out, fs.history)
	return out
}

// allStale reports whether every known source is older than maxAgeMillis.
// False for feeds with no sources at all; those are cold, not degraded.
func (fs *feedState) allStale(now time.Time, maxAgeMillis int64) bool {
	if len(fs.latest) == 0 {
		return false
	}
	for _, u := range fs.latest {
		if u.AgeMillis(now) <= maxAgeMillis {
			return false
		}
	}
	return true
}

// crossSourceSnapshot lists the latest price per source for peer comparison.
func (fs *feedState) crossSourceSnapshot() []models.SourcePrice {
	if len(fs.latest) == 0 {
		return nil
	}
	out := make([]models.SourcePrice, 0, len(fs.latest))
	for src, u := range fs.latest {
		out = append(out, models.SourcePrice{Source: src, Price: u.Price, Timestamp: u.Timestamp})
	}
	return out
}
