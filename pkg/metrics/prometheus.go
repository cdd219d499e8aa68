package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	updatesReceived     *prometheus.CounterVec
	validationsTotal    *prometheus.CounterVec
	consensusPrice      *prometheus.GaugeVec
	consensusConfidence *prometheus.GaugeVec
	consensusScore      *prometheus.GaugeVec
	cacheRequests       *prometheus.CounterVec
	evictionsTotal      prometheus.Counter
	errorsTotal         *prometheus.CounterVec
	latency             *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		updatesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclefeed_updates_received_total",
				Help: "Total number of price updates received from sources",
			},
			[]string{"source", "symbol"},
		),
		validationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclefeed_validations_total",
				Help: "Validation verdicts by feed and outcome",
			},
			[]string{"feed", "outcome"},
		),
		consensusPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oraclefeed_consensus_price",
				Help: "Last fused consensus price for a feed",
			},
			[]string{"feed"},
		),
		consensusConfidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oraclefeed_consensus_confidence",
				Help: "Confidence of the last consensus price",
			},
			[]string{"feed"},
		),
		consensusScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oraclefeed_consensus_score",
				Help: "Fraction of configured sources contributing to consensus",
			},
			[]string{"feed"},
		),
		cacheRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclefeed_cache_requests_total",
				Help: "Real-time cache lookups by result",
			},
			[]string{"result"},
		),
		evictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oraclefeed_cache_evictions_total",
				Help: "Entries evicted from the real-time cache",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oraclefeed_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oraclefeed_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordUpdateReceived counts an inbound source update.
func (r *Recorder) RecordUpdateReceived(source, symbol string) {
	r.updatesReceived.WithLabelValues(source, symbol).Inc()
}

// RecordValidation counts a validation verdict for a feed.
func (r *Recorder) RecordValidation(feed string, valid bool) {
	outcome := "passed"
	if !valid {
		outcome = "failed"
	}
	r.validationsTotal.WithLabelValues(feed, outcome).Inc()
}

// RecordConsensus records the outcome of one aggregation pass.
func (r *Recorder) RecordConsensus(feed string, price, confidence, score float64) {
	r.consensusPrice.WithLabelValues(feed).Set(price)
	r.consensusConfidence.WithLabelValues(feed).Set(confidence)
	r.consensusScore.WithLabelValues(feed).Set(score)
}

// RecordCacheHit counts a cache lookup result.
func (r *Recorder) RecordCacheHit(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}

// RecordEviction counts evicted cache entries.
func (r *Recorder) RecordEviction(count int) {
	r.evictionsTotal.Add(float64(count))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
