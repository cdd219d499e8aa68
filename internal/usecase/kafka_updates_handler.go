package usecase

import (
	"context"
	"encoding/json"
	"time"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	mid "OracleFeed/internal/middleware"
	pkgkafka "OracleFeed/pkg/kafka"
	"OracleFeed/pkg/util"
)

// KafkaUpdatesHandler consumes source price updates published to Kafka by
// off-process collectors and feeds them through the same ingest pipeline the
// live adapters use.
type KafkaUpdatesHandler struct {
	topic   string
	pipe    *mid.IngestPipeline
	metrics domrepo.Metrics
}

func NewKafkaUpdatesHandler(topic string, pipe *mid.IngestPipeline, metrics domrepo.Metrics) *KafkaUpdatesHandler {
	return &KafkaUpdatesHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaUpdatesHandler) Topic() string { return h.topic }

// incoming message schema: {category, symbol, price, t, source, v, confidence}
func (h *KafkaUpdatesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Category   string  `json:"category"`
		Symbol     string  `json:"symbol"`
		Price      float64 `json:"price"`
		T          int64   `json:"t"`
		Source     string  `json:"source"`
		V          float64 `json:"v"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts := util.FromMillis(m.T).UnixMilli()

	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(util.FromMillis(m.T)).Seconds())

	feed := models.NewFeedID(models.ParseCategory(m.Category), util.NormalizePair(m.Symbol))
	u := &models.PriceUpdate{
		Symbol:     feed.Name,
		Price:      m.Price,
		Timestamp:  ts,
		Source:     m.Source,
		Volume:     m.V,
		Confidence: m.Confidence,
	}
	if err := h.pipe.Process(ctx, feed, u); err != nil {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaUpdatesHandler)(nil)
