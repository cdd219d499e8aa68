package repository

import (
	"context"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	"OracleFeed/pkg/queue"
)

// HistoryExporter adapts a HistorySink to the Exporter fan-out.
type HistoryExporter struct {
	sink domrepo.HistorySink
}

func NewHistoryExporter(sink domrepo.HistorySink) domrepo.Exporter {
	return &HistoryExporter{sink: sink}
}

func (e *HistoryExporter) Export(ctx context.Context, p *models.AggregatedPrice) error {
	return e.sink.Store(ctx, p)
}

// MirrorExporter adapts a Mirror to the Exporter fan-out.
type MirrorExporter struct {
	mirror domrepo.Mirror
}

func NewMirrorExporter(m domrepo.Mirror) domrepo.Exporter {
	return &MirrorExporter{mirror: m}
}

func (e *MirrorExporter) Export(ctx context.Context, p *models.AggregatedPrice) error {
	return e.mirror.MirrorPrice(ctx, p)
}

// QueueExporter hands consensus prices to the write-behind queue, decoupling
// slow export targets from the aggregation path entirely.
type QueueExporter struct {
	q       queue.QueueService
	msgType string
}

func NewQueueExporter(q queue.QueueService, msgType string) domrepo.Exporter {
	if msgType == "" {
		msgType = "consensus_price"
	}
	return &QueueExporter{q: q, msgType: msgType}
}

func (e *QueueExporter) Export(ctx context.Context, p *models.AggregatedPrice) error {
	return e.q.PublishMessage(ctx, e.msgType, p)
}
