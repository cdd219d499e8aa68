package repository

import (
	"context"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	"OracleFeed/pkg/queue"
)

// HistoryArchiveJob drains queued consensus prices into the history sink.
// With the queue in front, a slow ClickHouse write delays the archive, never
// the aggregation path, and a failed write rides the queue's retry schedule
// instead of being lost.
type HistoryArchiveJob struct {
	sink domrepo.HistorySink
}

func NewHistoryArchiveJob(sink domrepo.HistorySink) queue.Job {
	return &HistoryArchiveJob{sink: sink}
}

func (j *HistoryArchiveJob) Name() string { return "history-archive" }

func (j *HistoryArchiveJob) Type() string { return "consensus_price" }

func (j *HistoryArchiveJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[models.AggregatedPrice](payload)
	if err != nil {
		return err
	}
	return j.sink.Store(ctx, p)
}
