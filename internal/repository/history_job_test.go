package repository

import (
	"context"
	"encoding/json"
	"testing"

	"OracleFeed/internal/domain/models"
)

type captureSink struct {
	stored []*models.AggregatedPrice
	err    error
}

func (s *captureSink) Init(ctx context.Context) error { return nil }

func (s *captureSink) Store(ctx context.Context, p *models.AggregatedPrice) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, p)
	return nil
}

func (s *captureSink) StoreBatch(ctx context.Context, prices []*models.AggregatedPrice) error {
	s.stored = append(s.stored, prices...)
	return nil
}

func (s *captureSink) Health(ctx context.Context) error { return nil }

func (s *captureSink) Close() error { return nil }

func TestHistoryArchiveJobStoresQueuedPrice(t *testing.T) {
	sink := &captureSink{}
	job := NewHistoryArchiveJob(sink)

	if job.Type() != "consensus_price" {
		t.Fatalf("unexpected message type %q", job.Type())
	}

	// the queue hands payloads to jobs as raw JSON
	raw, err := json.Marshal(&models.AggregatedPrice{
		Symbol:    "BTC/USD",
		Price:     42000,
		Timestamp: 1700000000000,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := job.Handle(context.Background(), json.RawMessage(raw)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sink.stored) != 1 {
		t.Fatalf("expected 1 stored price, got %d", len(sink.stored))
	}
	if got := sink.stored[0]; got.Symbol != "BTC/USD" || got.Price != 42000 {
		t.Fatalf("stored %+v", got)
	}
}

func TestHistoryArchiveJobRejectsBadPayload(t *testing.T) {
	job := NewHistoryArchiveJob(&captureSink{})
	if err := job.Handle(context.Background(), json.RawMessage(`{`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
