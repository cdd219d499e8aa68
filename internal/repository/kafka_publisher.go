package repository

import (
	"context"

	"OracleFeed/internal/domain/models"
	"OracleFeed/internal/domain/repository"
	pkgkafka "OracleFeed/pkg/kafka"
)

// KafkaConsensusPublisher implements ConsensusPublisher for Kafka. Messages
// are keyed by symbol so one feed's consensus stream stays ordered within a
// partition.
type KafkaConsensusPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaConsensusPublisher creates a Kafka-backed consensus publisher.
func NewKafkaConsensusPublisher(producer *pkgkafka.Producer, topic string) repository.ConsensusPublisher {
	return &KafkaConsensusPublisher{producer: producer, topic: topic}
}

func (p *KafkaConsensusPublisher) Publish(ctx context.Context, a *models.AggregatedPrice) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Symbol), map[string]interface{}{
		"symbol":          a.Symbol,
		"price":           a.Price,
		"t":               a.Timestamp,
		"sources":         a.Sources,
		"confidence":      a.Confidence,
		"consensus_score": a.ConsensusScore,
	})
}

func (p *KafkaConsensusPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
