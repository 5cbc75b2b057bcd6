package repository

import (
	"context"
	"fmt"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	pkgkafka "BazaarPull/pkg/kafka"
)

// KafkaPublisher ships each snapshot as one JSON message keyed by product id,
// so a product's snapshots stay ordered within a partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, snaps []*models.RawSnapshot) error {
	msgs := make([]pkgkafka.Message, 0, len(snaps))
	for _, s := range snaps {
		if s == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(s.ProductID), Value: s})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %d snapshots to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
