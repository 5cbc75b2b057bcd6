package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	pkgkafka "BazaarPull/pkg/kafka"
)

// KafkaSnapshotsHandler consumes snapshot messages and writes them to the store.
// Failures are returned so the consumer retries and finally dead-letters them.
type KafkaSnapshotsHandler struct {
	topic   string
	store   domrepo.SnapshotStore
	metrics domrepo.Metrics
}

func NewKafkaSnapshotsHandler(topic string, store domrepo.SnapshotStore, metrics domrepo.Metrics) *KafkaSnapshotsHandler {
	return &KafkaSnapshotsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaSnapshotsHandler) Topic() string { return h.topic }

// Handle accepts one JSON snapshot per message.
func (h *KafkaSnapshotsHandler) Handle(ctx context.Context, b []byte) error {
	var s models.RawSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		h.metrics.RecordError("consumer_validate")
		return err
	}
	// fetch to store lag
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(s.FetchedAt).Seconds())

	start := time.Now()
	err := h.store.StoreBatch(ctx, []*models.RawSnapshot{&s})
	h.metrics.RecordLatency("store_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store snapshot %s: %w", s.ProductID, err)
	}
	h.metrics.RecordMessageSent(BackendClickHouse, 1)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotsHandler)(nil)
