package usecase

import (
	"context"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	drepo "BazaarPull/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// SnapshotProcessor routes snapshot batches to the configured backend:
// the Kafka topic, or straight into the snapshot store.
type SnapshotProcessor struct {
	pub     drepo.Publisher
	store   drepo.SnapshotStore
	metrics drepo.Metrics
	backend string
	batchSz int
}

func NewSnapshotProcessor(
	pub drepo.Publisher,
	store drepo.SnapshotStore,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
) *SnapshotProcessor {
	if batchSz <= 0 {
		batchSz = 500
	}
	return &SnapshotProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
	}
}

// ProcessBatch writes snaps in chunks of the configured batch size.
func (p *SnapshotProcessor) ProcessBatch(ctx context.Context, snaps []*models.RawSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	start := time.Now()
	for lo := 0; lo < len(snaps); lo += p.batchSz {
		hi := min(lo+p.batchSz, len(snaps))
		if err := p.write(ctx, snaps[lo:hi]); err != nil {
			p.metrics.RecordError("process_batch")
			return fmt.Errorf("process batch: %w", err)
		}
	}

	p.metrics.RecordMessageSent(p.backend, len(snaps))
	for _, s := range snaps {
		p.metrics.RecordLastPrice(s.ProductID, "buy", s.InstantBuyPrice)
		p.metrics.RecordLastPrice(s.ProductID, "sell", s.InstantSellPrice)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

func (p *SnapshotProcessor) write(ctx context.Context, chunk []*models.RawSnapshot) error {
	switch p.backend {
	case BackendKafka:
		if p.pub == nil {
			return fmt.Errorf("kafka backend without publisher")
		}
		return p.pub.PublishBatch(ctx, chunk)
	case BackendClickHouse:
		return p.store.StoreBatch(ctx, chunk)
	default:
		return fmt.Errorf("unknown backend: %s", p.backend)
	}
}

// Close closes the publisher if one is configured.
func (p *SnapshotProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
