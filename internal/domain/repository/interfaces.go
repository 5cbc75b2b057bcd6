package repository

import (
	"context"
	"time"

	"BazaarPull/internal/domain/models"
)

// SnapshotStore holds raw snapshots until they are compacted.
type SnapshotStore interface {
	StoreBatch(ctx context.Context, snaps []*models.RawSnapshot) error
	// StreamWindow calls fn for each snapshot of productID with fetchedAt in [from, to),
	// in fetch-time order. Returning an error from fn stops the stream.
	StreamWindow(ctx context.Context, productID string, from, to time.Time, fn func(*models.RawSnapshot) error) error
	// OldestUnprocessed returns the earliest fetch time >= since; ok is false when none exists.
	OldestUnprocessed(ctx context.Context, since time.Time) (t time.Time, ok bool, err error)
	ProductIDsInWindow(ctx context.Context, from, to time.Time) ([]string, error)
	// Latest returns the most recent snapshot of every product, ladders omitted.
	Latest(ctx context.Context) ([]*models.RawSnapshot, error)
	// LatestOne returns ErrNotFound for an unknown product.
	LatestOne(ctx context.Context, productID string) (*models.RawSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) error
}

// SummaryStore holds hour summaries and their retained points.
type SummaryStore interface {
	// UpsertSummary replaces any summary with the same (ProductID, HourStart).
	UpsertSummary(ctx context.Context, s *models.HourSummary) error
	StorePoints(ctx context.Context, points []models.MinutePoint) error
	// LatestN returns up to n summaries per product, newest first.
	LatestN(ctx context.Context, productIDs []string, n int) (map[string][]models.HourSummary, error)
	// Range returns summaries with hourStart in [from, to), oldest first.
	Range(ctx context.Context, productID string, from, to time.Time) ([]models.HourSummary, error)
	Points(ctx context.Context, productID string, from, to time.Time) ([]models.MinutePoint, error)
	ProductIDs(ctx context.Context) ([]string, error)
	DeletePointsBefore(ctx context.Context, cutoff time.Time) error
}

// MetricsWindowStore holds the latest rolling means per (product, window).
type MetricsWindowStore interface {
	// UpsertBatch overwrites rows by (ProductID, WindowHours) atomically per call.
	UpsertBatch(ctx context.Context, rows []models.FinanceMetricsWindow) error
	Get(ctx context.Context, productIDs []string, windows []int) ([]models.FinanceMetricsWindow, error)
}

// ProgressStore persists the compaction watermark.
type ProgressStore interface {
	// GetProcessedUntil returns the zero time when nothing has been compacted yet.
	GetProcessedUntil(ctx context.Context) (time.Time, error)
	SetProcessedUntil(ctx context.Context, t time.Time) error
}

// SnapshotFeed is the upstream market feed.
type SnapshotFeed interface {
	Fetch(ctx context.Context) ([]*models.RawSnapshot, error)
}

// Publisher ships snapshot batches to the ingestion topic.
type Publisher interface {
	PublishBatch(ctx context.Context, snaps []*models.RawSnapshot) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend string, n int)
	RecordError(kind string)
	RecordLastPrice(product, side string, price float64)
	RecordLatency(op string, seconds float64)
	RecordJobRun(task, status string, seconds float64)
	RecordJobSkipped(task string)
	RecordCompaction(products, raw, retained int)
	RecordAggregation(rows int)
}
