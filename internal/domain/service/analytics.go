package service

import (
	"context"
	"time"

	"BazaarPull/internal/domain/models"
)

// SnapshotSource iterates one product-hour of raw snapshots in fetch-time order.
type SnapshotSource func(ctx context.Context, yield func(*models.RawSnapshot) error) error

// PointSink persists a batch of retained points.
type PointSink func(ctx context.Context, points []models.MinutePoint) error

// Compactor turns one product-hour of raw snapshots into a summary plus retained points.
type Compactor interface {
	Compact(ctx context.Context, productID string, windowStart time.Time, source SnapshotSource, sink PointSink) (models.CompactionResult, error)
}

// RiskAssessor scores price deviation from reference prices.
type RiskAssessor interface {
	Assess(in models.RiskInput) models.RiskAssessment
}

// OpportunityScorer evaluates a single flip. Implementations are pure and safe for concurrent use.
type OpportunityScorer interface {
	Score(in models.ScoreInput) models.Opportunity
}
