package analytics

import (
	"math"
	"testing"

	"BazaarPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestAssessBlendsLiveAndHistorical(t *testing.T) {
	r := NewRiskAssessor(DefaultScorerConfig())
	got := r.Assess(models.RiskInput{
		InstantBuyPrice: 120,
		LiveBuy:         ptr(100),
		HistBuy:         ptr(80),
	})

	assert.InDelta(t, 94.0, got.BlendedBuy, 1e-9)
	assert.InDelta(t, 26.0/94.0, got.BuyDeviation, 1e-9)
	assert.Equal(t, 1.0, got.RiskScore)
	assert.True(t, got.ManipulatedLikely)
	assert.Zero(t, got.SellDeviation)
}

func TestAssessSingleReference(t *testing.T) {
	r := NewRiskAssessor(DefaultScorerConfig())

	got := r.Assess(models.RiskInput{InstantSellPrice: 105, HistSell: ptr(100)})
	assert.Equal(t, 100.0, got.BlendedSell)
	assert.InDelta(t, 0.05, got.SellDeviation, 1e-9)
	assert.InDelta(t, 0.25, got.RiskScore, 1e-9)
	assert.False(t, got.ManipulatedLikely)

	got = r.Assess(models.RiskInput{InstantBuyPrice: 90, LiveBuy: ptr(100)})
	assert.InDelta(t, 0.10, got.BuyDeviation, 1e-9)
}

func TestAssessIgnoresUnusableReferences(t *testing.T) {
	r := NewRiskAssessor(DefaultScorerConfig())
	got := r.Assess(models.RiskInput{
		InstantBuyPrice:  500,
		InstantSellPrice: 500,
		LiveBuy:          ptr(0),
		HistBuy:          ptr(math.NaN()),
		LiveSell:         ptr(-3),
		HistSell:         ptr(math.Inf(1)),
	})
	assert.Equal(t, models.RiskAssessment{}, got)
}

func TestAssessThresholdIsInclusive(t *testing.T) {
	r := NewRiskAssessor(DefaultScorerConfig())
	got := r.Assess(models.RiskInput{InstantBuyPrice: 112, LiveBuy: ptr(100)})
	assert.InDelta(t, 0.12, got.BuyDeviation, 1e-9)
	assert.InDelta(t, 0.6, got.RiskScore, 1e-9)
	assert.True(t, got.ManipulatedLikely)
}
