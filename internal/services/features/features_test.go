package features

import (
	"encoding/json"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(n int) []models.HourSummary {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.HourSummary, n)
	for i := 0; i < n; i++ {
		// newest first
		out[i] = models.HourSummary{
			ProductID: "SUGAR_CANE",
			HourStart: base.Add(time.Duration(n-1-i) * time.Hour),
			HourMetrics: models.HourMetrics{
				CloseInstantBuyPrice:  float64(10 + i),
				CloseInstantSellPrice: float64(8 + i),
				CreatedBuyOrders:      float64(3 * (i + 1)),
				InstaBuyFlow:          1.5,
			},
		}
	}
	return out
}

func TestWindowShortHistory(t *testing.T) {
	row, ok := Window("SUGAR_CANE", history(3), 48)
	require.True(t, ok)
	assert.Equal(t, 48, row.WindowHours)
	assert.Equal(t, 3, row.Observations)
	assert.InDelta(t, 11.0, row.CloseInstantBuyPrice, 1e-12) // (10+11+12)/3
	assert.InDelta(t, 9.0, row.CloseInstantSellPrice, 1e-12)
	assert.InDelta(t, 6.0, row.CreatedBuyOrders, 1e-12) // (3+6+9)/3
	assert.InDelta(t, 1.5, row.InstaBuyFlow, 1e-12)
}

func TestWindowsTruncatesLargestFetch(t *testing.T) {
	rows := Windows("SUGAR_CANE", history(10), []int{1, 6, 48})
	require.Len(t, rows, 3)

	assert.Equal(t, 1, rows[0].Observations)
	assert.Equal(t, 10.0, rows[0].CloseInstantBuyPrice) // newest only

	assert.Equal(t, 6, rows[1].Observations)
	assert.InDelta(t, 12.5, rows[1].CloseInstantBuyPrice, 1e-12) // 10..15

	assert.Equal(t, 10, rows[2].Observations)
}

func TestWindowsNoHistory(t *testing.T) {
	assert.Empty(t, Windows("SUGAR_CANE", nil, []int{1, 6}))
	_, ok := Window("SUGAR_CANE", nil, 6)
	assert.False(t, ok)
}

func TestAggregateIsIdempotent(t *testing.T) {
	hist := map[string][]models.HourSummary{"A": history(7), "B": history(2), "C": nil}
	ids := []string{"A", "B", "C"}

	first, err := json.Marshal(Aggregate(ids, hist, []int{1, 6, 48}))
	require.NoError(t, err)
	second, err := json.Marshal(Aggregate(ids, hist, []int{1, 6, 48}))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rows := Aggregate(ids, hist, []int{1, 6, 48})
	assert.Len(t, rows, 6) // C has no history
}

func TestScoreInputMapping(t *testing.T) {
	s := &models.RawSnapshot{
		ProductID:         "SUGAR_CANE",
		InstantBuyPrice:   105,
		InstantSellPrice:  100,
		WeightedBuyPrice:  104,
		WeightedSellPrice: 0,
		BuyMovingWeek:     1680,
		SellMovingWeek:    3360,
	}
	churn := &models.FinanceMetricsWindow{Observations: 6, HourMetrics: models.HourMetrics{CreatedBuyOrders: 4, CreatedSellOrders: 2}}
	ref := &models.FinanceMetricsWindow{Observations: 48, HourMetrics: models.HourMetrics{CloseInstantBuyPrice: 103, CloseInstantSellPrice: 99}}

	in := ScoreInput(s, churn, ref, 1000, 2)
	assert.Equal(t, 10.0, in.Demand)
	assert.Equal(t, 20.0, in.Supply)
	assert.Equal(t, 4.0, in.BuyChurn)
	assert.Equal(t, 2.0, in.SellChurn)
	require.NotNil(t, in.Risk.LiveBuy)
	assert.Equal(t, 104.0, *in.Risk.LiveBuy)
	assert.Nil(t, in.Risk.LiveSell, "zero weighted price is absent")
	require.NotNil(t, in.Risk.HistSell)
	assert.Equal(t, 99.0, *in.Risk.HistSell)
	assert.Equal(t, 1000.0, in.Budget)
	assert.Equal(t, 2.0, in.Horizon)

	bare := ScoreInput(s, nil, nil, 0, 1)
	assert.Zero(t, bare.BuyChurn)
	assert.Nil(t, bare.Risk.HistBuy)
}
