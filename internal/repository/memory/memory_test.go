package memory

import (
	"context"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func raw(id string, min int, buy float64) *models.RawSnapshot {
	return &models.RawSnapshot{
		ProductID:       id,
		FetchedAt:       t0.Add(time.Duration(min) * time.Minute),
		InstantBuyPrice: buy,
		BuyLadder:       []models.OrderLevel{{Side: models.SideBuy, Price: buy, Quantity: 1, Orders: 1}},
	}
}

func TestSnapshotStoreStreamsInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	require.NoError(t, s.StoreBatch(ctx, []*models.RawSnapshot{
		raw("A", 30, 3), raw("A", 10, 1), raw("B", 5, 9), raw("A", 20, 2), raw("A", 70, 7),
	}))

	var got []float64
	err := s.StreamWindow(ctx, "A", t0, t0.Add(time.Hour), func(r *models.RawSnapshot) error {
		got = append(got, r.InstantBuyPrice)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)

	oldest, ok, err := s.OldestUnprocessed(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t0.Add(20*time.Minute), oldest)

	_, ok, err = s.OldestUnprocessed(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.ProductIDsInWindow(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)
}

func TestSnapshotStoreLatestSurvivesDelete(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	require.NoError(t, s.StoreBatch(ctx, []*models.RawSnapshot{raw("A", 1, 1), raw("A", 2, 2)}))
	require.NoError(t, s.DeleteBefore(ctx, t0.Add(time.Hour)))
	assert.Zero(t, s.Count())

	latest, err := s.LatestOne(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.InstantBuyPrice)
	assert.Len(t, latest.BuyLadder, 1)

	all, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].BuyLadder)

	_, err = s.LatestOne(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSummaryStoreUpsertAndLatestN(t *testing.T) {
	ctx := context.Background()
	s := NewSummaryStore()
	for h := 0; h < 5; h++ {
		require.NoError(t, s.UpsertSummary(ctx, &models.HourSummary{
			ProductID:   "A",
			HourStart:   t0.Add(time.Duration(h) * time.Hour),
			HourMetrics: models.HourMetrics{CloseInstantBuyPrice: float64(h)},
		}))
	}
	// same key replaces
	require.NoError(t, s.UpsertSummary(ctx, &models.HourSummary{ProductID: "A", HourStart: t0, HourMetrics: models.HourMetrics{CloseInstantBuyPrice: 42}}))

	got, err := s.LatestN(ctx, []string{"A", "Z"}, 3)
	require.NoError(t, err)
	require.Len(t, got["A"], 3)
	assert.Equal(t, 4.0, got["A"][0].CloseInstantBuyPrice)
	assert.Equal(t, 2.0, got["A"][2].CloseInstantBuyPrice)
	assert.Empty(t, got["Z"])

	rng, err := s.Range(ctx, "A", t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rng, 2)
	assert.Equal(t, 42.0, rng[0].CloseInstantBuyPrice)

	ids, err := s.ProductIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids)
}

func TestSummaryStorePointsDeduplicate(t *testing.T) {
	ctx := context.Background()
	s := NewSummaryStore()
	p := models.MinutePoint{HourStart: t0, RawSnapshot: *raw("A", 1, 1)}
	require.NoError(t, s.StorePoints(ctx, []models.MinutePoint{p, p}))
	require.NoError(t, s.StorePoints(ctx, []models.MinutePoint{{HourStart: t0, RawSnapshot: *raw("A", 2, 2)}}))

	pts, err := s.Points(ctx, "A", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, pts, 2)

	require.NoError(t, s.DeletePointsBefore(ctx, t0.Add(2*time.Minute)))
	pts, err = s.Points(ctx, "A", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 2.0, pts[0].InstantBuyPrice)
}

func TestMetricsWindowStoreFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsWindowStore()
	require.NoError(t, s.UpsertBatch(ctx, []models.FinanceMetricsWindow{
		{ProductID: "A", WindowHours: 1, Observations: 1},
		{ProductID: "A", WindowHours: 6, Observations: 6},
		{ProductID: "B", WindowHours: 1, Observations: 1},
	}))
	require.NoError(t, s.UpsertBatch(ctx, []models.FinanceMetricsWindow{{ProductID: "A", WindowHours: 6, Observations: 5}}))

	got, err := s.Get(ctx, []string{"A"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[1].Observations)

	got, err = s.Get(ctx, nil, []int{1})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
