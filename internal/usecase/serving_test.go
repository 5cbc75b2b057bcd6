package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/internal/repository/memory"
	"BazaarPull/internal/service/cache"
	"BazaarPull/internal/services/analytics"
	pkgcache "BazaarPull/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paging = Paging{DefaultLimit: 2, MaxLimit: 3}

func seedLatest(t *testing.T) *memory.SnapshotStore {
	t.Helper()
	s := memory.NewSnapshotStore()
	wide := snapAt("ENCHANTED_GOLD", t0, 120, 100)
	narrow := snapAt("GOLD_INGOT", t0, 101, 100)
	flat := snapAt("WHEAT", t0, 10, 10)
	flat.BuyVolume = 900
	require.NoError(t, s.StoreBatch(context.Background(), []*models.RawSnapshot{wide, narrow, flat}))
	return s
}

func TestOpportunityListRanksAndFilters(t *testing.T) {
	svc := NewOpportunityService(seedLatest(t), memory.NewMetricsWindowStore(), nil,
		analytics.NewScorer(analytics.DefaultScorerConfig()), OpportunityConfig{Paging: paging}, nil)

	page, err := svc.List(context.Background(), models.OpportunityListRequest{Sort: models.SortScore, Horizon: 1, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "ENCHANTED_GOLD", page.Rows[0].ProductID)
	assert.Greater(t, page.Rows[0].Score, page.Rows[1].Score)

	page, err = svc.List(context.Background(), models.OpportunityListRequest{Q: "gold", Sort: models.SortScore, Horizon: 1, Page: 1, MinScore: 1e-9})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, o := range page.Rows {
		assert.Contains(t, o.ProductID, "GOLD")
	}
}

func TestOpportunityUnknownProductIsNotFound(t *testing.T) {
	svc := NewOpportunityService(seedLatest(t), memory.NewMetricsWindowStore(), nil,
		analytics.NewScorer(analytics.DefaultScorerConfig()), OpportunityConfig{Paging: paging}, nil)

	_, err := svc.Get(context.Background(), models.OpportunityRequest{ID: "NOPE", Horizon: 1})
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	// zero spread is a zero score, not an error
	o, err := svc.Get(context.Background(), models.OpportunityRequest{ID: "WHEAT", Horizon: 1})
	require.NoError(t, err)
	assert.Zero(t, o.Score)
	assert.Equal(t, "WHEAT", o.ProductID)
}

func TestOpportunityUsesStoredWindows(t *testing.T) {
	windows := memory.NewMetricsWindowStore()
	require.NoError(t, windows.UpsertBatch(context.Background(), []models.FinanceMetricsWindow{
		{ProductID: "ENCHANTED_GOLD", WindowHours: 6, Observations: 6, HourMetrics: models.HourMetrics{CreatedBuyOrders: 50, CreatedSellOrders: 50}},
	}))
	scorer := analytics.NewScorer(analytics.DefaultScorerConfig())
	req := models.OpportunityRequest{ID: "ENCHANTED_GOLD", Horizon: 1}

	calm, err := NewOpportunityService(seedLatest(t), memory.NewMetricsWindowStore(), nil, scorer, OpportunityConfig{Paging: paging}, nil).Get(context.Background(), req)
	require.NoError(t, err)
	busy, err := NewOpportunityService(seedLatest(t), windows, nil, scorer, OpportunityConfig{Paging: paging}, nil).Get(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, busy.Churn, 0.0)
	assert.LessOrEqual(t, busy.Score, calm.Score)
}

type countingWindows struct {
	*memory.MetricsWindowStore
	gets int32
}

func (c *countingWindows) Get(ctx context.Context, ids []string, windows []int) ([]models.FinanceMetricsWindow, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.MetricsWindowStore.Get(ctx, ids, windows)
}

func TestOpportunityListReadsWindowsThroughCache(t *testing.T) {
	windows := &countingWindows{MetricsWindowStore: memory.NewMetricsWindowStore()}
	require.NoError(t, windows.UpsertBatch(context.Background(), []models.FinanceMetricsWindow{
		{ProductID: "ENCHANTED_GOLD", WindowHours: 6, Observations: 6, HourMetrics: models.HourMetrics{CreatedBuyOrders: 50, CreatedSellOrders: 50}},
	}))
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	rt := cache.NewReadThrough(mem, "mw", time.Minute, nil)
	svc := NewOpportunityService(seedLatest(t), windows, rt,
		analytics.NewScorer(analytics.DefaultScorerConfig()), OpportunityConfig{Paging: paging}, nil)
	ctx := context.Background()
	req := models.OpportunityListRequest{Sort: models.SortScore, Horizon: 1, Page: 1, Limit: 3}

	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&windows.gets))
	require.Len(t, second.Rows, len(first.Rows))
	for i := range first.Rows {
		assert.Equal(t, first.Rows[i].ProductID, second.Rows[i].ProductID)
		assert.InDelta(t, first.Rows[i].Score, second.Rows[i].Score, 1e-9)
	}

	var churned bool
	for _, o := range second.Rows {
		if o.ProductID == "ENCHANTED_GOLD" {
			churned = o.Churn > 0
		}
	}
	assert.True(t, churned, "cached window still applied")

	// a recompute drops the namespace
	require.NoError(t, rt.InvalidateAll(ctx))
	_, err = svc.List(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&windows.gets))
}

func TestMarketListSortsAndPages(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	svc := NewMarketService(seedLatest(t), cache.NewReadThrough(mem, "latest", time.Minute, nil), time.Minute, paging)
	ctx := context.Background()

	page, err := svc.List(ctx, models.ProductListRequest{Sort: "spread", Order: "desc", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 3, page.Limit, "capped at max")
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "ENCHANTED_GOLD", page.Rows[0].ProductID)
	assert.Equal(t, "WHEAT", page.Rows[2].ProductID)

	page, err = svc.List(ctx, models.ProductListRequest{Sort: "product_id", Order: "asc", Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "WHEAT", page.Rows[0].ProductID)

	// cached page decodes to the same rows
	again, err := svc.List(ctx, models.ProductListRequest{Sort: "product_id", Order: "asc", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, page.Total, again.Total)
	assert.Equal(t, "WHEAT", again.Rows[0].ProductID)

	page, err = svc.List(ctx, models.ProductListRequest{Q: "ingot", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = svc.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestHistoryRange(t *testing.T) {
	sums := memory.NewSummaryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		hs := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, sums.UpsertSummary(ctx, &models.HourSummary{ProductID: "A", HourStart: hs, RetainedCount: 1}))
		require.NoError(t, sums.StorePoints(ctx, []models.MinutePoint{{HourStart: hs, RawSnapshot: *snapAt("A", hs.Add(10*time.Minute), 2, 1)}}))
	}
	svc := NewHistoryService(sums)

	got, err := svc.Range(ctx, "A", t0, t0.Add(2*time.Hour), false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Points)

	got, err = svc.Range(ctx, "A", t0, t0.Add(3*time.Hour), true)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, s := range got {
		require.Len(t, s.Points, 1)
		assert.Equal(t, s.HourStart.Add(10*time.Minute), s.Points[0].FetchedAt)
	}

	_, err = svc.Range(ctx, "A", t0.Add(10*time.Hour), t0.Add(12*time.Hour), false)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	_, err = svc.Range(ctx, "A", t0.Add(time.Hour), t0, false)
	assert.ErrorIs(t, err, domrepo.ErrInvalidInput)
}
