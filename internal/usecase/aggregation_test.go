package usecase

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/repository/memory"
	"BazaarPull/internal/service/cache"
	pkgcache "BazaarPull/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSummaries struct {
	*memory.SummaryStore
	latestN int32
}

func (c *countingSummaries) LatestN(ctx context.Context, ids []string, n int) (map[string][]models.HourSummary, error) {
	atomic.AddInt32(&c.latestN, 1)
	return c.SummaryStore.LatestN(ctx, ids, n)
}

func seedSummaries(t *testing.T, s *memory.SummaryStore, id string, closes ...float64) {
	t.Helper()
	for i, c := range closes {
		require.NoError(t, s.UpsertSummary(context.Background(), &models.HourSummary{
			ProductID: id,
			HourStart: t0.Add(time.Duration(i) * time.Hour),
			HourMetrics: models.HourMetrics{
				CloseInstantBuyPrice: c,
				CreatedBuyOrders:     2,
			},
		}))
	}
}

type aggFixture struct {
	summaries *countingSummaries
	store     *memory.MetricsWindowStore
	mem       *pkgcache.MemoryCache
	agg       *Aggregator
	metrics   *fakeMetrics
}

func newAggFixture(t *testing.T, batch int) *aggFixture {
	t.Helper()
	f := &aggFixture{
		summaries: &countingSummaries{SummaryStore: memory.NewSummaryStore()},
		store:     memory.NewMetricsWindowStore(),
		mem:       pkgcache.NewMemoryCache(),
		metrics:   newFakeMetrics(),
	}
	t.Cleanup(func() { _ = f.mem.Close() })
	rt := cache.NewReadThrough(f.mem, "mw", time.Minute, nil)
	f.agg = NewAggregator(f.summaries, f.store, rt, f.metrics,
		AggregationConfig{Windows: []int{1, 6, 48}, BatchSize: batch, Workers: 2, CacheTTL: time.Minute}, nil)
	return f
}

func TestRecomputeAllWritesEveryWindow(t *testing.T) {
	f := newAggFixture(t, 1)
	seedSummaries(t, f.summaries.SummaryStore, "A", 10, 20, 30)
	seedSummaries(t, f.summaries.SummaryStore, "B", 5)
	ctx := context.Background()

	n, err := f.agg.RecomputeAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, f.metrics.aggRows)
	// one history fetch per batch
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.summaries.latestN))

	rows, err := f.store.Get(ctx, []string{"A"}, []int{48})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Observations)
	assert.InDelta(t, 20.0, rows[0].CloseInstantBuyPrice, 1e-12)

	rows, err = f.store.Get(ctx, []string{"A"}, []int{1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 30.0, rows[0].CloseInstantBuyPrice)
}

type failingSummaries struct {
	*memory.SummaryStore
	badID string
}

func (f *failingSummaries) LatestN(ctx context.Context, ids []string, n int) (map[string][]models.HourSummary, error) {
	if slices.Contains(ids, f.badID) {
		return nil, errors.New("clickhouse: read timeout")
	}
	return f.SummaryStore.LatestN(ctx, ids, n)
}

func TestRecomputeAllSkipsFailedBatch(t *testing.T) {
	sums := &failingSummaries{SummaryStore: memory.NewSummaryStore(), badID: "B"}
	for _, id := range []string{"A", "B", "C"} {
		seedSummaries(t, sums.SummaryStore, id, 10, 20)
	}
	store := memory.NewMetricsWindowStore()
	metrics := newFakeMetrics()
	agg := NewAggregator(sums, store, nil, metrics,
		AggregationConfig{Windows: []int{1, 6}, BatchSize: 1, Workers: 2}, nil)
	ctx := context.Background()

	n, err := agg.RecomputeAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, metrics.errorCount("aggregation_batch"))

	rows, err := store.Get(ctx, []string{"A", "B", "C"}, []int{1, 6})
	require.NoError(t, err)
	got := map[string]int{}
	for _, r := range rows {
		got[r.ProductID]++
	}
	assert.Equal(t, map[string]int{"A": 2, "C": 2}, got)
}

func TestWindowsServedFromCacheOnSecondCall(t *testing.T) {
	f := newAggFixture(t, 500)
	seedSummaries(t, f.summaries.SummaryStore, "A", 10, 20)
	ctx := context.Background()

	first, err := f.agg.Windows(ctx, []string{"A", "NOPE"}, []int{6, 1})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, first[0].WindowHours)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.summaries.latestN))

	second, err := f.agg.Windows(ctx, []string{"A", "NOPE"}, []int{1, 6})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.summaries.latestN), "no history fetch on a warm cache")
}

func TestRunInvalidatesCache(t *testing.T) {
	f := newAggFixture(t, 500)
	seedSummaries(t, f.summaries.SummaryStore, "A", 10)
	ctx := context.Background()

	before, err := f.agg.Windows(ctx, []string{"A"}, []int{1})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, 10.0, before[0].CloseInstantBuyPrice)

	// a newer hour arrives
	require.NoError(t, f.summaries.UpsertSummary(ctx, &models.HourSummary{
		ProductID:   "A",
		HourStart:   t0.Add(time.Hour),
		HourMetrics: models.HourMetrics{CloseInstantBuyPrice: 40},
	}))
	stale, err := f.agg.Windows(ctx, []string{"A"}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 10.0, stale[0].CloseInstantBuyPrice)

	require.NoError(t, f.agg.Run(ctx))

	fresh, err := f.agg.Windows(ctx, []string{"A"}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 40.0, fresh[0].CloseInstantBuyPrice)
}

func TestWindowsRejectsBadInput(t *testing.T) {
	f := newAggFixture(t, 500)
	_, err := f.agg.Windows(context.Background(), []string{"A"}, []int{0})
	assert.Error(t, err)
	_, err = f.agg.Windows(context.Background(), nil, nil)
	assert.Error(t, err)
}
