package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/internal/service/cache"
	apimetrics "BazaarPull/internal/service/metrics"
	"BazaarPull/internal/services/features"
	applogger "BazaarPull/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type AggregationConfig struct {
	Windows   []int
	BatchSize int
	Workers   int
	CacheTTL  time.Duration
}

// Aggregator maintains FinanceMetricsWindow rows. The scheduled path recomputes
// every product and overwrites the store; the on-demand path computes a subset
// and caches it per (product, window).
type Aggregator struct {
	summaries domrepo.SummaryStore
	store     domrepo.MetricsWindowStore
	cache     *cache.ReadThrough
	metrics   domrepo.Metrics
	cfg       AggregationConfig
	l         *applogger.Logger
}

func NewAggregator(
	summaries domrepo.SummaryStore,
	store domrepo.MetricsWindowStore,
	c *cache.ReadThrough,
	metrics domrepo.Metrics,
	cfg AggregationConfig,
	l *applogger.Logger,
) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = []int{1, 6, 48}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Aggregator{
		summaries: summaries,
		store:     store,
		cache:     c,
		metrics:   metrics,
		cfg:       cfg,
		l:         l.With(applogger.String("job", "aggregation")),
	}
}

func (a *Aggregator) Name() string { return "aggregation" }

// Run recomputes the configured window set for every known product and then
// drops the on-demand cache.
func (a *Aggregator) Run(ctx context.Context) error {
	if _, err := a.RecomputeAll(ctx, a.cfg.Windows); err != nil {
		return err
	}
	if a.cache != nil {
		if err := a.cache.InvalidateAll(ctx); err != nil {
			a.l.Warn("cache invalidation failed", applogger.Error(err))
		}
	}
	return nil
}

// RecomputeAll returns the number of rows written. Failed batches are logged and
// skipped; an error is returned only when the product list cannot be loaded.
func (a *Aggregator) RecomputeAll(ctx context.Context, windows []int) (int, error) {
	ws, err := domrepo.NormalizeWindows(windows, a.cfg.Windows)
	if err != nil {
		return 0, err
	}
	ids, err := a.summaries.ProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}

	var (
		mu     sync.Mutex
		rows   int
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for lo := 0; lo < len(ids); lo += a.cfg.BatchSize {
		batch := ids[lo:min(lo+a.cfg.BatchSize, len(ids))]
		n := lo / a.cfg.BatchSize
		g.Go(func() error {
			written, err := a.recomputeBatch(gctx, batch, ws)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				a.metrics.RecordError("aggregation_batch")
				a.l.Error("aggregation batch failed", applogger.Int("batch", n), applogger.Error(err))
				return nil
			}
			rows += written
			return nil
		})
	}
	_ = g.Wait()

	a.metrics.RecordAggregation(rows)
	a.l.Info("aggregation finished",
		applogger.Int("products", len(ids)),
		applogger.Int("rows", rows),
		applogger.Int("failed_batches", failed))
	return rows, nil
}

func (a *Aggregator) recomputeBatch(ctx context.Context, ids []string, windows []int) (int, error) {
	hist, err := a.summaries.LatestN(ctx, ids, domrepo.MaxWindow(windows))
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}
	rows := features.Aggregate(ids, hist, windows)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := a.store.UpsertBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert %d rows: %w", len(rows), err)
	}
	return len(rows), nil
}

// Windows computes rows for an arbitrary subset. Cached rows are reused; the
// misses share one history fetch sized for the largest requested window.
// Products without history produce no rows.
func (a *Aggregator) Windows(ctx context.Context, ids []string, windows []int) ([]models.FinanceMetricsWindow, error) {
	ws, err := domrepo.NormalizeWindows(windows, a.cfg.Windows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no products", domrepo.ErrInvalidInput)
	}

	var hist map[string][]models.HourSummary
	load := func(ctx context.Context) error {
		if hist != nil {
			return nil
		}
		h, err := a.summaries.LatestN(ctx, ids, domrepo.MaxWindow(ws))
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		hist = h
		return nil
	}

	out := make([]models.FinanceMetricsWindow, 0, len(ids)*len(ws))
	for _, id := range ids {
		for _, w := range ws {
			compute := func(ctx context.Context) (interface{}, error) {
				if err := load(ctx); err != nil {
					return nil, err
				}
				// an empty row records "no history" in the cache too
				row, _ := features.Window(id, hist[id], w)
				return row, nil
			}

			var row models.FinanceMetricsWindow
			if a.cache == nil {
				v, err := compute(ctx)
				if err != nil {
					return nil, err
				}
				row = v.(models.FinanceMetricsWindow)
			} else {
				hit, err := a.cache.GetOrCompute(ctx, a.cache.Key(id, w), a.cfg.CacheTTL, &row, compute)
				if err != nil {
					return nil, err
				}
				apimetrics.ObserveCache("mw", hit)
			}
			if row.Observations > 0 {
				out = append(out, row)
			}
		}
	}
	return out, nil
}
