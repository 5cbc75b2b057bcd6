package usecase

import (
	"context"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/internal/service/cache"
	apimetrics "BazaarPull/internal/service/metrics"
	"BazaarPull/internal/services/analytics"
	"BazaarPull/internal/services/features"
	applogger "BazaarPull/pkg/logger"
)

// OpportunityPage is one page of the ranked flip list.
type OpportunityPage struct {
	Rows  []models.Opportunity `json:"rows"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

type OpportunityConfig struct {
	ChurnWindow     int
	ReferenceWindow int
	Paging          Paging
}

// OpportunityService scores live snapshots against the stored churn and
// reference windows. Window rows are read through the "mw" cache namespace,
// which the aggregation job drops after every recompute. Nothing it produces
// is persisted.
type OpportunityService struct {
	snaps   domrepo.SnapshotStore
	windows domrepo.MetricsWindowStore
	cache   *cache.ReadThrough
	scorer  *analytics.Scorer
	cfg     OpportunityConfig
	l       *applogger.Logger
}

func NewOpportunityService(
	snaps domrepo.SnapshotStore,
	windows domrepo.MetricsWindowStore,
	c *cache.ReadThrough,
	scorer *analytics.Scorer,
	cfg OpportunityConfig,
	l *applogger.Logger,
) *OpportunityService {
	if cfg.ChurnWindow <= 0 {
		cfg.ChurnWindow = 6
	}
	if cfg.ReferenceWindow <= 0 {
		cfg.ReferenceWindow = 48
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &OpportunityService{snaps: snaps, windows: windows, cache: c, scorer: scorer, cfg: cfg, l: l}
}

// List ranks every product matching req.Q by req.Sort, descending.
func (s *OpportunityService) List(ctx context.Context, req models.OpportunityListRequest) (OpportunityPage, error) {
	start := time.Now()
	defer func() { apimetrics.APILatency.WithLabelValues("opportunities").Observe(time.Since(start).Seconds()) }()

	latest, err := s.snaps.Latest(ctx)
	if err != nil {
		apimetrics.APIErrors.WithLabelValues("opportunities").Inc()
		return OpportunityPage{}, fmt.Errorf("latest snapshots: %w", err)
	}
	latest = filterByID(latest, req.Q)

	ids := make([]string, len(latest))
	for i, snap := range latest {
		ids[i] = snap.ProductID
	}
	rows := s.loadWindows(ctx, ids)

	ins := make([]models.ScoreInput, len(latest))
	for i, snap := range latest {
		churn, ref := s.pick(rows, snap.ProductID)
		ins[i] = features.ScoreInput(snap, churn, ref, req.Budget, req.Horizon)
	}
	opps := s.scorer.ScoreAll(ins)
	apimetrics.ScoredProducts.Observe(float64(len(opps)))

	kept := opps[:0]
	for _, o := range opps {
		if o.Score >= req.MinScore {
			kept = append(kept, o)
		}
	}
	analytics.Rank(kept, req.Sort)

	limit := s.cfg.Paging.limit(req.Limit)
	lo, hi := s.cfg.Paging.window(len(kept), req.Page, limit)
	return OpportunityPage{Rows: kept[lo:hi], Total: len(kept), Page: max(req.Page, 1), Limit: limit}, nil
}

// Get scores one product. An unknown product is ErrNotFound, never a zero score.
func (s *OpportunityService) Get(ctx context.Context, req models.OpportunityRequest) (models.Opportunity, error) {
	snap, err := s.snaps.LatestOne(ctx, req.ID)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("opportunity %s: %w", req.ID, err)
	}
	rows := s.loadWindows(ctx, []string{req.ID})
	churn, ref := s.pick(rows, req.ID)
	return s.scorer.Score(features.ScoreInput(snap, churn, ref, req.Budget, req.Horizon)), nil
}

// loadWindows degrades to live-only scoring when the window store is unavailable.
// Cache misses share one store read covering every requested product.
func (s *OpportunityService) loadWindows(ctx context.Context, ids []string) map[models.WindowKey]*models.FinanceMetricsWindow {
	out := make(map[models.WindowKey]*models.FinanceMetricsWindow)
	if len(ids) == 0 || s.windows == nil {
		return out
	}
	ws := []int{s.cfg.ChurnWindow, s.cfg.ReferenceWindow}

	var stored map[models.WindowKey]models.FinanceMetricsWindow
	load := func(ctx context.Context) error {
		if stored != nil {
			return nil
		}
		rows, err := s.windows.Get(ctx, ids, ws)
		if err != nil {
			return err
		}
		stored = make(map[models.WindowKey]models.FinanceMetricsWindow, len(rows))
		for _, r := range rows {
			stored[r.Key()] = r
		}
		return nil
	}

	if s.cache == nil {
		if err := load(ctx); err != nil {
			s.l.Warn("metrics windows unavailable, scoring without history", applogger.Error(err))
			return out
		}
		for k, r := range stored {
			out[k] = &r
		}
		return out
	}

	for _, id := range ids {
		for _, w := range ws {
			key := models.WindowKey{ProductID: id, WindowHours: w}
			var row models.FinanceMetricsWindow
			hit, err := s.cache.GetOrCompute(ctx, s.cache.Key(id, w), 0, &row, func(ctx context.Context) (interface{}, error) {
				if err := load(ctx); err != nil {
					return nil, err
				}
				// a product without a stored row is cached as empty
				r, ok := stored[key]
				if !ok {
					r = models.FinanceMetricsWindow{ProductID: id, WindowHours: w}
				}
				return r, nil
			})
			if err != nil {
				s.l.Warn("metrics windows unavailable, scoring without history", applogger.Error(err))
				return map[models.WindowKey]*models.FinanceMetricsWindow{}
			}
			apimetrics.ObserveCache("mw", hit)
			if row.Observations > 0 {
				out[key] = &row
			}
		}
	}
	return out
}

func (s *OpportunityService) pick(rows map[models.WindowKey]*models.FinanceMetricsWindow, id string) (churn, ref *models.FinanceMetricsWindow) {
	churn = rows[models.WindowKey{ProductID: id, WindowHours: s.cfg.ChurnWindow}]
	ref = rows[models.WindowKey{ProductID: id, WindowHours: s.cfg.ReferenceWindow}]
	return churn, ref
}
