package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	domsvc "BazaarPull/internal/domain/service"
	applogger "BazaarPull/pkg/logger"
	"BazaarPull/pkg/util"

	"golang.org/x/sync/errgroup"
)

var errWindowIncomplete = errors.New("window has failed products")

type CompactionJobConfig struct {
	Grace            time.Duration
	RawRetention     time.Duration
	PointRetention   time.Duration
	Workers          int
	MaxWindowsPerRun int
}

// CompactionJob advances the compaction watermark one closed hour at a time.
type CompactionJob struct {
	snaps     domrepo.SnapshotStore
	summaries domrepo.SummaryStore
	progress  domrepo.ProgressStore
	compactor domsvc.Compactor
	metrics   domrepo.Metrics
	cfg       CompactionJobConfig
	l         *applogger.Logger
	now       func() time.Time
}

func NewCompactionJob(
	snaps domrepo.SnapshotStore,
	summaries domrepo.SummaryStore,
	progress domrepo.ProgressStore,
	compactor domsvc.Compactor,
	metrics domrepo.Metrics,
	cfg CompactionJobConfig,
	l *applogger.Logger,
) *CompactionJob {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxWindowsPerRun <= 0 {
		cfg.MaxWindowsPerRun = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CompactionJob{
		snaps:     snaps,
		summaries: summaries,
		progress:  progress,
		compactor: compactor,
		metrics:   metrics,
		cfg:       cfg,
		l:         l.With(applogger.String("job", "compaction")),
		now:       time.Now,
	}
}

func (j *CompactionJob) Name() string { return "compaction" }

// Run compacts up to MaxWindowsPerRun closed windows, oldest first. It stops at
// the first window that is still inside its grace period or has a failed product.
func (j *CompactionJob) Run(ctx context.Context) error {
	for i := 0; i < j.cfg.MaxWindowsPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		since, err := j.progress.GetProcessedUntil(ctx)
		if err != nil {
			return fmt.Errorf("load watermark: %w", err)
		}
		oldest, ok, err := j.snaps.OldestUnprocessed(ctx, since)
		if err != nil {
			return fmt.Errorf("oldest unprocessed: %w", err)
		}
		if !ok {
			j.l.Debug("nothing to compact", applogger.Time("since", since))
			return nil
		}

		start := util.HourStart(oldest)
		end := start.Add(time.Hour)
		if j.now().Before(end.Add(j.cfg.Grace)) {
			j.l.Debug("window not complete, deferring", applogger.Time("window_start", start))
			return nil
		}
		if err := j.compactWindow(ctx, start, end); err != nil {
			return err
		}
	}
	return nil
}

func (j *CompactionJob) compactWindow(ctx context.Context, start, end time.Time) error {
	ids, err := j.snaps.ProductIDsInWindow(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list products %s: %w", start.Format(time.RFC3339), err)
	}
	log := j.l.With(applogger.Time("window_start", start))
	t0 := time.Now()

	var (
		mu                  sync.Mutex
		raw, retained, fail int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			res, err := j.compactProduct(gctx, id, start, end)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domrepo.ErrNothingToCompact) {
				return nil
			}
			if err != nil {
				fail++
				j.metrics.RecordError("compaction_product")
				log.Error("compaction failed", applogger.String("product_id", id), applogger.Error(err))
				return nil
			}
			raw += res.RawCount
			retained += res.Retained
			return nil
		})
	}
	_ = g.Wait()

	j.metrics.RecordCompaction(len(ids)-fail, raw, retained)
	if fail > 0 {
		return fmt.Errorf("compact %s: %d of %d products: %w", start.Format(time.RFC3339), fail, len(ids), errWindowIncomplete)
	}

	if err := j.progress.SetProcessedUntil(ctx, end); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	if j.cfg.PointRetention > 0 {
		if err := j.summaries.DeletePointsBefore(ctx, j.now().Add(-j.cfg.PointRetention)); err != nil {
			log.Warn("point retention failed", applogger.Error(err))
		}
	}
	// irreversible, so last
	if err := j.snaps.DeleteBefore(ctx, end.Add(-j.cfg.RawRetention)); err != nil {
		return fmt.Errorf("delete raw before %s: %w", end.Format(time.RFC3339), err)
	}

	log.Info("window compacted",
		applogger.Int("products", len(ids)),
		applogger.Int("raw", raw),
		applogger.Int("retained", retained),
		applogger.Duration("duration_ms", time.Since(t0)))
	return nil
}

func (j *CompactionJob) compactProduct(ctx context.Context, id string, start, end time.Time) (models.CompactionResult, error) {
	source := func(ctx context.Context, yield func(*models.RawSnapshot) error) error {
		return j.snaps.StreamWindow(ctx, id, start, end, yield)
	}
	res, err := j.compactor.Compact(ctx, id, start, source, j.summaries.StorePoints)
	if err != nil {
		return res, err
	}
	if res.Summary == nil {
		return res, domrepo.ErrNothingToCompact
	}
	if err := j.summaries.UpsertSummary(ctx, res.Summary); err != nil {
		return res, fmt.Errorf("upsert summary: %w", err)
	}
	return res, nil
}
