// Package compaction turns an hour of per-minute order-book readings into one
// OHLC summary plus a sparse set of retained points.
package compaction

import (
	"context"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/repository"
	"BazaarPull/internal/domain/service"
	"BazaarPull/pkg/util"
)

// hours per week; moving-week counters become per-hour rates
const weekHours = 168

type Config struct {
	MaxGap        time.Duration // retain a point at least this often
	MoveThreshold float64       // relative instant-price move that forces retention
	FlushEvery    int           // points per sink call
	LadderDepth   int           // levels per side kept on retained points
}

func DefaultConfig() Config {
	return Config{
		MaxGap:        5 * time.Minute,
		MoveThreshold: 0.20,
		FlushEvery:    256,
		LadderDepth:   30,
	}
}

type Result = models.CompactionResult

type Compactor struct {
	cfg Config
}

var _ service.Compactor = (*Compactor)(nil)

func New(cfg Config) *Compactor {
	def := DefaultConfig()
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = def.MaxGap
	}
	if cfg.MoveThreshold <= 0 {
		cfg.MoveThreshold = def.MoveThreshold
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = def.FlushEvery
	}
	if cfg.LadderDepth < 0 {
		cfg.LadderDepth = def.LadderDepth
	}
	return &Compactor{cfg: cfg}
}

// window accumulates one product-hour.
type window struct {
	first, prev, lastRetained *models.RawSnapshot
	sum                       models.HourSummary
	pending                   []models.MinutePoint
}

// Compact reads the snapshots of productID in [windowStart, windowStart+1h) from source.
// Retained points are handed to sink in batches of FlushEvery; the summary is returned
// for the caller to upsert. An empty window yields a nil Summary and no error.
func (c *Compactor) Compact(ctx context.Context, productID string, windowStart time.Time, source service.SnapshotSource, sink service.PointSink) (Result, error) {
	windowStart = util.HourStart(windowStart)
	windowEnd := windowStart.Add(time.Hour)

	w := &window{}
	w.sum.ProductID = productID
	w.sum.HourStart = windowStart

	var res Result
	err := source(ctx, func(in *models.RawSnapshot) error {
		// sources may reuse the value they yield
		cp := *in
		s := &cp
		if s.ProductID != productID {
			return fmt.Errorf("%w: snapshot for %s in stream of %s", repository.ErrInvalidInput, s.ProductID, productID)
		}
		if s.FetchedAt.Before(windowStart) || !s.FetchedAt.Before(windowEnd) {
			return fmt.Errorf("%w: %s fetched at %s outside window %s", repository.ErrInvalidInput,
				productID, s.FetchedAt.Format(time.RFC3339), windowStart.Format(time.RFC3339))
		}
		if w.prev != nil {
			if s.FetchedAt.Before(w.prev.FetchedAt) {
				return fmt.Errorf("%w: %s snapshots out of order", repository.ErrInvalidInput, productID)
			}
			if s.FetchedAt.Equal(w.prev.FetchedAt) {
				// duplicate delivery
				return nil
			}
		}

		res.RawCount++
		if w.first == nil {
			c.open(w, s)
		} else {
			c.step(w, s)
		}
		w.prev = s

		if len(w.pending) >= c.cfg.FlushEvery {
			return c.flush(ctx, w, sink)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("compact %s@%s: %w", productID, windowStart.Format(time.RFC3339), err)
	}

	if w.first == nil {
		return Result{}, nil
	}
	if err := c.flush(ctx, w, sink); err != nil {
		return Result{}, fmt.Errorf("compact %s@%s: %w", productID, windowStart.Format(time.RFC3339), err)
	}

	c.close(w)
	w.sum.SnapshotCount = res.RawCount
	res.Summary = &w.sum
	res.Retained = w.sum.RetainedCount
	return res, nil
}

func (c *Compactor) open(w *window, s *models.RawSnapshot) {
	w.first = s
	m := &w.sum.HourMetrics
	m.OpenInstantBuyPrice = s.InstantBuyPrice
	m.MinInstantBuyPrice = s.InstantBuyPrice
	m.MaxInstantBuyPrice = s.InstantBuyPrice
	m.OpenInstantSellPrice = s.InstantSellPrice
	m.MinInstantSellPrice = s.InstantSellPrice
	m.MaxInstantSellPrice = s.InstantSellPrice
	c.retain(w, s)
}

func (c *Compactor) step(w *window, s *models.RawSnapshot) {
	m := &w.sum.HourMetrics

	// extrema cover every raw reading, not only retained ones
	m.MinInstantBuyPrice = min(m.MinInstantBuyPrice, s.InstantBuyPrice)
	m.MaxInstantBuyPrice = max(m.MaxInstantBuyPrice, s.InstantBuyPrice)
	m.MinInstantSellPrice = min(m.MinInstantSellPrice, s.InstantSellPrice)
	m.MaxInstantSellPrice = max(m.MaxInstantSellPrice, s.InstantSellPrice)

	prev := w.prev
	if d := s.ActiveBuyOrders - prev.ActiveBuyOrders; d > 0 {
		m.CreatedBuyOrders += float64(d)
		m.AddedBuyItems += float64(abs64(s.BuyVolume - prev.BuyVolume))
	}
	if d := s.ActiveSellOrders - prev.ActiveSellOrders; d > 0 {
		m.CreatedSellOrders += float64(d)
		m.AddedSellItems += float64(abs64(s.SellVolume - prev.SellVolume))
	}

	if c.shouldRetain(w.lastRetained, s) {
		c.retain(w, s)
	}
}

func (c *Compactor) shouldRetain(last, s *models.RawSnapshot) bool {
	if s.FetchedAt.Sub(last.FetchedAt) >= c.cfg.MaxGap {
		return true
	}
	return util.RelChange(last.InstantBuyPrice, s.InstantBuyPrice) >= c.cfg.MoveThreshold ||
		util.RelChange(last.InstantSellPrice, s.InstantSellPrice) >= c.cfg.MoveThreshold
}

func (c *Compactor) retain(w *window, s *models.RawSnapshot) {
	w.lastRetained = s
	w.sum.RetainedCount++
	w.pending = append(w.pending, models.MinutePoint{
		HourStart:   w.sum.HourStart,
		RawSnapshot: s.Truncated(c.cfg.LadderDepth),
	})
}

func (c *Compactor) close(w *window) {
	first, last := w.first, w.prev
	m := &w.sum.HourMetrics
	m.CloseInstantBuyPrice = last.InstantBuyPrice
	m.CloseInstantSellPrice = last.InstantSellPrice
	m.DeltaBuyOrders = float64(last.ActiveBuyOrders - first.ActiveBuyOrders)
	m.DeltaSellOrders = float64(last.ActiveSellOrders - first.ActiveSellOrders)
	m.DeltaBuyVolume = float64(last.BuyVolume - first.BuyVolume)
	m.DeltaSellVolume = float64(last.SellVolume - first.SellVolume)
	m.InstaBuyFlow = float64(last.BuyMovingWeek) / weekHours
	m.InstaSellFlow = float64(last.SellMovingWeek) / weekHours
}

func (c *Compactor) flush(ctx context.Context, w *window, sink service.PointSink) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if sink != nil {
		if err := sink(ctx, w.pending); err != nil {
			return fmt.Errorf("store points: %w", err)
		}
	}
	w.pending = make([]models.MinutePoint, 0, c.cfg.FlushEvery)
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
