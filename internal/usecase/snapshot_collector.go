package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/internal/middleware"
	applogger "BazaarPull/pkg/logger"
)

// Broadcaster fans a poll result out to live subscribers.
type Broadcaster interface {
	Broadcast(snaps []*models.RawSnapshot)
}

// SnapshotCollector polls the feed on a fixed cadence and pushes every result
// through the pipeline. A failed poll is logged and retried on the next tick.
type SnapshotCollector struct {
	feed     domrepo.SnapshotFeed
	pipe     *middleware.SnapshotPipeline
	hub      Broadcaster
	metrics  domrepo.Metrics
	interval time.Duration
	l        *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSnapshotCollector(
	feed domrepo.SnapshotFeed,
	pipe *middleware.SnapshotPipeline,
	hub Broadcaster,
	metrics domrepo.Metrics,
	interval time.Duration,
	l *applogger.Logger,
) *SnapshotCollector {
	if interval <= 0 {
		interval = time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SnapshotCollector{
		feed:     feed,
		pipe:     pipe,
		hub:      hub,
		metrics:  metrics,
		interval: interval,
		l:        l.With(applogger.String("component", "collector")),
	}
}

// Start polls once immediately and then every interval until Shutdown.
func (c *SnapshotCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("collector already started")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			if _, err := c.PollOnce(ctx); err != nil && ctx.Err() == nil {
				c.l.Warn("poll failed", applogger.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	c.l.Info("collector started", applogger.Duration("interval_ms", c.interval))
	return nil
}

// PollOnce fetches one feed snapshot and returns how many products the pipeline accepted.
func (c *SnapshotCollector) PollOnce(ctx context.Context) (int, error) {
	start := time.Now()
	snaps, err := c.feed.Fetch(ctx)
	if err != nil {
		c.metrics.RecordError("feed_fetch")
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	c.metrics.RecordLatency("feed_fetch", time.Since(start).Seconds())

	if c.hub != nil {
		c.hub.Broadcast(snaps)
	}
	accepted, err := c.pipe.Process(ctx, snaps)
	if err != nil {
		// buffered by the pipeline, retried in the background
		return accepted, err
	}
	c.l.Debug("poll processed", applogger.Int("products", len(snaps)), applogger.Int("accepted", accepted))
	return accepted, nil
}

// Shutdown stops polling, retries buffered snapshots once and stops the pipeline.
func (c *SnapshotCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()

	_, err := c.pipe.Flush(ctx)
	c.pipe.Stop()
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	c.l.Info("collector stopped")
	return nil
}
