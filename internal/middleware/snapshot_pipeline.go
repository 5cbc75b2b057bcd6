package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	applogger "BazaarPull/pkg/logger"
)

// Proc is the downstream the pipeline forwards accepted batches to.
type Proc interface {
	ProcessBatch(ctx context.Context, snaps []*models.RawSnapshot) error
}

// SnapshotPipeline sits between the feed poller and the processor. It
// validates, throttles per product and buffers when downstream is unavailable.
type SnapshotPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *applogger.Logger

	minInterval time.Duration
	bufSize     int
	backoffMin  time.Duration
	backoffMax  time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-product last accepted fetch time
	pending  []*models.RawSnapshot

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type PipelineOption func(*SnapshotPipeline)

// WithMinInterval accepts at most one snapshot per product per interval of fetch time.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if d >= 0 {
			p.minInterval = d
		}
	}
}

// WithBufferSize caps the snapshots held while downstream is failing.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the flush retry backoff range.
func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *SnapshotPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func NewSnapshotPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		proc:        proc,
		metrics:     metrics,
		log:         applogger.Nop(),
		minInterval: 30 * time.Second,
		bufSize:     5000,
		backoffMin:  100 * time.Millisecond,
		backoffMax:  10 * time.Second,
		lastSeen:    make(map[string]time.Time),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			flushed, err := p.Flush(ctx)
			switch {
			case err != nil:
				// exponential backoff with cap
				if backoff *= 2; backoff > p.backoffMax {
					backoff = p.backoffMax
				}
			default:
				if flushed > 0 {
					p.log.Info("pipeline buffer flushed", applogger.Int("snapshots", flushed))
				}
				backoff = p.backoffMin
			}
		}
	}()
}

// Stop halts background flushing. Snapshots still buffered are dropped.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()

	if n := p.Pending(); n > 0 {
		p.log.Warn("pipeline stopped with buffered snapshots", applogger.Int("snapshots", n))
	}
}

// Process validates and throttles snaps and forwards the accepted ones. On a
// downstream failure they are buffered for the background flusher and the
// error is returned.
func (p *SnapshotPipeline) Process(ctx context.Context, snaps []*models.RawSnapshot) (accepted int, err error) {
	start := time.Now()
	batch := make([]*models.RawSnapshot, 0, len(snaps))

	p.mu.Lock()
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			p.metrics.RecordError("pipeline_validate")
			p.log.Debug("snapshot rejected", applogger.Error(err))
			continue
		}
		if !p.allow(s) {
			p.metrics.RecordError("pipeline_throttle")
			continue
		}
		batch = append(batch, s)
	}
	p.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := p.proc.ProcessBatch(ctx, batch); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(batch)
		return len(batch), fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return len(batch), nil
}

// Flush retries the buffered snapshots once.
func (p *SnapshotPipeline) Flush(ctx context.Context) (int, error) {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := p.proc.ProcessBatch(ctx, batch); err != nil {
		p.metrics.RecordError("pipeline_flush")
		p.buffer(batch)
		return 0, err
	}
	return len(batch), nil
}

// Pending returns the number of buffered snapshots.
func (p *SnapshotPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// buffer appends batch, dropping the oldest snapshots beyond the cap.
func (p *SnapshotPipeline) buffer(batch []*models.RawSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, batch...)
	if over := len(p.pending) - p.bufSize; over > 0 {
		p.pending = append([]*models.RawSnapshot(nil), p.pending[over:]...)
		p.metrics.RecordError("pipeline_buffer_drop")
		p.log.Warn("pipeline buffer full, dropped oldest snapshots", applogger.Int("dropped", over))
	}
	p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.pending)))
}

// allow must be called with mu held.
func (p *SnapshotPipeline) allow(s *models.RawSnapshot) bool {
	last, ok := p.lastSeen[s.ProductID]
	if ok && (!s.FetchedAt.After(last) || s.FetchedAt.Sub(last) < p.minInterval) {
		return false
	}
	p.lastSeen[s.ProductID] = s.FetchedAt
	return true
}
