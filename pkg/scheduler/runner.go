// Package scheduler runs periodic batch tasks with single-flight semantics:
// a trigger that arrives while the previous run is still executing is skipped,
// never queued.
package scheduler

import (
	"context"
	"sync"
	"time"

	"BazaarPull/pkg/logger"
)

// Task is one unit of periodic batch work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string                  { return t.TaskName }
func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

// Locker is a cross-process try-lock. pkg/cache.Service satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Metrics receives run outcomes.
type Metrics interface {
	RecordJobRun(task, status string, seconds float64)
	RecordJobSkipped(task string)
}

// Outcome of a single Trigger call.
type Outcome int

const (
	Ran Outcome = iota
	Skipped
	Failed
)

// Option configures Runner.
type Option func(*Runner)

// WithLocker adds a distributed lock held for the duration of each run.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRunOnStart triggers once immediately when Start is called.
func WithRunOnStart(enabled bool) Option {
	return func(r *Runner) {
		r.runOnStart = enabled
	}
}

// Runner executes a Task on an interval, at most one run at a time.
type Runner struct {
	task     Task
	interval time.Duration
	log      *logger.Logger

	locker     Locker
	lockTTL    time.Duration
	metrics    Metrics
	runOnStart bool

	running sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	stopMu  sync.Mutex
}

func NewRunner(task Task, interval time.Duration, log *logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		task:     task,
		interval: interval,
		log:      log.With(logger.String("task", task.Name())),
		lockTTL:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Name() string { return r.task.Name() }

// Trigger runs the task synchronously unless a run is already in flight,
// locally or (with a Locker) in another process.
func (r *Runner) Trigger(ctx context.Context) (Outcome, error) {
	if !r.running.TryLock() {
		r.skip("local")
		return Skipped, nil
	}
	defer r.running.Unlock()

	if r.locker != nil {
		key := "scheduler:lock:" + r.task.Name()
		token, ok, err := r.locker.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			// an unreachable lock backend must not stall the pipeline; the local mutex still holds
			r.log.Warn("distributed lock unavailable, running with local lock only", logger.Error(err))
		} else if !ok {
			r.skip("distributed")
			return Skipped, nil
		} else {
			defer func() {
				if err := r.locker.Unlock(context.Background(), key, token); err != nil {
					r.log.Warn("distributed unlock failed", logger.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	r.log.Info("run started")
	err := r.task.Run(ctx)
	dur := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		r.log.Error("run failed", logger.Error(err), logger.Duration("duration_ms", dur))
	} else {
		r.log.Info("run finished", logger.Duration("duration_ms", dur))
	}
	if r.metrics != nil {
		r.metrics.RecordJobRun(r.task.Name(), status, dur.Seconds())
	}
	if err != nil {
		return Failed, err
	}
	return Ran, nil
}

func (r *Runner) skip(scope string) {
	r.log.Info("skipped, previous run still active", logger.String("lock", scope))
	if r.metrics != nil {
		r.metrics.RecordJobSkipped(r.task.Name())
	}
}

// Start begins ticking. Each tick triggers the task in its own goroutine so a
// slow run shows up as skipped ticks rather than a drifting ticker.
func (r *Runner) Start(ctx context.Context) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.runOnStart {
			r.spawn(ctx)
		}
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.spawn(ctx)
			}
		}
	}()
	r.log.Info("scheduler started", logger.Duration("interval_ms", r.interval))
}

func (r *Runner) spawn(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// the in-flight unit finishes even after Stop cancels the ticker
		_, _ = r.Trigger(context.WithoutCancel(ctx))
	}()
}

// Stop halts the ticker and waits for an in-flight run to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopMu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.stopMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
