package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BazaarPull/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu      sync.Mutex
	runs    map[string]int
	skipped int
}

func (m *fakeMetrics) RecordJobRun(task, status string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = map[string]int{}
	}
	m.runs[status]++
}

func (m *fakeMetrics) RecordJobSkipped(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func blockingTask(started chan<- struct{}, release <-chan struct{}) Task {
	return TaskFunc{TaskName: "compaction", Fn: func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	m := &fakeMetrics{}
	r := NewRunner(blockingTask(started, release), time.Hour, nil, WithMetrics(m))

	first := make(chan Outcome, 1)
	go func() {
		out, _ := r.Trigger(context.Background())
		first <- out
	}()
	<-started

	out, err := r.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)

	close(release)
	assert.Equal(t, Ran, <-first)
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, 1, m.runs["ok"])
}

func TestTriggerSkipsWhenDistributedLockHeld(t *testing.T) {
	locks := cache.NewMemoryCache()
	defer locks.Close()

	var calls int32
	task := TaskFunc{TaskName: "aggregation", Fn: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}

	token, ok, err := locks.TryLock(context.Background(), "scheduler:lock:aggregation", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	r := NewRunner(task, time.Hour, nil, WithLocker(locks, time.Minute))
	out, err := r.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)
	assert.Zero(t, atomic.LoadInt32(&calls))

	require.NoError(t, locks.Unlock(context.Background(), "scheduler:lock:aggregation", token))
	out, err = r.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ran, out)

	// released after the run
	_, ok, err = locks.TryLock(context.Background(), "scheduler:lock:aggregation", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverrunRunKeepsOtherHoldersLock(t *testing.T) {
	locks := cache.NewMemoryCache()
	defer locks.Close()
	const key = "scheduler:lock:compaction"

	var taken bool
	task := TaskFunc{TaskName: "compaction", Fn: func(ctx context.Context) error {
		// outlive the lock ttl, then let another replica take over
		time.Sleep(40 * time.Millisecond)
		_, ok, err := locks.TryLock(ctx, key, time.Minute)
		taken = ok
		return err
	}}

	r := NewRunner(task, time.Hour, nil, WithLocker(locks, 20*time.Millisecond))
	out, err := r.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ran, out)
	require.True(t, taken)

	_, ok, err := locks.TryLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "the other replica still holds the lock")
}

func TestTriggerReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	m := &fakeMetrics{}
	r := NewRunner(TaskFunc{TaskName: "x", Fn: func(context.Context) error { return boom }}, time.Hour, nil, WithMetrics(m))

	out, err := r.Trigger(context.Background())
	assert.Equal(t, Failed, out)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.runs["error"])

	// a failed run releases the lock
	out, _ = r.Trigger(context.Background())
	assert.Equal(t, Failed, out)
}

func TestStartStopWaitsForInFlightRun(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var finished int32
	task := TaskFunc{TaskName: "slow", Fn: func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		atomic.StoreInt32(&finished, 1)
		return nil
	}}

	r := NewRunner(task, time.Hour, nil, WithRunOnStart(true))
	r.Start(context.Background())
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight run finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}
