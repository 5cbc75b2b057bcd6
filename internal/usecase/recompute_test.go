package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrigger struct {
	name string
	mu   sync.Mutex
	runs int
}

func (f *fakeTrigger) Name() string { return f.name }

func (f *fakeTrigger) Trigger(context.Context) (scheduler.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return scheduler.Ran, nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return nil
}

func TestRecomputeJobHandlesPayload(t *testing.T) {
	comp, agg := &fakeTrigger{name: TaskCompaction}, &fakeTrigger{name: TaskAggregation}
	job := NewRecomputeJob(nil, comp, agg)
	assert.Equal(t, RecomputeMessageType, job.Type())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"task":"aggregation"}`)))
	assert.Zero(t, comp.count())
	assert.Equal(t, 1, agg.count())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"task":"all"}`)))
	assert.Equal(t, 1, comp.count())
	assert.Equal(t, 2, agg.count())

	err := job.Run(context.Background(), "vacuum")
	assert.ErrorIs(t, err, domrepo.ErrInvalidInput)
}

func TestAdminEnqueuesWhenQueueConfigured(t *testing.T) {
	agg := &fakeTrigger{name: TaskAggregation}
	q := &fakeQueue{}
	svc := NewAdminService(NewRecomputeJob(nil, agg), q, nil)

	require.NoError(t, svc.Recompute(context.Background(), models.RecomputeRequest{Task: TaskAggregation}))
	assert.Equal(t, RecomputeMessageType, q.msgType)
	assert.Equal(t, models.RecomputeRequest{Task: TaskAggregation}, q.payload)
	assert.Zero(t, agg.count())

	err := svc.Recompute(context.Background(), models.RecomputeRequest{Task: TaskCompaction})
	assert.ErrorIs(t, err, domrepo.ErrInvalidInput)
}

func TestAdminRunsDirectlyWithoutQueue(t *testing.T) {
	agg := &fakeTrigger{name: TaskAggregation}
	svc := NewAdminService(NewRecomputeJob(nil, agg), nil, nil)

	require.NoError(t, svc.Recompute(context.Background(), models.RecomputeRequest{}))
	assert.Eventually(t, func() bool { return agg.count() == 1 }, time.Second, 5*time.Millisecond)
}
