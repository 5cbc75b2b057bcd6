package usecase

import (
	"context"
	"fmt"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	applogger "BazaarPull/pkg/logger"
	"BazaarPull/pkg/queue"
	"BazaarPull/pkg/scheduler"
)

const (
	RecomputeMessageType = "recompute"

	TaskAll         = "all"
	TaskCompaction  = "compaction"
	TaskAggregation = "aggregation"
)

// Trigger is a single-flight task entry point; *scheduler.Runner implements it.
type Trigger interface {
	Name() string
	Trigger(ctx context.Context) (scheduler.Outcome, error)
}

// RecomputeJob runs batch tasks on request. It goes through the same runners as
// the schedule, so a request that overlaps a scheduled run is skipped.
type RecomputeJob struct {
	triggers map[string]Trigger
	order    []string
	l        *applogger.Logger
}

func NewRecomputeJob(l *applogger.Logger, triggers ...Trigger) *RecomputeJob {
	if l == nil {
		l = applogger.Nop()
	}
	j := &RecomputeJob{triggers: make(map[string]Trigger, len(triggers)), l: l}
	for _, t := range triggers {
		j.triggers[t.Name()] = t
		j.order = append(j.order, t.Name())
	}
	return j
}

func (j *RecomputeJob) Name() string { return "recompute" }
func (j *RecomputeJob) Type() string { return RecomputeMessageType }

func (j *RecomputeJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.RecomputeRequest](payload)
	if err != nil {
		return err
	}
	return j.Run(ctx, req.Task)
}

// Run triggers task, or every registered task in registration order for "all".
func (j *RecomputeJob) Run(ctx context.Context, task string) error {
	names := []string{task}
	if task == "" || task == TaskAll {
		names = j.order
	}
	for _, name := range names {
		t, ok := j.triggers[name]
		if !ok {
			return fmt.Errorf("%w: unknown task %q", domrepo.ErrInvalidInput, name)
		}
		out, err := t.Trigger(ctx)
		if err != nil {
			return fmt.Errorf("recompute %s: %w", name, err)
		}
		if out == scheduler.Skipped {
			j.l.Info("recompute skipped, task busy", applogger.String("task", name))
		}
	}
	return nil
}

var _ queue.Job = (*RecomputeJob)(nil)

// AdminService hands recompute requests to the queue, or runs them in the
// background when no queue is configured.
type AdminService struct {
	job   *RecomputeJob
	queue queue.QueueService
	l     *applogger.Logger
}

func NewAdminService(job *RecomputeJob, q queue.QueueService, l *applogger.Logger) *AdminService {
	if l == nil {
		l = applogger.Nop()
	}
	return &AdminService{job: job, queue: q, l: l}
}

// Recompute returns once the request is accepted, not when the run finishes.
func (s *AdminService) Recompute(ctx context.Context, req models.RecomputeRequest) error {
	if req.Task == "" {
		req.Task = TaskAll
	}
	if req.Task != TaskAll {
		if _, ok := s.job.triggers[req.Task]; !ok {
			return fmt.Errorf("%w: unknown task %q", domrepo.ErrInvalidInput, req.Task)
		}
	}
	if s.queue != nil {
		if err := s.queue.PublishMessage(ctx, RecomputeMessageType, req); err != nil {
			return fmt.Errorf("enqueue recompute: %w", err)
		}
		return nil
	}

	go func() {
		if err := s.job.Run(context.WithoutCancel(ctx), req.Task); err != nil {
			s.l.Error("recompute failed", applogger.String("task", req.Task), applogger.Error(err))
		}
	}()
	return nil
}
