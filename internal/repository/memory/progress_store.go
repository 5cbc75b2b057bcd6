package memory

import (
	"context"
	"sync"
	"time"

	"BazaarPull/internal/domain/repository"
)

type ProgressStore struct {
	mu    sync.Mutex
	until time.Time
}

var _ repository.ProgressStore = (*ProgressStore)(nil)

func NewProgressStore() *ProgressStore { return &ProgressStore{} }

func (s *ProgressStore) GetProcessedUntil(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until, nil
}

func (s *ProgressStore) SetProcessedUntil(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until = t.UTC()
	return nil
}
