package memory

import (
	"context"
	"sort"
	"sync"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/repository"
)

type MetricsWindowStore struct {
	mu   sync.RWMutex
	rows map[models.WindowKey]models.FinanceMetricsWindow
}

var _ repository.MetricsWindowStore = (*MetricsWindowStore)(nil)

func NewMetricsWindowStore() *MetricsWindowStore {
	return &MetricsWindowStore{rows: make(map[models.WindowKey]models.FinanceMetricsWindow)}
}

func (s *MetricsWindowStore) UpsertBatch(ctx context.Context, rows []models.FinanceMetricsWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.Key()] = r
	}
	return nil
}

// Get filters by productIDs and windows; an empty filter matches everything.
func (s *MetricsWindowStore) Get(ctx context.Context, productIDs []string, windows []int) ([]models.FinanceMetricsWindow, error) {
	ids := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		ids[id] = struct{}{}
	}
	ws := make(map[int]struct{}, len(windows))
	for _, w := range windows {
		ws[w] = struct{}{}
	}

	s.mu.RLock()
	var out []models.FinanceMetricsWindow
	for k, r := range s.rows {
		if _, ok := ids[k.ProductID]; len(ids) > 0 && !ok {
			continue
		}
		if _, ok := ws[k.WindowHours]; len(ws) > 0 && !ok {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WindowHours < out[j].WindowHours
	})
	return out, nil
}
