package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/repository"
)

type summaryKey struct {
	productID string
	hour      int64
}

type pointKey struct {
	productID string
	fetchedAt int64
}

type SummaryStore struct {
	mu        sync.RWMutex
	summaries map[summaryKey]models.HourSummary
	points    map[pointKey]models.MinutePoint
}

var _ repository.SummaryStore = (*SummaryStore)(nil)

func NewSummaryStore() *SummaryStore {
	return &SummaryStore{
		summaries: make(map[summaryKey]models.HourSummary),
		points:    make(map[pointKey]models.MinutePoint),
	}
}

func (s *SummaryStore) UpsertSummary(ctx context.Context, sum *models.HourSummary) error {
	if sum == nil {
		return nil
	}
	cp := *sum
	cp.Points = nil
	s.mu.Lock()
	s.summaries[summaryKey{cp.ProductID, cp.HourStart.Unix()}] = cp
	s.mu.Unlock()
	return nil
}

// StorePoints replaces points with the same (product, fetchedAt), so a re-run window does not duplicate.
func (s *SummaryStore) StorePoints(ctx context.Context, points []models.MinutePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		cp := p
		cp.RawSnapshot = p.Clone()
		s.points[pointKey{p.ProductID, p.FetchedAt.UnixNano()}] = cp
	}
	return nil
}

func (s *SummaryStore) LatestN(ctx context.Context, productIDs []string, n int) (map[string][]models.HourSummary, error) {
	want := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	out := make(map[string][]models.HourSummary, len(productIDs))
	for k, sum := range s.summaries {
		if _, ok := want[k.productID]; ok {
			out[k.productID] = append(out[k.productID], sum)
		}
	}
	s.mu.RUnlock()

	for id, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].HourStart.After(list[j].HourStart) })
		if n > 0 && len(list) > n {
			list = list[:n]
		}
		out[id] = list
	}
	return out, nil
}

func (s *SummaryStore) Range(ctx context.Context, productID string, from, to time.Time) ([]models.HourSummary, error) {
	s.mu.RLock()
	var out []models.HourSummary
	for k, sum := range s.summaries {
		if k.productID == productID && inRange(sum.HourStart, from, to) {
			out = append(out, sum)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].HourStart.Before(out[j].HourStart) })
	return out, nil
}

// Points returns retained points with fetchedAt in [from, to), oldest first.
func (s *SummaryStore) Points(ctx context.Context, productID string, from, to time.Time) ([]models.MinutePoint, error) {
	s.mu.RLock()
	var out []models.MinutePoint
	for k, p := range s.points {
		if k.productID == productID && inRange(p.FetchedAt, from, to) {
			cp := p
			cp.RawSnapshot = p.Clone()
			out = append(out, cp)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FetchedAt.Before(out[j].FetchedAt) })
	return out, nil
}

func (s *SummaryStore) ProductIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for k := range s.summaries {
		seen[k.productID] = struct{}{}
	}
	s.mu.RUnlock()
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SummaryStore) DeletePointsBefore(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.points {
		if p.FetchedAt.Before(cutoff) {
			delete(s.points, k)
		}
	}
	return nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
