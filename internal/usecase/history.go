package usecase

import (
	"context"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
)

// DefaultHistorySpan is used when a history request gives no lower bound.
const DefaultHistorySpan = 24 * time.Hour

type HistoryService struct {
	summaries domrepo.SummaryStore
	now       func() time.Time
}

func NewHistoryService(summaries domrepo.SummaryStore) *HistoryService {
	return &HistoryService{summaries: summaries, now: time.Now}
}

// Range returns hour summaries with hourStart in [from, to), oldest first. A zero
// to means now and a zero from means DefaultHistorySpan before to. With detail,
// every summary carries its retained points. An empty range is ErrNotFound.
func (s *HistoryService) Range(ctx context.Context, id string, from, to time.Time, detail bool) ([]models.HourSummary, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultHistorySpan)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", domrepo.ErrInvalidInput)
	}

	sums, err := s.summaries.Range(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	if len(sums) == 0 {
		return nil, fmt.Errorf("history %s: %w", id, domrepo.ErrNotFound)
	}
	if !detail {
		return sums, nil
	}

	// points are keyed by their own fetch time, so cover the whole last hour
	pts, err := s.summaries.Points(ctx, id, sums[0].HourStart, sums[len(sums)-1].HourEnd())
	if err != nil {
		return nil, fmt.Errorf("history points %s: %w", id, err)
	}
	byHour := make(map[int64][]models.MinutePoint, len(sums))
	for _, p := range pts {
		k := p.HourStart.Unix()
		byHour[k] = append(byHour[k], p)
	}
	for i := range sums {
		sums[i].Points = byHour[sums[i].HourStart.Unix()]
	}
	return sums, nil
}
