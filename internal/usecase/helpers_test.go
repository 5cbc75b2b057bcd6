package usecase

import (
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	mu        sync.Mutex
	errors    map[string]int
	sent      map[string]int
	compacted int
	retained  int
	aggRows   int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, sent: map[string]int{}}
}

func (m *fakeMetrics) RecordMessageSent(backend string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend] += n
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLastPrice(string, string, float64)  {}
func (m *fakeMetrics) RecordLatency(string, float64)            {}
func (m *fakeMetrics) RecordJobRun(string, string, float64)     {}
func (m *fakeMetrics) RecordJobSkipped(string)                  {}

func (m *fakeMetrics) RecordCompaction(products, raw, retained int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compacted += products
	m.retained += retained
}

func (m *fakeMetrics) RecordAggregation(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggRows += rows
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func snapAt(id string, at time.Time, buy, sell float64) *models.RawSnapshot {
	return &models.RawSnapshot{
		ProductID:        id,
		FetchedAt:        at,
		InstantBuyPrice:  buy,
		InstantSellPrice: sell,
		BuyMovingWeek:    1680,
		SellMovingWeek:   1680,
	}
}

// hourOf returns one snapshot per minute for the hour starting at start.
func hourOf(id string, start time.Time) []*models.RawSnapshot {
	out := make([]*models.RawSnapshot, 0, 60)
	for i := 0; i < 60; i++ {
		out = append(out, snapAt(id, start.Add(time.Duration(i)*time.Minute), 105, 100))
	}
	return out
}
