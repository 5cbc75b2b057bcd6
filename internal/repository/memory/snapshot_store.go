// Package memory holds in-process implementations of the domain stores. They
// back storage.driver=memory and the use-case tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/repository"
)

type SnapshotStore struct {
	mu     sync.RWMutex
	byID   map[string][]*models.RawSnapshot // fetch-time order
	latest map[string]*models.RawSnapshot
}

var _ repository.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byID:   make(map[string][]*models.RawSnapshot),
		latest: make(map[string]*models.RawSnapshot),
	}
}

// StoreBatch inserts copies; a snapshot with an already stored (product, fetchedAt) replaces it.
func (s *SnapshotStore) StoreBatch(ctx context.Context, snaps []*models.RawSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range snaps {
		if in == nil {
			continue
		}
		cp := in.Clone()
		snap := &cp

		list := s.byID[snap.ProductID]
		i := sort.Search(len(list), func(i int) bool { return !list[i].FetchedAt.Before(snap.FetchedAt) })
		switch {
		case i < len(list) && list[i].FetchedAt.Equal(snap.FetchedAt):
			list[i] = snap
		default:
			list = append(list, nil)
			copy(list[i+1:], list[i:])
			list[i] = snap
		}
		s.byID[snap.ProductID] = list

		if cur, ok := s.latest[snap.ProductID]; !ok || !snap.FetchedAt.Before(cur.FetchedAt) {
			s.latest[snap.ProductID] = snap
		}
	}
	return nil
}

func (s *SnapshotStore) StreamWindow(ctx context.Context, productID string, from, to time.Time, fn func(*models.RawSnapshot) error) error {
	s.mu.RLock()
	var rows []*models.RawSnapshot
	for _, snap := range s.byID[productID] {
		if !snap.FetchedAt.Before(from) && snap.FetchedAt.Before(to) {
			rows = append(rows, snap)
		}
	}
	s.mu.RUnlock()

	for _, snap := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := snap.Clone()
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotStore) OldestUnprocessed(ctx context.Context, since time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest time.Time
	found := false
	for _, list := range s.byID {
		i := sort.Search(len(list), func(i int) bool { return !list[i].FetchedAt.Before(since) })
		if i < len(list) && (!found || list[i].FetchedAt.Before(oldest)) {
			oldest = list[i].FetchedAt
			found = true
		}
	}
	return oldest, found, nil
}

func (s *SnapshotStore) ProductIDsInWindow(ctx context.Context, from, to time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, list := range s.byID {
		i := sort.Search(len(list), func(i int) bool { return !list[i].FetchedAt.Before(from) })
		if i < len(list) && list[i].FetchedAt.Before(to) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SnapshotStore) Latest(ctx context.Context) ([]*models.RawSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RawSnapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		cp := snap.Truncated(0)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *SnapshotStore) LatestOne(ctx context.Context, productID string) (*models.RawSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := snap.Clone()
	return &cp, nil
}

// DeleteBefore drops raw rows only; the latest view survives retention.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, list := range s.byID {
		i := sort.Search(len(list), func(i int) bool { return !list[i].FetchedAt.Before(cutoff) })
		if i == len(list) {
			delete(s.byID, id)
			continue
		}
		s.byID[id] = append([]*models.RawSnapshot(nil), list[i:]...)
	}
	return nil
}

// Count returns the number of raw rows held.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.byID {
		n += len(list)
	}
	return n
}
