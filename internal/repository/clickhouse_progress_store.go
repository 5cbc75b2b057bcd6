package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domrepo "BazaarPull/internal/domain/repository"
	pkgch "BazaarPull/pkg/clickhouse"
)

// the table holds a single watermark row
const progressRowID uint8 = 1

type CHProgressStore struct {
	ch    *pkgch.Client
	table string
}

var _ domrepo.ProgressStore = (*CHProgressStore)(nil)

func NewCHProgressStore(ch *pkgch.Client) *CHProgressStore {
	return &CHProgressStore{ch: ch, table: ch.Database() + "." + tableProgress}
}

func (s *CHProgressStore) GetProcessedUntil(ctx context.Context) (time.Time, error) {
	q := fmt.Sprintf(`SELECT processed_until FROM %s FINAL WHERE id = ?`, s.table)
	var t time.Time
	err := s.ch.DB().QueryRowContext(ctx, q, progressRowID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get processed_until: %w", err)
	}
	return t.UTC(), nil
}

func (s *CHProgressStore) SetProcessedUntil(ctx context.Context, t time.Time) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, processed_until, updated_at)`, s.table)
	err := s.ch.InsertBatch(ctx, q, 1, func(int) []any {
		return []any{progressRowID, t.UTC(), time.Now().UTC()}
	})
	if err != nil {
		return fmt.Errorf("set processed_until: %w", err)
	}
	return nil
}
