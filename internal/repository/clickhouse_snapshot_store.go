package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	pkgch "BazaarPull/pkg/clickhouse"
	applogger "BazaarPull/pkg/logger"
)

const snapshotCols = `product_id, fetched_at, api_timestamp,
	instant_buy_price, instant_sell_price, weighted_buy_price, weighted_sell_price,
	buy_moving_week, sell_moving_week, active_buy_orders, active_sell_orders, buy_volume, sell_volume`

// CHSnapshotStore keeps raw snapshots and a latest-per-product view in ClickHouse.
type CHSnapshotStore struct {
	ch     *pkgch.Client
	db     *sql.DB
	raw    string
	latest string
	l      *applogger.Logger
}

var _ domrepo.SnapshotStore = (*CHSnapshotStore)(nil)

func NewCHSnapshotStore(ch *pkgch.Client, l *applogger.Logger) *CHSnapshotStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSnapshotStore{
		ch:     ch,
		db:     ch.DB(),
		raw:    ch.Database() + "." + tableRawSnapshots,
		latest: ch.Database() + "." + tableLatestSnapshots,
		l:      l,
	}
}

func (s *CHSnapshotStore) StoreBatch(ctx context.Context, snaps []*models.RawSnapshot) error {
	rows := make([]*models.RawSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap != nil {
			rows = append(rows, snap)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	ladders := make([][2]string, len(rows))
	for i, snap := range rows {
		b, err := encodeLadder(snap.BuyLadder)
		if err != nil {
			return fmt.Errorf("encode %s buy ladder: %w", snap.ProductID, err)
		}
		sl, err := encodeLadder(snap.SellLadder)
		if err != nil {
			return fmt.Errorf("encode %s sell ladder: %w", snap.ProductID, err)
		}
		ladders[i] = [2]string{b, sl}
	}

	start := time.Now()
	q := fmt.Sprintf("INSERT INTO %s (%s, buy_ladder, sell_ladder)", s.raw, snapshotCols)
	err := s.ch.InsertBatch(ctx, q, len(rows), func(i int) []any {
		return append(snapshotArgs(rows[i]), ladders[i][0], ladders[i][1])
	})
	if err != nil {
		return fmt.Errorf("store raw snapshots: %w", err)
	}

	q = fmt.Sprintf("INSERT INTO %s (%s)", s.latest, snapshotCols)
	if err := s.ch.InsertBatch(ctx, q, len(rows), func(i int) []any { return snapshotArgs(rows[i]) }); err != nil {
		return fmt.Errorf("store latest snapshots: %w", err)
	}
	s.l.Debug("clickhouse store_batch ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// StreamWindow reuses one snapshot value across rows; fn must copy what it keeps.
func (s *CHSnapshotStore) StreamWindow(ctx context.Context, productID string, from, to time.Time, fn func(*models.RawSnapshot) error) error {
	q := fmt.Sprintf(`
		SELECT %s, buy_ladder, sell_ladder
		FROM %s FINAL
		WHERE product_id = ? AND fetched_at >= ? AND fetched_at < ?
		ORDER BY fetched_at ASC`, snapshotCols, s.raw)
	rows, err := s.db.QueryContext(ctx, q, productID, from.UTC(), to.UTC())
	if err != nil {
		return fmt.Errorf("stream window %s: %w", productID, err)
	}
	defer rows.Close()

	var (
		snap      models.RawSnapshot
		buy, sell string
	)
	for rows.Next() {
		snap = models.RawSnapshot{}
		if err := rows.Scan(append(snapshotDest(&snap), &buy, &sell)...); err != nil {
			return fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.BuyLadder, err = decodeLadder(buy); err != nil {
			return fmt.Errorf("decode %s buy ladder: %w", productID, err)
		}
		if snap.SellLadder, err = decodeLadder(sell); err != nil {
			return fmt.Errorf("decode %s sell ladder: %w", productID, err)
		}
		if err := fn(&snap); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *CHSnapshotStore) OldestUnprocessed(ctx context.Context, since time.Time) (time.Time, bool, error) {
	q := fmt.Sprintf(`SELECT min(fetched_at), count() FROM %s WHERE fetched_at >= ?`, s.raw)
	var (
		oldest time.Time
		n      uint64
	)
	if err := s.db.QueryRowContext(ctx, q, since.UTC()).Scan(&oldest, &n); err != nil {
		return time.Time{}, false, fmt.Errorf("oldest unprocessed: %w", err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	return oldest.UTC(), true, nil
}

func (s *CHSnapshotStore) ProductIDsInWindow(ctx context.Context, from, to time.Time) ([]string, error) {
	q := fmt.Sprintf(`
		SELECT DISTINCT product_id FROM %s
		WHERE fetched_at >= ? AND fetched_at < ?
		ORDER BY product_id`, s.raw)
	return queryStrings(ctx, s.db, q, from.UTC(), to.UTC())
}

func (s *CHSnapshotStore) Latest(ctx context.Context) ([]*models.RawSnapshot, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL ORDER BY product_id`, snapshotCols, s.latest)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]*models.RawSnapshot, 0, 2048)
	for rows.Next() {
		snap := &models.RawSnapshot{}
		if err := rows.Scan(snapshotDest(snap)...); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// LatestOne reads ladders from the newest raw row when it still exists.
func (s *CHSnapshotStore) LatestOne(ctx context.Context, productID string) (*models.RawSnapshot, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL WHERE product_id = ?`, snapshotCols, s.latest)
	snap := &models.RawSnapshot{}
	err := s.db.QueryRowContext(ctx, q, productID).Scan(snapshotDest(snap)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot %s: %w", productID, err)
	}

	q = fmt.Sprintf(`SELECT buy_ladder, sell_ladder FROM %s WHERE product_id = ? AND fetched_at = ? LIMIT 1`, s.raw)
	var buy, sell string
	err = s.db.QueryRowContext(ctx, q, productID, snap.FetchedAt).Scan(&buy, &sell)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("latest ladders %s: %w", productID, err)
	}
	if snap.BuyLadder, err = decodeLadder(buy); err != nil {
		return nil, err
	}
	if snap.SellLadder, err = decodeLadder(sell); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *CHSnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	q := fmt.Sprintf(`ALTER TABLE %s DELETE WHERE fetched_at < ?`, s.raw)
	if _, err := s.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
		return fmt.Errorf("delete raw before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.l.Info("clickhouse raw snapshots deleted", applogger.Time("cutoff", cutoff))
	return nil
}

func snapshotArgs(s *models.RawSnapshot) []any {
	return []any{
		s.ProductID, s.FetchedAt.UTC(), s.APITimestamp.UTC(),
		s.InstantBuyPrice, s.InstantSellPrice, s.WeightedBuyPrice, s.WeightedSellPrice,
		s.BuyMovingWeek, s.SellMovingWeek, s.ActiveBuyOrders, s.ActiveSellOrders, s.BuyVolume, s.SellVolume,
	}
}

func snapshotDest(s *models.RawSnapshot) []any {
	return []any{
		&s.ProductID, &s.FetchedAt, &s.APITimestamp,
		&s.InstantBuyPrice, &s.InstantSellPrice, &s.WeightedBuyPrice, &s.WeightedSellPrice,
		&s.BuyMovingWeek, &s.SellMovingWeek, &s.ActiveBuyOrders, &s.ActiveSellOrders, &s.BuyVolume, &s.SellVolume,
	}
}

func encodeLadder(l []models.OrderLevel) (string, error) {
	if len(l) == 0 {
		return "", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeLadder(s string) ([]models.OrderLevel, error) {
	if s == "" {
		return nil, nil
	}
	var l []models.OrderLevel
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil, fmt.Errorf("decode ladder: %w", err)
	}
	return l, nil
}

func queryStrings(ctx context.Context, db *sql.DB, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
