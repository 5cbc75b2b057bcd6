package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	pkgch "BazaarPull/pkg/clickhouse"
	applogger "BazaarPull/pkg/logger"
)

const metricCols = `open_instant_buy_price, close_instant_buy_price, min_instant_buy_price, max_instant_buy_price,
	open_instant_sell_price, close_instant_sell_price, min_instant_sell_price, max_instant_sell_price,
	created_buy_orders, created_sell_orders, added_buy_items, added_sell_items,
	delta_buy_orders, delta_sell_orders, delta_buy_volume, delta_sell_volume,
	insta_buy_flow, insta_sell_flow`

const summaryCols = "product_id, hour_start, " + metricCols + ", snapshot_count, retained_count"

// CHSummaryStore keeps hour summaries and retained minute points in ClickHouse.
type CHSummaryStore struct {
	ch        *pkgch.Client
	db        *sql.DB
	summaries string
	points    string
	l         *applogger.Logger
}

var _ domrepo.SummaryStore = (*CHSummaryStore)(nil)

func NewCHSummaryStore(ch *pkgch.Client, l *applogger.Logger) *CHSummaryStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSummaryStore{
		ch:        ch,
		db:        ch.DB(),
		summaries: ch.Database() + "." + tableHourSummaries,
		points:    ch.Database() + "." + tableMinutePoints,
		l:         l,
	}
}

func (s *CHSummaryStore) UpsertSummary(ctx context.Context, sum *models.HourSummary) error {
	if sum == nil {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s, updated_at)", s.summaries, summaryCols)
	args := append([]any{sum.ProductID, sum.HourStart.UTC()}, metricArgs(&sum.HourMetrics)...)
	args = append(args, uint32(sum.SnapshotCount), uint32(sum.RetainedCount), time.Now().UTC())
	if err := s.ch.InsertBatch(ctx, q, 1, func(int) []any { return args }); err != nil {
		return fmt.Errorf("upsert summary %s@%s: %w", sum.ProductID, sum.HourStart.Format(time.RFC3339), err)
	}
	return nil
}

func (s *CHSummaryStore) StorePoints(ctx context.Context, points []models.MinutePoint) error {
	if len(points) == 0 {
		return nil
	}
	ladders := make([][2]string, len(points))
	for i := range points {
		b, err := encodeLadder(points[i].BuyLadder)
		if err != nil {
			return fmt.Errorf("encode point ladder: %w", err)
		}
		sl, err := encodeLadder(points[i].SellLadder)
		if err != nil {
			return fmt.Errorf("encode point ladder: %w", err)
		}
		ladders[i] = [2]string{b, sl}
	}
	q := fmt.Sprintf("INSERT INTO %s (hour_start, %s, buy_ladder, sell_ladder)", s.points, snapshotCols)
	err := s.ch.InsertBatch(ctx, q, len(points), func(i int) []any {
		args := append([]any{points[i].HourStart.UTC()}, snapshotArgs(&points[i].RawSnapshot)...)
		return append(args, ladders[i][0], ladders[i][1])
	})
	if err != nil {
		return fmt.Errorf("store points: %w", err)
	}
	return nil
}

func (s *CHSummaryStore) LatestN(ctx context.Context, productIDs []string, n int) (map[string][]models.HourSummary, error) {
	out := make(map[string][]models.HourSummary, len(productIDs))
	if len(productIDs) == 0 || n <= 0 {
		return out, nil
	}
	start := time.Now()
	q := fmt.Sprintf(`
		SELECT %s FROM %s FINAL
		WHERE product_id IN (?)
		ORDER BY product_id, hour_start DESC
		LIMIT ? BY product_id`, summaryCols, s.summaries)
	rows, err := s.db.QueryContext(ctx, q, productIDs, n)
	if err != nil {
		s.l.Error("clickhouse latest_summaries query error", applogger.Int("products", len(productIDs)), applogger.Error(err))
		return nil, fmt.Errorf("latest summaries: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out[sum.ProductID] = append(out[sum.ProductID], sum)
		total++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse latest_summaries ok",
		applogger.Int("products", len(productIDs)),
		applogger.Int("rows", total),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSummaryStore) Range(ctx context.Context, productID string, from, to time.Time) ([]models.HourSummary, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s FINAL
		WHERE product_id = ? AND hour_start >= ? AND hour_start < ?
		ORDER BY hour_start ASC`, summaryCols, s.summaries)
	rows, err := s.db.QueryContext(ctx, q, productID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("summary range %s: %w", productID, err)
	}
	defer rows.Close()

	var out []models.HourSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *CHSummaryStore) Points(ctx context.Context, productID string, from, to time.Time) ([]models.MinutePoint, error) {
	q := fmt.Sprintf(`
		SELECT hour_start, %s, buy_ladder, sell_ladder FROM %s FINAL
		WHERE product_id = ? AND fetched_at >= ? AND fetched_at < ?
		ORDER BY fetched_at ASC`, snapshotCols, s.points)
	rows, err := s.db.QueryContext(ctx, q, productID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("points %s: %w", productID, err)
	}
	defer rows.Close()

	var out []models.MinutePoint
	for rows.Next() {
		var (
			p         models.MinutePoint
			buy, sell string
		)
		dest := append([]any{&p.HourStart}, snapshotDest(&p.RawSnapshot)...)
		if err := rows.Scan(append(dest, &buy, &sell)...); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if p.BuyLadder, err = decodeLadder(buy); err != nil {
			return nil, err
		}
		if p.SellLadder, err = decodeLadder(sell); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *CHSummaryStore) ProductIDs(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT product_id FROM %s ORDER BY product_id`, s.summaries)
	return queryStrings(ctx, s.db, q)
}

func (s *CHSummaryStore) DeletePointsBefore(ctx context.Context, cutoff time.Time) error {
	q := fmt.Sprintf(`ALTER TABLE %s DELETE WHERE fetched_at < ?`, s.points)
	if _, err := s.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
		return fmt.Errorf("delete points before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return nil
}

func metricArgs(m *models.HourMetrics) []any {
	return []any{
		m.OpenInstantBuyPrice, m.CloseInstantBuyPrice, m.MinInstantBuyPrice, m.MaxInstantBuyPrice,
		m.OpenInstantSellPrice, m.CloseInstantSellPrice, m.MinInstantSellPrice, m.MaxInstantSellPrice,
		m.CreatedBuyOrders, m.CreatedSellOrders, m.AddedBuyItems, m.AddedSellItems,
		m.DeltaBuyOrders, m.DeltaSellOrders, m.DeltaBuyVolume, m.DeltaSellVolume,
		m.InstaBuyFlow, m.InstaSellFlow,
	}
}

func metricDest(m *models.HourMetrics) []any {
	return []any{
		&m.OpenInstantBuyPrice, &m.CloseInstantBuyPrice, &m.MinInstantBuyPrice, &m.MaxInstantBuyPrice,
		&m.OpenInstantSellPrice, &m.CloseInstantSellPrice, &m.MinInstantSellPrice, &m.MaxInstantSellPrice,
		&m.CreatedBuyOrders, &m.CreatedSellOrders, &m.AddedBuyItems, &m.AddedSellItems,
		&m.DeltaBuyOrders, &m.DeltaSellOrders, &m.DeltaBuyVolume, &m.DeltaSellVolume,
		&m.InstaBuyFlow, &m.InstaSellFlow,
	}
}

func scanSummary(rows *sql.Rows) (models.HourSummary, error) {
	var (
		sum           models.HourSummary
		snaps, retain uint32
	)
	dest := append([]any{&sum.ProductID, &sum.HourStart}, metricDest(&sum.HourMetrics)...)
	if err := rows.Scan(append(dest, &snaps, &retain)...); err != nil {
		return sum, fmt.Errorf("scan summary: %w", err)
	}
	sum.HourStart = sum.HourStart.UTC()
	sum.SnapshotCount = int(snaps)
	sum.RetainedCount = int(retain)
	return sum, nil
}
