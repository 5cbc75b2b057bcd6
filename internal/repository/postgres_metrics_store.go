package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	applogger "BazaarPull/pkg/logger"
	pkgpg "BazaarPull/pkg/postgres"
)

var metricColumnNames = []string{
	"open_instant_buy_price", "close_instant_buy_price", "min_instant_buy_price", "max_instant_buy_price",
	"open_instant_sell_price", "close_instant_sell_price", "min_instant_sell_price", "max_instant_sell_price",
	"created_buy_orders", "created_sell_orders", "added_buy_items", "added_sell_items",
	"delta_buy_orders", "delta_sell_orders", "delta_buy_volume", "delta_sell_volume",
	"insta_buy_flow", "insta_sell_flow",
}

// PostgresSchema is the idempotent DDL for the metrics window table.
func PostgresSchema() []string {
	cols := make([]string, len(metricColumnNames))
	for i, c := range metricColumnNames {
		cols[i] = c + " DOUBLE PRECISION NOT NULL DEFAULT 0"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS finance_metrics_windows (
	product_id   TEXT NOT NULL,
	window_hours INTEGER NOT NULL,
	observations INTEGER NOT NULL,
	` + strings.Join(cols, ",\n\t") + `,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_id, window_hours)
)`,
	}
}

// PGMetricsWindowStore upserts metrics windows with one transaction per batch.
type PGMetricsWindowStore struct {
	pool    *pkgpg.Pool
	l       *applogger.Logger
	upsert  string
	selectQ string
}

var _ domrepo.MetricsWindowStore = (*PGMetricsWindowStore)(nil)

func NewPGMetricsWindowStore(pool *pkgpg.Pool, l *applogger.Logger) *PGMetricsWindowStore {
	if l == nil {
		l = applogger.Nop()
	}
	cols := append([]string{"product_id", "window_hours", "observations"}, metricColumnNames...)
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[2:] {
		updates = append(updates, c+" = EXCLUDED."+c)
	}
	updates = append(updates, "updated_at = now()")

	return &PGMetricsWindowStore{
		pool: pool,
		l:    l,
		upsert: fmt.Sprintf(`INSERT INTO finance_metrics_windows (%s) VALUES (%s)
ON CONFLICT (product_id, window_hours) DO UPDATE SET %s`,
			strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(updates, ", ")),
		selectQ: fmt.Sprintf(`SELECT %s FROM finance_metrics_windows`, strings.Join(cols, ", ")),
	}
}

func (s *PGMetricsWindowStore) UpsertBatch(ctx context.Context, rows []models.FinanceMetricsWindow) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := range rows {
			r := &rows[i]
			args := append([]any{r.ProductID, r.WindowHours, r.Observations}, metricArgs(&r.HourMetrics)...)
			batch.Queue(s.upsert, args...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert %d metrics windows: %w", len(rows), err)
	}
	s.l.Debug("postgres upsert_windows ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Get filters by productIDs and windows; an empty filter matches everything.
func (s *PGMetricsWindowStore) Get(ctx context.Context, productIDs []string, windows []int) ([]models.FinanceMetricsWindow, error) {
	var (
		where []string
		args  []any
	)
	if len(productIDs) > 0 {
		args = append(args, productIDs)
		where = append(where, fmt.Sprintf("product_id = ANY($%d)", len(args)))
	}
	if len(windows) > 0 {
		ws := make([]int32, len(windows))
		for i, w := range windows {
			ws[i] = int32(w)
		}
		args = append(args, ws)
		where = append(where, fmt.Sprintf("window_hours = ANY($%d)", len(args)))
	}
	q := s.selectQ
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY product_id, window_hours"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get metrics windows: %w", err)
	}
	defer rows.Close()

	var out []models.FinanceMetricsWindow
	for rows.Next() {
		var (
			w        models.FinanceMetricsWindow
			win, obs int32
		)
		dest := append([]any{&w.ProductID, &win, &obs}, metricDest(&w.HourMetrics)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan metrics window: %w", err)
		}
		w.WindowHours, w.Observations = int(win), int(obs)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
