package repository

import "fmt"

// ClickHouse tables. ReplacingMergeTree plus FINAL on read gives upsert semantics.
const (
	tableRawSnapshots    = "raw_snapshots"
	tableLatestSnapshots = "latest_snapshots"
	tableHourSummaries   = "hour_summaries"
	tableMinutePoints    = "minute_points"
	tableProgress        = "compaction_progress"
)

const snapshotColumnsDDL = `
	product_id          LowCardinality(String),
	fetched_at          DateTime64(3, 'UTC'),
	api_timestamp       DateTime64(3, 'UTC'),
	instant_buy_price   Float64,
	instant_sell_price  Float64,
	weighted_buy_price  Float64,
	weighted_sell_price Float64,
	buy_moving_week     Int64,
	sell_moving_week    Int64,
	active_buy_orders   Int64,
	active_sell_orders  Int64,
	buy_volume          Int64,
	sell_volume         Int64`

const metricColumnsDDL = `
	open_instant_buy_price   Float64,
	close_instant_buy_price  Float64,
	min_instant_buy_price    Float64,
	max_instant_buy_price    Float64,
	open_instant_sell_price  Float64,
	close_instant_sell_price Float64,
	min_instant_sell_price   Float64,
	max_instant_sell_price   Float64,
	created_buy_orders       Float64,
	created_sell_orders      Float64,
	added_buy_items          Float64,
	added_sell_items         Float64,
	delta_buy_orders         Float64,
	delta_sell_orders        Float64,
	delta_buy_volume         Float64,
	delta_sell_volume        Float64,
	insta_buy_flow           Float64,
	insta_sell_flow          Float64`

// ClickHouseSchema returns the idempotent DDL for database db.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (%s,
	buy_ladder  String,
	sell_ladder String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMMDD(fetched_at)
ORDER BY (product_id, fetched_at)`, db, tableRawSnapshots, snapshotColumnsDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (%s
) ENGINE = ReplacingMergeTree(fetched_at)
ORDER BY product_id`, db, tableLatestSnapshots, snapshotColumnsDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	product_id     LowCardinality(String),
	hour_start     DateTime('UTC'),%s,
	snapshot_count UInt32,
	retained_count UInt32,
	updated_at     DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
PARTITION BY toYYYYMM(hour_start)
ORDER BY (product_id, hour_start)`, db, tableHourSummaries, metricColumnsDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	hour_start DateTime('UTC'),%s,
	buy_ladder  String,
	sell_ladder String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(hour_start)
ORDER BY (product_id, fetched_at)`, db, tableMinutePoints, snapshotColumnsDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	id              UInt8,
	processed_until DateTime64(3, 'UTC'),
	updated_at      DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY id`, db, tableProgress),
	}
}
