package models

import "time"

// HourMetrics are the numeric per-hour fields shared by HourSummary and the
// rolling means in FinanceMetricsWindow.
type HourMetrics struct {
	OpenInstantBuyPrice  float64 `json:"open_instant_buy_price"`
	CloseInstantBuyPrice float64 `json:"close_instant_buy_price"`
	MinInstantBuyPrice   float64 `json:"min_instant_buy_price"`
	MaxInstantBuyPrice   float64 `json:"max_instant_buy_price"`

	OpenInstantSellPrice  float64 `json:"open_instant_sell_price"`
	CloseInstantSellPrice float64 `json:"close_instant_sell_price"`
	MinInstantSellPrice   float64 `json:"min_instant_sell_price"`
	MaxInstantSellPrice   float64 `json:"max_instant_sell_price"`

	// order-count increases only
	CreatedBuyOrders  float64 `json:"created_buy_orders"`
	CreatedSellOrders float64 `json:"created_sell_orders"`
	AddedBuyItems     float64 `json:"added_buy_items"`
	AddedSellItems    float64 `json:"added_sell_items"`

	// last minus first
	DeltaBuyOrders  float64 `json:"delta_buy_orders"`
	DeltaSellOrders float64 `json:"delta_sell_orders"`
	DeltaBuyVolume  float64 `json:"delta_buy_volume"`
	DeltaSellVolume float64 `json:"delta_sell_volume"`

	// units/hour, from the closing snapshot's moving-week counters
	InstaBuyFlow  float64 `json:"insta_buy_flow"`
	InstaSellFlow float64 `json:"insta_sell_flow"`
}

// Add accumulates o field by field.
func (m *HourMetrics) Add(o *HourMetrics) {
	m.OpenInstantBuyPrice += o.OpenInstantBuyPrice
	m.CloseInstantBuyPrice += o.CloseInstantBuyPrice
	m.MinInstantBuyPrice += o.MinInstantBuyPrice
	m.MaxInstantBuyPrice += o.MaxInstantBuyPrice
	m.OpenInstantSellPrice += o.OpenInstantSellPrice
	m.CloseInstantSellPrice += o.CloseInstantSellPrice
	m.MinInstantSellPrice += o.MinInstantSellPrice
	m.MaxInstantSellPrice += o.MaxInstantSellPrice
	m.CreatedBuyOrders += o.CreatedBuyOrders
	m.CreatedSellOrders += o.CreatedSellOrders
	m.AddedBuyItems += o.AddedBuyItems
	m.AddedSellItems += o.AddedSellItems
	m.DeltaBuyOrders += o.DeltaBuyOrders
	m.DeltaSellOrders += o.DeltaSellOrders
	m.DeltaBuyVolume += o.DeltaBuyVolume
	m.DeltaSellVolume += o.DeltaSellVolume
	m.InstaBuyFlow += o.InstaBuyFlow
	m.InstaSellFlow += o.InstaSellFlow
}

// Scale multiplies every field by f.
func (m *HourMetrics) Scale(f float64) {
	m.OpenInstantBuyPrice *= f
	m.CloseInstantBuyPrice *= f
	m.MinInstantBuyPrice *= f
	m.MaxInstantBuyPrice *= f
	m.OpenInstantSellPrice *= f
	m.CloseInstantSellPrice *= f
	m.MinInstantSellPrice *= f
	m.MaxInstantSellPrice *= f
	m.CreatedBuyOrders *= f
	m.CreatedSellOrders *= f
	m.AddedBuyItems *= f
	m.AddedSellItems *= f
	m.DeltaBuyOrders *= f
	m.DeltaSellOrders *= f
	m.DeltaBuyVolume *= f
	m.DeltaSellVolume *= f
	m.InstaBuyFlow *= f
	m.InstaSellFlow *= f
}

// HourSummary is the compacted aggregate of one product over one hour.
// Exactly one exists per (ProductID, HourStart).
type HourSummary struct {
	ProductID string    `json:"product_id"`
	HourStart time.Time `json:"hour_start"`
	HourMetrics

	SnapshotCount int `json:"snapshot_count"`
	RetainedCount int `json:"retained_count"`

	// Points is populated only when explicitly loaded.
	Points []MinutePoint `json:"points,omitempty"`
}

// HourEnd is the exclusive end of the summary window.
func (h *HourSummary) HourEnd() time.Time { return h.HourStart.Add(time.Hour) }

// MinutePoint is a retained, ladder-truncated copy of a raw snapshot owned by
// the HourSummary at (ProductID, HourStart).
type MinutePoint struct {
	HourStart time.Time `json:"hour_start"`
	RawSnapshot
}

// CompactionResult is the outcome of compacting one product-hour.
// Summary is nil when the window held no snapshots.
type CompactionResult struct {
	Summary  *HourSummary
	RawCount int
	Retained int
}

// CompactionProgress is the watermark below which raw snapshots are compacted.
type CompactionProgress struct {
	ProcessedUntil time.Time `json:"processed_until"`
}
