package models

// RiskInput carries the current instant prices and the optional reference
// prices per side. A nil, non-finite or non-positive reference is absent.
type RiskInput struct {
	InstantBuyPrice  float64
	InstantSellPrice float64

	LiveBuy  *float64
	HistBuy  *float64
	LiveSell *float64
	HistSell *float64
}

// RiskAssessment is the deviation-based risk of a product's current prices.
type RiskAssessment struct {
	RiskScore         float64 `json:"risk_score"`
	ManipulatedLikely bool    `json:"manipulated_likely"`
	BuyDeviation      float64 `json:"buy_deviation"`
	SellDeviation     float64 `json:"sell_deviation"`
	// 0 when the side had no usable reference
	BlendedBuy  float64 `json:"blended_buy"`
	BlendedSell float64 `json:"blended_sell"`
}

// ScoreInput is everything the opportunity scorer needs for one product.
type ScoreInput struct {
	ProductID string

	BuyPrice  float64 // instant buy
	SellPrice float64 // instant sell

	Demand    float64 // insta-buys per hour
	Supply    float64 // insta-sells per hour
	BuyChurn  float64 // new buy orders per hour
	SellChurn float64 // new sell orders per hour

	Risk RiskInput

	Budget  float64 // currency; <= 0 means unconstrained
	Horizon float64 // hours; defaults to 1
}

// Opportunity is a transient, per-request flip evaluation. It is never persisted.
type Opportunity struct {
	ProductID string  `json:"product_id"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`

	Spread    float64 `json:"spread"`
	SpreadPct float64 `json:"spread_pct"`

	Demand     float64 `json:"demand"`
	Supply     float64 `json:"supply"`
	Throughput float64 `json:"throughput"`
	Churn      float64 `json:"churn"`

	RiskScore         float64 `json:"risk_score"`
	ManipulatedLikely bool    `json:"manipulated_likely"`
	BuyDeviation      float64 `json:"buy_deviation"`
	SellDeviation     float64 `json:"sell_deviation"`

	Quantity                int64   `json:"quantity"`
	PlannedUnitsPerHour     float64 `json:"planned_units_per_hour"`
	SuggestedUnitsPerHour   float64 `json:"suggested_units_per_hour"`
	ProfitPerItem           float64 `json:"profit_per_item"`
	ProfitPerHour           float64 `json:"profit_per_hour"`
	ReasonableProfitPerHour float64 `json:"reasonable_profit_per_hour"`

	BuyFillHours   *float64 `json:"buy_fill_hours"`
	SellFillHours  *float64 `json:"sell_fill_hours"`
	TotalFillHours *float64 `json:"total_fill_hours"`

	Score float64 `json:"score"`
}

// Opportunity sort keys accepted by the serving layer.
const (
	SortScore                   = "score"
	SortSpread                  = "spread"
	SortSpreadPct               = "spread_pct"
	SortProfitPerHour           = "profit_per_hour"
	SortReasonableProfitPerHour = "reasonable_profit_per_hour"
	SortThroughput              = "throughput"
)

// SortValue returns the field named by key, falling back to Score.
func (o *Opportunity) SortValue(key string) float64 {
	switch key {
	case SortSpread:
		return o.Spread
	case SortSpreadPct:
		return o.SpreadPct
	case SortProfitPerHour:
		return o.ProfitPerHour
	case SortReasonableProfitPerHour:
		return o.ReasonableProfitPerHour
	case SortThroughput:
		return o.Throughput
	default:
		return o.Score
	}
}
