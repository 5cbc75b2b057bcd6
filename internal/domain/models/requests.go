package models

// Requests for the serving endpoints. Bound by pkg/http.ReadAndValidateRequest.

type ProductListRequest struct {
	Q     string `query:"q" json:"q" validate:"max=64"`
	Sort  string `query:"sort" json:"sort" default:"product_id" validate:"oneof=product_id buy_price sell_price spread buy_volume sell_volume"`
	Order string `query:"order" json:"order" default:"asc" validate:"oneof=asc desc"`
	Page  int    `query:"page" json:"page" default:"1" validate:"gte=1"`
	Limit int    `query:"limit" json:"limit" validate:"gte=0"`
}

type ProductRequest struct {
	ID string `param:"id" validate:"required"`
}

type HistoryRequest struct {
	ID     string `param:"id" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Detail bool   `query:"detail" json:"detail"`
}

type WindowsRequest struct {
	Products string `query:"products" json:"products" validate:"required"`
	Windows  string `query:"windows" json:"windows"`
}

type OpportunityListRequest struct {
	Q        string  `query:"q" json:"q" validate:"max=64"`
	Sort     string  `query:"sort" json:"sort" default:"score" validate:"oneof=score spread spread_pct profit_per_hour reasonable_profit_per_hour throughput"`
	Budget   float64 `query:"budget" json:"budget" validate:"gte=0"`
	Horizon  float64 `query:"horizon" json:"horizon" default:"1" validate:"gt=0,lte=168"`
	MinScore float64 `query:"min_score" json:"min_score" validate:"gte=0"`
	Page     int     `query:"page" json:"page" default:"1" validate:"gte=1"`
	Limit    int     `query:"limit" json:"limit" validate:"gte=0"`
}

type OpportunityRequest struct {
	ID      string  `param:"id" validate:"required"`
	Budget  float64 `query:"budget" json:"budget" validate:"gte=0"`
	Horizon float64 `query:"horizon" json:"horizon" default:"1" validate:"gt=0,lte=168"`
}

type RecomputeRequest struct {
	Task string `json:"task" default:"all" validate:"oneof=all compaction aggregation"`
}
