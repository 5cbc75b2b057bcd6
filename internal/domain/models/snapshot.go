package models

import (
	"errors"
	"fmt"
	"time"
)

// Side tags an order-book level.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderLevel is one aggregated price level of an order-book ladder.
type OrderLevel struct {
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int64   `json:"orders"`
}

// RawSnapshot is one reading of a product's market state at a fetch time.
//
// InstantBuyPrice is what a buyer pays right now (best ask), InstantSellPrice is what a
// seller receives right now (best bid). A positive spread is Buy - Sell.
type RawSnapshot struct {
	ProductID    string    `json:"product_id"`
	FetchedAt    time.Time `json:"fetched_at"`
	APITimestamp time.Time `json:"api_timestamp"`

	InstantBuyPrice   float64 `json:"instant_buy_price"`
	InstantSellPrice  float64 `json:"instant_sell_price"`
	WeightedBuyPrice  float64 `json:"weighted_buy_price"`
	WeightedSellPrice float64 `json:"weighted_sell_price"`

	BuyMovingWeek    int64 `json:"buy_moving_week"`
	SellMovingWeek   int64 `json:"sell_moving_week"`
	ActiveBuyOrders  int64 `json:"active_buy_orders"`
	ActiveSellOrders int64 `json:"active_sell_orders"`
	BuyVolume        int64 `json:"buy_volume"`
	SellVolume       int64 `json:"sell_volume"`

	BuyLadder  []OrderLevel `json:"buy_ladder,omitempty"`
	SellLadder []OrderLevel `json:"sell_ladder,omitempty"`
}

var errInvalidSnapshot = errors.New("invalid snapshot")

// Validate checks the fields every downstream stage relies on.
func (s *RawSnapshot) Validate() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil", errInvalidSnapshot)
	case s.ProductID == "":
		return fmt.Errorf("%w: empty product id", errInvalidSnapshot)
	case s.FetchedAt.IsZero():
		return fmt.Errorf("%w: %s: fetched_at not set", errInvalidSnapshot, s.ProductID)
	case s.InstantBuyPrice < 0, s.InstantSellPrice < 0, s.WeightedBuyPrice < 0, s.WeightedSellPrice < 0:
		return fmt.Errorf("%w: %s: negative price", errInvalidSnapshot, s.ProductID)
	}
	return nil
}

// IsInvalidSnapshot reports whether err came from Validate.
func IsInvalidSnapshot(err error) bool { return errors.Is(err, errInvalidSnapshot) }

// Spread is the instant buy/sell gap, clamped at zero.
func (s *RawSnapshot) Spread() float64 {
	if d := s.InstantBuyPrice - s.InstantSellPrice; d > 0 {
		return d
	}
	return 0
}

// Clone returns a deep copy.
func (s *RawSnapshot) Clone() RawSnapshot {
	out := *s
	out.BuyLadder = append([]OrderLevel(nil), s.BuyLadder...)
	out.SellLadder = append([]OrderLevel(nil), s.SellLadder...)
	return out
}

// Truncated returns a copy whose ladders hold at most depth levels per side.
// A depth of 0 drops the ladders.
func (s *RawSnapshot) Truncated(depth int) RawSnapshot {
	out := *s
	out.BuyLadder = truncateLadder(s.BuyLadder, depth)
	out.SellLadder = truncateLadder(s.SellLadder, depth)
	return out
}

func truncateLadder(l []OrderLevel, depth int) []OrderLevel {
	if depth <= 0 || len(l) == 0 {
		return nil
	}
	if len(l) > depth {
		l = l[:depth]
	}
	out := make([]OrderLevel, len(l))
	copy(out, l)
	return out
}
