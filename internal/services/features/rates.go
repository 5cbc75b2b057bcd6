package features

import (
	"BazaarPull/internal/domain/models"
)

// WeekHours converts moving-week counters to hourly rates.
const WeekHours = 168

// Demand is insta-buys per hour.
func Demand(s *models.RawSnapshot) float64 {
	return float64(s.BuyMovingWeek) / WeekHours
}

// Supply is insta-sells per hour.
func Supply(s *models.RawSnapshot) float64 {
	return float64(s.SellMovingWeek) / WeekHours
}

// Churn is the mean number of new orders per hour on each side.
func Churn(w *models.FinanceMetricsWindow) (buy, sell float64) {
	if w == nil || w.Observations == 0 {
		return 0, 0
	}
	return w.CreatedBuyOrders, w.CreatedSellOrders
}

// References builds the risk input for a snapshot. The live reference is the
// snapshot's weighted price, the historical one the mean close of ref.
func References(s *models.RawSnapshot, ref *models.FinanceMetricsWindow) models.RiskInput {
	in := models.RiskInput{
		InstantBuyPrice:  s.InstantBuyPrice,
		InstantSellPrice: s.InstantSellPrice,
		LiveBuy:          positive(s.WeightedBuyPrice),
		LiveSell:         positive(s.WeightedSellPrice),
	}
	if ref != nil && ref.Observations > 0 {
		in.HistBuy = positive(ref.CloseInstantBuyPrice)
		in.HistSell = positive(ref.CloseInstantSellPrice)
	}
	return in
}

// ScoreInput assembles scorer input from a live snapshot, the churn window and
// the reference window. Either window may be nil.
func ScoreInput(s *models.RawSnapshot, churn, ref *models.FinanceMetricsWindow, budget, horizon float64) models.ScoreInput {
	buyChurn, sellChurn := Churn(churn)
	return models.ScoreInput{
		ProductID: s.ProductID,
		BuyPrice:  s.InstantBuyPrice,
		SellPrice: s.InstantSellPrice,
		Demand:    Demand(s),
		Supply:    Supply(s),
		BuyChurn:  buyChurn,
		SellChurn: sellChurn,
		Risk:      References(s, ref),
		Budget:    budget,
		Horizon:   horizon,
	}
}

func positive(v float64) *float64 {
	if v > 0 {
		return &v
	}
	return nil
}
