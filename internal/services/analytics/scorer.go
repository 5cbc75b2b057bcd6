// Package analytics scores bazaar flips: deviation risk against reference
// prices, and a capacity-aware opportunity score for a budget and horizon.
package analytics

import (
	"math"
	"sort"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/service"
	"BazaarPull/pkg/util"
)

const eps = 1e-6

// Scorer evaluates one product at a time. It holds no mutable state.
type Scorer struct {
	cfg  ScorerConfig
	risk *RiskAssessor
	tau  float64 // ETA half-life in hours
}

var _ service.OpportunityScorer = (*Scorer)(nil)

func NewScorer(cfg ScorerConfig) *Scorer {
	cfg = cfg.sanitized()
	return &Scorer{
		cfg:  cfg,
		risk: NewRiskAssessor(cfg),
		tau:  cfg.ETAHalfLife.Hours(),
	}
}

func (s *Scorer) Config() ScorerConfig { return s.cfg }

// Score never fails: degenerate input yields a zero score with whatever
// explanatory fields could be derived.
func (s *Scorer) Score(in models.ScoreInput) models.Opportunity {
	o := models.Opportunity{
		ProductID: in.ProductID,
		BuyPrice:  in.BuyPrice,
		SellPrice: in.SellPrice,
	}
	if !validPrice(in.BuyPrice) || !validPrice(in.SellPrice) {
		return o
	}

	o.Spread = math.Max(0, in.BuyPrice-in.SellPrice)
	o.SpreadPct = o.Spread / in.SellPrice
	o.Demand = util.NonNegative(in.Demand)
	o.Supply = util.NonNegative(in.Supply)
	o.Throughput = math.Min(o.Demand, o.Supply)
	o.Churn = util.NonNegative(in.BuyChurn) + util.NonNegative(in.SellChurn)

	ra := s.risk.Assess(in.Risk)
	o.RiskScore = ra.RiskScore
	o.ManipulatedLikely = ra.ManipulatedLikely
	o.BuyDeviation = ra.BuyDeviation
	o.SellDeviation = ra.SellDeviation

	if o.Spread <= 0 || o.Throughput <= 0 {
		return o
	}

	compPenalty := 1 + s.cfg.CompetitionCoef*o.Churn
	riskPenalty := 1 + s.cfg.RiskPenaltyCoef*o.RiskScore

	horizon := in.Horizon
	if !util.Finite(horizon) || horizon <= 0 {
		horizon = 1
	}

	// qty is what can be bought within the horizon; depth is the diminishing-returns base
	var qty, depth float64
	if util.Finite(in.Budget) && in.Budget > 0 {
		affordable := math.Floor(in.Budget / in.SellPrice)
		qty = math.Max(0, math.Min(affordable, math.Floor(o.Throughput*horizon)))
		depth = math.Max(1, affordable)
	} else {
		qty = math.Floor(o.Throughput)
		depth = math.Max(1, qty)
	}
	o.Quantity = int64(qty)
	o.PlannedUnitsPerHour = qty / horizon

	o.ProfitPerItem = math.Max(0, o.Spread*(1-o.RiskScore))
	o.ProfitPerHour = math.Max(0, o.ProfitPerItem*o.PlannedUnitsPerHour)

	balance := balanceAdj(o.Demand, o.Supply)
	o.SuggestedUnitsPerHour = math.Max(0, math.Min(o.PlannedUnitsPerHour, o.Throughput*balance)/math.Max(eps, compPenalty))
	o.ReasonableProfitPerHour = math.Max(0, o.ProfitPerItem*o.SuggestedUnitsPerHour)

	eta := 0.0
	if o.SuggestedUnitsPerHour > 0 {
		buyH := o.SuggestedUnitsPerHour / o.Supply
		sellH := o.SuggestedUnitsPerHour / o.Demand
		eta = buyH + sellH
		o.BuyFillHours, o.SellFillHours, o.TotalFillHours = &buyH, &sellH, &eta
	}

	liq := util.Clamp01((o.Throughput - s.cfg.LiquidityFloor) / (s.cfg.LiquidityRef - s.cfg.LiquidityFloor))
	liquidity := liq * liq
	etaAdj := 1 / (1 + eta/s.tau)
	compSoft := math.Sqrt(1 / compPenalty)

	score := math.Log10(o.ReasonableProfitPerHour+1) *
		math.Log10(o.ProfitPerItem+1) *
		math.Log10(depth+1) *
		etaAdj * compSoft * liquidity /
		math.Max(eps, riskPenalty)
	o.Score = util.NonNegative(score)
	return o
}

// ScoreAll scores every input in order.
func (s *Scorer) ScoreAll(ins []models.ScoreInput) []models.Opportunity {
	out := make([]models.Opportunity, len(ins))
	for i := range ins {
		out[i] = s.Score(ins[i])
	}
	return out
}

// Rank sorts opportunities by key, highest first. Ties keep input order.
func Rank(opps []models.Opportunity, key string) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].SortValue(key) > opps[j].SortValue(key)
	})
}

// balanceAdj scales capacity down when insta-sells lag behind insta-buys.
func balanceAdj(demand, supply float64) float64 {
	switch {
	case supply <= 0:
		return 0
	case demand <= 0:
		return 0.5
	}
	return math.Min(1, supply/(demand+1))
}

func validPrice(p float64) bool {
	return util.Finite(p) && p > 0
}
