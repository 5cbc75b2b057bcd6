package analytics

import (
	"math"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/domain/service"
	"BazaarPull/pkg/util"
)

// RiskAssessor scores how far instant prices sit from blended reference prices.
type RiskAssessor struct {
	liveWeight float64
	saturation float64
	threshold  float64
}

var _ service.RiskAssessor = (*RiskAssessor)(nil)

func NewRiskAssessor(cfg ScorerConfig) *RiskAssessor {
	cfg = cfg.sanitized()
	return &RiskAssessor{
		liveWeight: cfg.LiveWeight,
		saturation: cfg.RiskSaturation,
		threshold:  cfg.ManipulationThreshold,
	}
}

func (r *RiskAssessor) Assess(in models.RiskInput) models.RiskAssessment {
	bb := r.blend(in.LiveBuy, in.HistBuy)
	bs := r.blend(in.LiveSell, in.HistSell)
	db := deviation(in.InstantBuyPrice, bb)
	ds := deviation(in.InstantSellPrice, bs)
	worst := math.Max(db, ds)

	return models.RiskAssessment{
		RiskScore:         util.Clamp01(worst / r.saturation),
		ManipulatedLikely: worst >= r.threshold,
		BuyDeviation:      db,
		SellDeviation:     ds,
		BlendedBuy:        bb,
		BlendedSell:       bs,
	}
}

// blend returns 0 when neither reference is usable.
func (r *RiskAssessor) blend(live, hist *float64) float64 {
	l, lok := usable(live)
	h, hok := usable(hist)
	switch {
	case lok && hok:
		return r.liveWeight*l + (1-r.liveWeight)*h
	case lok:
		return l
	case hok:
		return h
	}
	return 0
}

func usable(p *float64) (float64, bool) {
	if p == nil || !util.Finite(*p) || *p <= 0 {
		return 0, false
	}
	return *p, true
}

func deviation(instant, ref float64) float64 {
	if ref <= 0 || !util.Finite(ref) || !util.Finite(instant) {
		return 0
	}
	return math.Abs(instant-ref) / ref
}
