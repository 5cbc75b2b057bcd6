package analytics

import "time"

// ScorerConfig holds the scoring coefficients. It is passed by value and never mutated.
type ScorerConfig struct {
	CompetitionCoef       float64       // penalty per new order per hour
	RiskPenaltyCoef       float64       // score divisor weight of riskScore
	LiquidityFloor        float64       // throughput (units/h) below which liquidity weight is 0
	LiquidityRef          float64       // throughput at which liquidity weight saturates
	ETAHalfLife           time.Duration // fill time that halves the score
	RiskSaturation        float64       // deviation mapped to riskScore 1
	ManipulationThreshold float64       // deviation flagged as likely manipulation
	LiveWeight            float64       // share of the live reference in the blend
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		CompetitionCoef:       0.005,
		RiskPenaltyCoef:       1.5,
		LiquidityFloor:        5,
		LiquidityRef:          80,
		ETAHalfLife:           2 * time.Hour,
		RiskSaturation:        0.20,
		ManipulationThreshold: 0.12,
		LiveWeight:            0.7,
	}
}

// sanitized replaces unusable values with defaults.
func (c ScorerConfig) sanitized() ScorerConfig {
	def := DefaultScorerConfig()
	if c.CompetitionCoef < 0 {
		c.CompetitionCoef = def.CompetitionCoef
	}
	if c.RiskPenaltyCoef < 0 {
		c.RiskPenaltyCoef = def.RiskPenaltyCoef
	}
	if c.LiquidityFloor < 0 || c.LiquidityRef <= c.LiquidityFloor {
		c.LiquidityFloor, c.LiquidityRef = def.LiquidityFloor, def.LiquidityRef
	}
	if c.ETAHalfLife <= 0 {
		c.ETAHalfLife = def.ETAHalfLife
	}
	if c.RiskSaturation <= 0 {
		c.RiskSaturation = def.RiskSaturation
	}
	if c.ManipulationThreshold <= 0 {
		c.ManipulationThreshold = def.ManipulationThreshold
	}
	if c.LiveWeight < 0 || c.LiveWeight > 1 {
		c.LiveWeight = def.LiveWeight
	}
	return c
}
