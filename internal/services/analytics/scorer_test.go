package analytics

import (
	"math"
	"testing"

	"BazaarPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() models.ScoreInput {
	return models.ScoreInput{
		ProductID: "ENCHANTED_GOLD",
		BuyPrice:  105,
		SellPrice: 100,
		Demand:    10,
		Supply:    10,
	}
}

func TestScoreBasicFlip(t *testing.T) {
	o := NewScorer(DefaultScorerConfig()).Score(baseInput())

	assert.Equal(t, 5.0, o.Spread)
	assert.InDelta(t, 0.05, o.SpreadPct, 1e-12)
	assert.Equal(t, 10.0, o.Throughput)
	assert.Equal(t, int64(10), o.Quantity)
	assert.Equal(t, 10.0, o.PlannedUnitsPerHour)
	assert.Equal(t, 5.0, o.ProfitPerItem)
	assert.Equal(t, 50.0, o.ProfitPerHour)
	assert.InDelta(t, 100.0/11, o.SuggestedUnitsPerHour, 1e-9)
	assert.InDelta(t, 500.0/11, o.ReasonableProfitPerHour, 1e-9)
	require.NotNil(t, o.TotalFillHours)
	assert.InDelta(t, 2*(10.0/11), *o.TotalFillHours, 1e-9)
	assert.Zero(t, o.RiskScore)
	assert.Greater(t, o.Score, 0.0)
}

func TestScoreGuards(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	cases := map[string]func(in *models.ScoreInput){
		"zero buy price":    func(in *models.ScoreInput) { in.BuyPrice = 0 },
		"nan sell price":    func(in *models.ScoreInput) { in.SellPrice = math.NaN() },
		"inverted spread":   func(in *models.ScoreInput) { in.BuyPrice = 90 },
		"flat spread":       func(in *models.ScoreInput) { in.BuyPrice = 100 },
		"no demand":         func(in *models.ScoreInput) { in.Demand = 0 },
		"negative supply":   func(in *models.ScoreInput) { in.Supply = -4 },
		"infinite demand":   func(in *models.ScoreInput) { in.Demand = math.Inf(1) },
		"budget below cost": func(in *models.ScoreInput) { in.Budget = 50 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			o := s.Score(in)
			assert.Zero(t, o.Score)
			assert.Equal(t, in.ProductID, o.ProductID)
			assert.False(t, math.IsNaN(o.SpreadPct))
		})
	}
}

func TestScoreInvalidPriceClearsDerivedFields(t *testing.T) {
	in := baseInput()
	in.SellPrice = -1
	in.Risk = models.RiskInput{InstantBuyPrice: 200, LiveBuy: ptr(100)}
	o := NewScorer(DefaultScorerConfig()).Score(in)

	assert.Zero(t, o.Spread)
	assert.Zero(t, o.Throughput)
	assert.Zero(t, o.RiskScore)
	assert.False(t, o.ManipulatedLikely)
	assert.Nil(t, o.TotalFillHours)
}

func TestScoreBudgetCapsQuantity(t *testing.T) {
	in := baseInput()
	in.Budget = 450
	in.Horizon = 2
	o := NewScorer(DefaultScorerConfig()).Score(in)

	// floor(450/100)=4 affordable, floor(10*2)=20 by throughput
	assert.Equal(t, int64(4), o.Quantity)
	assert.Equal(t, 2.0, o.PlannedUnitsPerHour)
	assert.Equal(t, 10.0, o.ProfitPerHour)
	assert.InDelta(t, 2.0, o.SuggestedUnitsPerHour, 1e-9)
	assert.Greater(t, o.Score, 0.0)
}

func TestScoreInvalidHorizonDefaultsToOneHour(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	in := baseInput()
	in.Budget = 10000
	want := s.Score(in)

	for _, h := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		in.Horizon = h
		assert.Equal(t, want, s.Score(in))
	}
}

func TestScoreMonotonicInSpread(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	prev := -1.0
	for buy := 101.0; buy <= 200; buy++ {
		in := baseInput()
		in.BuyPrice = buy
		in.Demand, in.Supply = 40, 40
		got := s.Score(in).Score
		assert.GreaterOrEqual(t, got, prev, "buy=%v", buy)
		prev = got
	}
}

// Holds only along demand == supply with a one-hour horizon and no budget. With
// supply below demand and a shorter horizon the fill-time adjustment shrinks as
// suggested/supply grows, so the score can dip once liquidity saturates.
func TestScoreMonotonicInThroughput(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	prev := -1.0
	for x := 1.0; x <= 200; x++ {
		in := baseInput()
		in.Demand, in.Supply = x, x
		got := s.Score(in).Score
		assert.GreaterOrEqual(t, got, prev, "throughput=%v", x)
		prev = got
	}
}

func TestScoreNonIncreasingInRisk(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	prev := math.Inf(1)
	for k := 0.0; k <= 0.4; k += 0.01 {
		in := baseInput()
		in.Demand, in.Supply = 40, 40
		in.Risk = models.RiskInput{InstantBuyPrice: in.BuyPrice, LiveBuy: ptr(in.BuyPrice / (1 + k))}
		got := s.Score(in).Score
		assert.LessOrEqual(t, got, prev, "deviation=%v", k)
		prev = got
	}
}

func TestScoreNonIncreasingInChurn(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	prev := math.Inf(1)
	for churn := 0.0; churn <= 1000; churn += 10 {
		in := baseInput()
		in.Demand, in.Supply = 40, 40
		in.BuyChurn = churn
		got := s.Score(in).Score
		assert.LessOrEqual(t, got, prev, "churn=%v", churn)
		prev = got
	}
}

func TestRankIsStableDescending(t *testing.T) {
	opps := []models.Opportunity{
		{ProductID: "A", Score: 1, Spread: 9},
		{ProductID: "B", Score: 3, Spread: 1},
		{ProductID: "C", Score: 1, Spread: 5},
		{ProductID: "D", Score: 2, Spread: 5},
	}

	Rank(opps, models.SortScore)
	assert.Equal(t, []string{"B", "D", "A", "C"}, ids(opps))

	Rank(opps, models.SortSpread)
	assert.Equal(t, []string{"A", "D", "C", "B"}, ids(opps))
}

func TestNewScorerSanitizesConfig(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.LiquidityRef = cfg.LiquidityFloor
	cfg.ETAHalfLife = 0
	s := NewScorer(cfg)
	assert.Equal(t, DefaultScorerConfig(), s.Config())
}

func ids(opps []models.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ProductID
	}
	return out
}
