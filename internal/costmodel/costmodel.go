// Package costmodel prices the friction of a fill. Every model is
// deterministic and returns a non-negative cost that is non-decreasing in
// notional and non-increasing in recent volume, which keeps backtests
// reproducible and keeps larger trades in thinner markets more expensive.
package costmodel

import (
	"math"

	"github.com/quantakt/backtest/internal/types"
	"github.com/shopspring/decimal"
)

// CostModel computes the transaction cost of one fill from its notional and
// the traded asset's recent volume, expressed in the same currency unit.
type CostModel interface {
	Cost(notional, recentVolume decimal.Decimal, side types.Side) decimal.Decimal
}

// Zero is the frictionless model, used in tests and sizing what-ifs.
type Zero struct{}

func (Zero) Cost(_, _ decimal.Decimal, _ types.Side) decimal.Decimal {
	return decimal.Zero
}

// Commission charges a flat fraction of notional on both sides.
type Commission struct {
	Rate decimal.Decimal
}

// NewCommission builds a flat-rate model, e.g. 0.001 for 10 bps per fill.
func NewCommission(rate float64) Commission {
	return Commission{Rate: decimal.NewFromFloat(rate)}
}

func (c Commission) Cost(notional, _ decimal.Decimal, _ types.Side) decimal.Decimal {
	if notional.IsNegative() {
		notional = notional.Neg()
	}

	return notional.Mul(c.Rate)
}

// VolumeImpact models market impact as a cost multiple on notional:
//
//	multiple = (liquidity + eta*participation^beta + timing) * baseVolatility
//
// where participation is the trade's notional over recent volume, liquidity
// is a static factor stepped by volume bucket, and timing is a fixed drag for
// a one-period execution horizon.
type VolumeImpact struct {
	BaseVolatility float64
	Eta            float64
	Beta           float64
	TimingFactor   float64
}

// NewVolumeImpact returns the model with its standard calibration.
func NewVolumeImpact() VolumeImpact {
	return VolumeImpact{
		BaseVolatility: 0.02,
		Eta:            0.142,
		Beta:           0.6,
		TimingFactor:   0.5,
	}
}

// Volume buckets and their liquidity factors. Thin books trade at a premium,
// deep books at a discount.
var liquidityBuckets = []struct {
	below  float64
	factor float64
}{
	{100_000, 2.0},
	{500_000, 1.5},
	{1_000_000, 1.2},
	{5_000_000, 1.0},
	{math.Inf(1), 0.8},
}

func liquidityFactor(volume float64) float64 {
	for _, b := range liquidityBuckets {
		if volume < b.below {
			return b.factor
		}
	}

	return 1.0
}

func (v VolumeImpact) Cost(notional, recentVolume decimal.Decimal, _ types.Side) decimal.Decimal {
	n := math.Abs(notional.InexactFloat64())
	if n == 0 {
		return decimal.Zero
	}

	vol := recentVolume.InexactFloat64()

	// A dead tape means any fill is the whole market.
	participation := 1.0
	if vol > 0 {
		participation = math.Min(n/vol, 1.0)
	}

	impact := v.Eta * math.Pow(participation, v.Beta)
	multiple := (liquidityFactor(vol) + impact + v.TimingFactor) * v.BaseVolatility

	cost := decimal.NewFromFloat(n * multiple)
	if cost.IsNegative() {
		return decimal.Zero
	}

	return cost
}
