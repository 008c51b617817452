// Package metrics turns a completed run's snapshot and trade history into the
// reported statistics. Everything here is a pure function of its inputs; no
// metric is ever accumulated incrementally during the run.
package metrics

import (
	"math"
	"time"

	"github.com/quantakt/backtest/internal/types"
)

const (
	hoursPerYear   = 365.25 * 24
	minutesPerYear = 365.25 * 24 * 60
)

// Params carries the run-level constants the formulas need.
type Params struct {
	// RiskFreeRate is the annual risk-free rate used for excess returns.
	RiskFreeRate float64
	// Cadence is the candle interval, used to annualize per-period figures.
	Cadence time.Duration
	// InitialCash and InjectedCapital anchor the return denominators. Injected
	// capital is backed out of the numerator so scheduled contributions do not
	// masquerade as performance.
	InitialCash     float64
	InjectedCapital float64
}

// PeriodsPerYear returns how many candle intervals fit in a year.
func (p Params) PeriodsPerYear() float64 {
	return minutesPerYear / p.Cadence.Minutes()
}

// Compute derives the run's KeyMetrics and per-asset PositionMetrics.
// unrealized holds each asset's final unrealized P&L, indexed like assets.
func Compute(snapshots []types.Snapshot, trades []types.Trade, assets []string, unrealized []float64, p Params) (types.KeyMetrics, []types.PositionMetrics) {
	km := keyMetrics(snapshots, trades, p)
	pm := positionMetrics(trades, assets, unrealized)

	return km, pm
}

func keyMetrics(snapshots []types.Snapshot, trades []types.Trade, p Params) types.KeyMetrics {
	km := types.KeyMetrics{
		AnnualizedReturn:     types.UndefinedRatio(),
		AnnualizedVolatility: types.UndefinedRatio(),
		Sharpe:               types.UndefinedRatio(),
		Sortino:              types.UndefinedRatio(),
		Calmar:               types.UndefinedRatio(),
		WinRate:              types.UndefinedRatio(),
		ProfitFactor:         types.UndefinedRatio(),
		InjectedCapital:      p.InjectedCapital,
	}

	if len(snapshots) == 0 || p.InitialCash <= 0 {
		return km
	}

	final := snapshots[len(snapshots)-1]
	km.TotalFees = final.CumulativeCost

	// Contributions are backed out so a run that only collected scheduled
	// cash does not report it as profit.
	netFinal := final.Equity - p.InjectedCapital
	km.NetReturn = (netFinal - p.InitialCash) / p.InitialCash
	km.GrossReturn = (netFinal + final.CumulativeCost - p.InitialCash) / p.InitialCash

	years := snapshots[len(snapshots)-1].Time.Sub(snapshots[0].Time).Hours() / hoursPerYear
	if years > 0 && netFinal > 0 {
		km.AnnualizedReturn = types.DefinedRatio(math.Pow(netFinal/p.InitialCash, 1/years) - 1)
	}

	returns := periodicReturns(snapshots)
	periodsPerYear := p.PeriodsPerYear()
	rfPerPeriod := p.RiskFreeRate / periodsPerYear

	if len(returns) >= 2 {
		mean, std := meanStd(returns)

		if std > 0 {
			km.AnnualizedVolatility = types.DefinedRatio(std * math.Sqrt(periodsPerYear))
			km.Sharpe = types.DefinedRatio((mean - rfPerPeriod) / std * math.Sqrt(periodsPerYear))
		}

		if dd := downsideDeviation(returns, rfPerPeriod); dd > 0 {
			km.Sortino = types.DefinedRatio((mean - rfPerPeriod) / dd * math.Sqrt(periodsPerYear))
		}
	}

	km.MaxDrawdown, km.MaxDrawdownDuration = maxDrawdown(snapshots)

	if km.MaxDrawdown > 0 && km.AnnualizedReturn.Valid {
		km.Calmar = types.DefinedRatio(km.AnnualizedReturn.Value / km.MaxDrawdown)
	}

	km.WinRate, km.ProfitFactor = tradeStats(trades)

	return km
}

// periodicReturns converts the equity curve to simple per-period returns.
func periodicReturns(snapshots []types.Snapshot) []float64 {
	returns := make([]float64, 0, len(snapshots)-1)

	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].Equity
		if prev == 0 {
			continue
		}

		returns = append(returns, snapshots[i].Equity/prev-1)
	}

	return returns
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}

	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}

	variance /= float64(len(xs) - 1)

	return mean, math.Sqrt(variance)
}

// downsideDeviation is the root mean square of returns below the target.
func downsideDeviation(xs []float64, target float64) float64 {
	var sum float64

	for _, x := range xs {
		if d := x - target; d < 0 {
			sum += d * d
		}
	}

	return math.Sqrt(sum / float64(len(xs)))
}

// maxDrawdown returns the deepest peak-to-trough decline and the longest
// peak-to-trough interval in the equity curve.
func maxDrawdown(snapshots []types.Snapshot) (float64, time.Duration) {
	var (
		maxDD       float64
		maxDuration time.Duration
	)

	peak := snapshots[0].Equity
	peakTime := snapshots[0].Time

	for _, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
			peakTime = s.Time

			continue
		}

		if peak <= 0 {
			continue
		}

		dd := (peak - s.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}

		if dd > 0 {
			if d := s.Time.Sub(peakTime); d > maxDuration {
				maxDuration = d
			}
		}
	}

	return maxDD, maxDuration
}

// tradeStats computes win rate and profit factor over the closed legs of
// every round trip: executed sells, plus executed buys that covered a short.
func tradeStats(trades []types.Trade) (winRate, profitFactor types.Ratio) {
	winRate = types.UndefinedRatio()
	profitFactor = types.UndefinedRatio()

	var (
		exits, wins         int
		grossWin, grossLoss float64
	)

	for _, t := range trades {
		if !t.Outcome.Executed() {
			continue
		}

		if t.Side != types.SideSell && t.RealizedPnL == 0 {
			continue
		}

		exits++

		if t.RealizedPnL > 0 {
			wins++
			grossWin += t.RealizedPnL
		} else {
			grossLoss += -t.RealizedPnL
		}
	}

	if exits > 0 {
		winRate = types.DefinedRatio(float64(wins) / float64(exits))
	}

	if grossLoss > 0 {
		profitFactor = types.DefinedRatio(grossWin / grossLoss)
	}

	return winRate, profitFactor
}

func positionMetrics(trades []types.Trade, assets []string, unrealized []float64) []types.PositionMetrics {
	result := make([]types.PositionMetrics, len(assets))

	for idx, asset := range assets {
		pm := types.PositionMetrics{
			Asset:   asset,
			Return:  types.UndefinedRatio(),
			WinRate: types.UndefinedRatio(),
			Exits:   make(map[types.ExitKind]types.ExitBreakdown),
		}

		if idx < len(unrealized) {
			pm.UnrealizedPnL = unrealized[idx]
		}

		var deployed float64

		var wins int

		for _, t := range trades {
			if t.AssetIdx != idx || !t.Outcome.Executed() {
				continue
			}

			pm.TotalCost += t.Cost

			if t.Side == types.SideBuy {
				pm.ExecutedBuys++
				deployed += t.Quantity * t.Price
				pm.RealizedPnL += t.RealizedPnL

				continue
			}

			pm.ExecutedSells++
			pm.RealizedPnL += t.RealizedPnL

			if t.RealizedPnL > 0 {
				wins++
			}

			b := pm.Exits[t.Kind]
			b.Count++

			if t.RealizedPnL > 0 {
				b.Gain += t.RealizedPnL
			} else {
				b.Loss += t.RealizedPnL
			}

			pm.Exits[t.Kind] = b
		}

		for kind, b := range pm.Exits {
			b.CountPct = 100 * float64(b.Count) / float64(pm.ExecutedSells)
			pm.Exits[kind] = b
		}

		if deployed > 0 {
			pm.Return = types.DefinedRatio((pm.RealizedPnL + pm.UnrealizedPnL) / deployed)
		}

		if pm.ExecutedSells > 0 {
			pm.WinRate = types.DefinedRatio(float64(wins) / float64(pm.ExecutedSells))
		}

		result[idx] = pm
	}

	return result
}
