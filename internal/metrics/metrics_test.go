package metrics

import (
	"testing"
	"time"

	"github.com/quantakt/backtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailyParams(initialCash float64) Params {
	return Params{
		RiskFreeRate: 0,
		Cadence:      24 * time.Hour,
		InitialCash:  initialCash,
	}
}

func curve(start time.Time, equities ...float64) []types.Snapshot {
	snapshots := make([]types.Snapshot, len(equities))
	for i, eq := range equities {
		snapshots[i] = types.Snapshot{
			Time:   start.AddDate(0, 0, i),
			Equity: eq,
			Cash:   eq,
		}
	}

	return snapshots
}

func TestNetReturn(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := curve(start, 10_000, 10_500, 11_000)

	km, _ := Compute(snapshots, nil, nil, nil, dailyParams(10_000))

	assert.InDelta(t, 0.10, km.NetReturn, 1e-9)
}

func TestInjectedCapitalBackedOut(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := curve(start, 10_000, 11_000)

	p := dailyParams(10_000)
	p.InjectedCapital = 1_000

	km, _ := Compute(snapshots, nil, nil, nil, p)

	assert.InDelta(t, 0, km.NetReturn, 1e-9, "growth from contributions is not performance")
	assert.InDelta(t, 1_000, km.InjectedCapital, 1e-9)
}

func TestMaxDrawdownAndDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Peak 12k on day 2, trough 9k on day 4: 25% drawdown over 2 days.
	snapshots := curve(start, 10_000, 11_000, 12_000, 10_000, 9_000, 12_500)

	km, _ := Compute(snapshots, nil, nil, nil, dailyParams(10_000))

	assert.InDelta(t, 0.25, km.MaxDrawdown, 1e-9)
	assert.Equal(t, 48*time.Hour, km.MaxDrawdownDuration)
}

func TestFlatCurveRatiosUndefined(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := curve(start, 10_000, 10_000, 10_000)

	km, _ := Compute(snapshots, nil, nil, nil, dailyParams(10_000))

	assert.False(t, km.Sharpe.Valid, "zero volatility leaves Sharpe undefined")
	assert.False(t, km.Sortino.Valid)
	assert.False(t, km.Calmar.Valid, "zero max drawdown leaves Calmar undefined")
	assert.False(t, km.WinRate.Valid, "no closed trades")
	assert.False(t, km.ProfitFactor.Valid)
	assert.Zero(t, km.MaxDrawdown)
}

func TestUndefinedRatioRendersAsDash(t *testing.T) {
	assert.Equal(t, "-", types.UndefinedRatio().String())
	assert.Equal(t, "0.5000", types.DefinedRatio(0.5).String())
}

func TestWinRateAndProfitFactor(t *testing.T) {
	trades := []types.Trade{
		{Side: types.SideSell, Outcome: types.OutcomeExecuted, RealizedPnL: 200},
		{Side: types.SideSell, Outcome: types.OutcomeExecuted, RealizedPnL: -100},
		{Side: types.SideSell, Outcome: types.OutcomeExecuted, RealizedPnL: 300},
		{Side: types.SideSell, Outcome: types.OutcomeExecuted, RealizedPnL: -150},
		// Buys and rejected trades are ignored.
		{Side: types.SideBuy, Outcome: types.OutcomeExecuted},
		{Side: types.SideSell, Outcome: types.OutcomeRejectedHoldingPeriod, RealizedPnL: 999},
	}

	winRate, profitFactor := tradeStats(trades)

	require.True(t, winRate.Valid)
	assert.InDelta(t, 0.5, winRate.Value, 1e-9)
	require.True(t, profitFactor.Valid)
	assert.InDelta(t, 2.0, profitFactor.Value, 1e-9)
}

func TestProfitFactorUndefinedWithoutLosses(t *testing.T) {
	trades := []types.Trade{
		{Side: types.SideSell, Outcome: types.OutcomeExecuted, RealizedPnL: 200},
	}

	winRate, profitFactor := tradeStats(trades)

	assert.True(t, winRate.Valid)
	assert.False(t, profitFactor.Valid)
}

func TestAnnualizedReturnUsesElapsedYears(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Exactly half a year (per the 365.25-day year), 10% total return.
	snapshots := []types.Snapshot{
		{Time: start, Equity: 10_000},
		{Time: start.Add(time.Duration(0.5 * 365.25 * 24 * float64(time.Hour))), Equity: 11_000},
	}

	km, _ := Compute(snapshots, nil, nil, nil, dailyParams(10_000))

	require.True(t, km.AnnualizedReturn.Valid)
	assert.InDelta(t, 0.21, km.AnnualizedReturn.Value, 1e-2, "1.1 squared minus one")
}

func TestPositionMetricsExitComposition(t *testing.T) {
	trades := []types.Trade{
		{AssetIdx: 0, Asset: "BTC", Side: types.SideBuy, Outcome: types.OutcomeExecuted, Quantity: 30, Price: 100, Cost: 3},
		{AssetIdx: 0, Asset: "BTC", Side: types.SideSell, Kind: types.KindTakeProfit, Outcome: types.OutcomeExecuted, RealizedPnL: 100, Cost: 1},
		{AssetIdx: 0, Asset: "BTC", Side: types.SideSell, Kind: types.KindStopLoss, Outcome: types.OutcomeExecuted, RealizedPnL: -50, Cost: 1},
		{AssetIdx: 0, Asset: "BTC", Side: types.SideSell, Kind: types.KindSignal, Outcome: types.OutcomeExecuted, RealizedPnL: 25, Cost: 1},
		{AssetIdx: 0, Asset: "BTC", Side: types.SideSell, Kind: types.KindSignal, Outcome: types.OutcomeExecuted, RealizedPnL: -25, Cost: 1},
	}

	pms := positionMetrics(trades, []string{"BTC"}, []float64{10})
	require.Len(t, pms, 1)

	pm := pms[0]
	assert.Equal(t, 1, pm.ExecutedBuys)
	assert.Equal(t, 4, pm.ExecutedSells)
	assert.InDelta(t, 50, pm.RealizedPnL, 1e-9)
	assert.InDelta(t, 10, pm.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 7, pm.TotalCost, 1e-9)

	require.True(t, pm.WinRate.Valid)
	assert.InDelta(t, 0.5, pm.WinRate.Value, 1e-9)

	require.True(t, pm.Return.Valid)
	assert.InDelta(t, 60.0/3000.0, pm.Return.Value, 1e-9)

	signal := pm.Exits[types.KindSignal]
	assert.Equal(t, 2, signal.Count)
	assert.InDelta(t, 50, signal.CountPct, 1e-9)
	assert.InDelta(t, 25, signal.Gain, 1e-9)
	assert.InDelta(t, -25, signal.Loss, 1e-9)

	tp := pm.Exits[types.KindTakeProfit]
	assert.Equal(t, 1, tp.Count)
	assert.InDelta(t, 100, tp.Gain, 1e-9)
}

func TestEmptySnapshotsLeaveEverythingUndefined(t *testing.T) {
	km, _ := Compute(nil, nil, nil, nil, dailyParams(10_000))

	assert.False(t, km.Sharpe.Valid)
	assert.False(t, km.AnnualizedReturn.Valid)
	assert.Zero(t, km.NetReturn)
}
