package constraint

import (
	"testing"
	"time"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/costmodel"
	"github.com/quantakt/backtest/internal/portfolio"
	"github.com/quantakt/backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type ConstraintTestSuite struct {
	suite.Suite
	now time.Time
}

func TestConstraintSuite(t *testing.T) {
	suite.Run(t, new(ConstraintTestSuite))
}

func (suite *ConstraintTestSuite) SetupTest() {
	suite.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *ConstraintTestSuite) positionParams() config.PositionConstraintParams {
	return config.PositionConstraintParams{
		MaxPositionSizePct:             1,
		MinTradeSizePct:                0.01,
		MinHoldingCandle:               5,
		TrailingStopLossPct:            0.05,
		TrailingStopUpdateThresholdPct: 0.02,
		TakeProfitPct:                  0.2,
		RiskPerTradePct:                0.05,
		SellFraction:                   0.5,
		CoolDownPeriod:                 3,
	}
}

func (suite *ConstraintTestSuite) portfolioParams() config.PortfolioConstraintParams {
	return config.PortfolioConstraintParams{
		RebalanceThresholdPct:  0,
		MinCashPct:             0,
		MaxDrawdownPct:         0.2,
		LiquidateOnMaxDrawdown: true,
		LongOnly:               true,
		InsufficientCashPolicy: config.CashPolicyShrink,
	}
}

// setup returns a one-asset engine and portfolio with 10k cash.
func (suite *ConstraintTestSuite) setup() (*Engine, *portfolio.Portfolio) {
	position := []config.PositionConstraintParams{suite.positionParams()}
	pf := portfolio.New(
		[]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		suite.portfolioParams(),
		position,
		costmodel.Zero{},
	)

	return NewEngine([]string{"BTC"}, position, suite.portfolioParams()), pf
}

func (suite *ConstraintTestSuite) buyAt(pf *portfolio.Portfolio, qty, price float64, step int) {
	trade := pf.ApplyTrade(types.OrderRequest{
		Asset: "BTC", AssetIdx: 0, Side: types.SideBuy, Kind: types.KindSignal,
		Quantity: qty, Price: price,
	}, 1_000_000, suite.now.Add(time.Duration(step)*time.Hour), step)
	suite.Require().Equal(types.OutcomeExecuted, trade.Outcome)
	pf.MarkToMarket(suite.now.Add(time.Duration(step)*time.Hour), []float64{price})
}

func buyVote() []types.Vote {
	return []types.Vote{{Direction: types.DirectionBuy, Strength: 1}}
}

func sellVote() []types.Vote {
	return []types.Vote{{Direction: types.DirectionSell, Strength: 1}}
}

func holdVote() []types.Vote {
	return []types.Vote{{Direction: types.DirectionHold}}
}

func (suite *ConstraintTestSuite) TestBuySizingFormula() {
	ce, pf := suite.setup()
	pf.MarkToMarket(suite.now, []float64{100})

	plan := ce.Evaluate(pf, buyVote(), []float64{100}, 0)

	suite.Require().Len(plan.Buys, 1)
	// risk-based: 0.05 * min(10000, 10000) / (0.05 * 100) = 100
	// cap: 1.0 * 10000 / 100 = 100
	suite.InDelta(100, plan.Buys[0].Quantity, 1e-6)
	suite.Empty(plan.Rejections)
}

func (suite *ConstraintTestSuite) TestBuyCappedByMaxPositionSize() {
	position := []config.PositionConstraintParams{suite.positionParams()}
	position[0].MaxPositionSizePct = 0.1
	ce := NewEngine([]string{"BTC"}, position, suite.portfolioParams())

	pf := portfolio.New([]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		suite.portfolioParams(), position, costmodel.Zero{})
	pf.MarkToMarket(suite.now, []float64{100})

	plan := ce.Evaluate(pf, buyVote(), []float64{100}, 0)

	suite.Require().Len(plan.Buys, 1)
	// cap binds: 0.1 * 10000 / 100 = 10 < risk-based 100
	suite.InDelta(10, plan.Buys[0].Quantity, 1e-6)
}

func (suite *ConstraintTestSuite) TestTinyBuyRejectedAsTooSmall() {
	position := []config.PositionConstraintParams{suite.positionParams()}
	position[0].MaxPositionSizePct = 0.001
	position[0].MinTradeSizePct = 0.05
	ce := NewEngine([]string{"BTC"}, position, suite.portfolioParams())

	pf := portfolio.New([]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		suite.portfolioParams(), position, costmodel.Zero{})
	pf.MarkToMarket(suite.now, []float64{100})

	plan := ce.Evaluate(pf, buyVote(), []float64{100}, 0)

	suite.Empty(plan.Buys)
	suite.Require().Len(plan.Rejections, 1)
	suite.Equal(types.OutcomeRejectedTradeSizeTooSmall, plan.Rejections[0].Outcome)
}

func (suite *ConstraintTestSuite) TestSellBeforeMinHoldingRejected() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 10, 100, 0)

	// min_holding_candle is 5: a sell vote at step 4 is too early.
	plan := ce.Evaluate(pf, sellVote(), []float64{100}, 4)

	suite.Empty(plan.Sells)
	suite.Require().Len(plan.Rejections, 1)
	suite.Equal(types.OutcomeRejectedHoldingPeriod, plan.Rejections[0].Outcome)

	// At step 5 the holding period is satisfied.
	plan = ce.Evaluate(pf, sellVote(), []float64{100}, 5)
	suite.Require().Len(plan.Sells, 1)
	suite.InDelta(5, plan.Sells[0].Quantity, 1e-6, "sell_fraction of the held quantity")
}

func (suite *ConstraintTestSuite) TestSellWithoutPositionRejectedAsShortSell() {
	ce, pf := suite.setup()
	pf.MarkToMarket(suite.now, []float64{100})

	plan := ce.Evaluate(pf, sellVote(), []float64{100}, 0)

	suite.Empty(plan.Sells)
	suite.Require().Len(plan.Rejections, 1)
	suite.Equal(types.OutcomeRejectedShortSell, plan.Rejections[0].Outcome)
}

// shortSetup mirrors setup with short selling enabled.
func (suite *ConstraintTestSuite) shortSetup() (*Engine, *portfolio.Portfolio) {
	position := []config.PositionConstraintParams{suite.positionParams()}
	params := suite.portfolioParams()
	params.LongOnly = false

	pf := portfolio.New(
		[]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		params,
		position,
		costmodel.Zero{},
	)

	return NewEngine([]string{"BTC"}, position, params), pf
}

func (suite *ConstraintTestSuite) TestSellVoteOpensShortWhenEnabled() {
	ce, pf := suite.shortSetup()
	pf.MarkToMarket(suite.now, []float64{100})

	plan := ce.Evaluate(pf, sellVote(), []float64{100}, 0)

	suite.Empty(plan.Rejections)
	suite.Require().Len(plan.Sells, 1)

	// Short entries size exactly like long entries: 0.05*10000/(0.05*100).
	suite.InDelta(100, plan.Sells[0].Quantity, 1e-9)
	suite.Equal(types.SideSell, plan.Sells[0].Side)
}

func (suite *ConstraintTestSuite) TestStopLossOnShortForcesBuyCover() {
	ce, pf := suite.shortSetup()

	trade := pf.ApplyTrade(types.OrderRequest{
		Asset: "BTC", AssetIdx: 0, Side: types.SideSell, Kind: types.KindSignal,
		Quantity: 10, Price: 100,
	}, 1_000_000, suite.now, 0)
	suite.Require().Equal(types.OutcomeExecuted, trade.Outcome)
	pf.MarkToMarket(suite.now, []float64{100})

	// A short entered at 100 stops out above 105.
	plan := ce.Evaluate(pf, holdVote(), []float64{106}, 1)

	suite.Require().Len(plan.Forced, 1)
	suite.Equal(types.SideBuy, plan.Forced[0].Side)
	suite.Equal(types.KindStopLoss, plan.Forced[0].Kind)
	suite.InDelta(10, plan.Forced[0].Quantity, 1e-9)
	suite.True(plan.Forced[0].Forced)
}

func (suite *ConstraintTestSuite) TestBuyDuringCoolDownRejected() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 10, 100, 0)

	// Losing stop-loss exit at step 6 starts the 3-candle cool-down.
	pf.ApplyTrade(types.OrderRequest{
		Asset: "BTC", AssetIdx: 0, Side: types.SideSell, Kind: types.KindStopLoss,
		Quantity: 10, Price: 90,
	}, 1_000_000, suite.now.Add(6*time.Hour), 6)
	pf.MarkToMarket(suite.now.Add(6*time.Hour), []float64{90})

	plan := ce.Evaluate(pf, buyVote(), []float64{90}, 7)

	suite.Empty(plan.Buys)
	suite.Require().Len(plan.Rejections, 1)
	suite.Equal(types.OutcomeRejectedCoolDownAfterLoss, plan.Rejections[0].Outcome)

	plan = ce.Evaluate(pf, buyVote(), []float64{90}, 10)
	suite.Len(plan.Buys, 1, "cool-down expired")
}

func (suite *ConstraintTestSuite) TestStopLossForcesFullExit() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 10, 100, 0)

	// Entry at 100 puts the stop at 95.
	plan := ce.Evaluate(pf, holdVote(), []float64{94}, 1)

	suite.Require().Len(plan.Forced, 1)
	suite.Equal(types.KindStopLoss, plan.Forced[0].Kind)
	suite.InDelta(10, plan.Forced[0].Quantity, 1e-9)
	suite.True(plan.Forced[0].Forced)
}

func (suite *ConstraintTestSuite) TestTakeProfitForcesFullExit() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 10, 100, 0)

	// take_profit_pct 0.2 puts the target at 120.
	plan := ce.Evaluate(pf, holdVote(), []float64{121}, 1)

	suite.Require().Len(plan.Forced, 1)
	suite.Equal(types.KindTakeProfit, plan.Forced[0].Kind)
	suite.InDelta(10, plan.Forced[0].Quantity, 1e-9)
}

func (suite *ConstraintTestSuite) TestForcedExitBypassesHoldingPeriod() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 10, 100, 0)

	// Step 1 is far inside min_holding_candle, but the stop fires anyway.
	plan := ce.Evaluate(pf, holdVote(), []float64{90}, 1)
	suite.Len(plan.Forced, 1)
	suite.Empty(plan.Rejections)
}

func (suite *ConstraintTestSuite) TestDrawdownBreakerSuppressesBuysAndLiquidates() {
	ce, pf := suite.setup()
	suite.buyAt(pf, 100, 100, 0)

	// Equity 10k at peak; price collapse to 70 marks equity at 7k: 30% drawdown.
	pf.MarkToMarket(suite.now.Add(time.Hour), []float64{70})

	plan := ce.Evaluate(pf, buyVote(), []float64{70}, 1)

	suite.True(plan.DrawdownTripped)
	suite.Empty(plan.Buys, "buys suppressed in liquidation-only mode")
	suite.Require().Len(plan.Forced, 1)
	suite.Equal(types.KindLiquidation, plan.Forced[0].Kind)
	suite.InDelta(100, plan.Forced[0].Quantity, 1e-9)

	// The breaker liquidates once; later steps only suppress.
	plan = ce.Evaluate(pf, buyVote(), []float64{70}, 2)
	suite.True(plan.DrawdownTripped)
	suite.Empty(plan.Buys)
}

func (suite *ConstraintTestSuite) TestZeroMaxDrawdownTripsImmediately() {
	position := []config.PositionConstraintParams{suite.positionParams()}
	pfc := suite.portfolioParams()
	pfc.MaxDrawdownPct = 0
	ce := NewEngine([]string{"BTC"}, position, pfc)

	pf := portfolio.New([]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		pfc, position, costmodel.Zero{})
	pf.MarkToMarket(suite.now, []float64{100})

	// Drawdown of exactly zero still satisfies >= 0: liquidation-only from
	// the first candle.
	plan := ce.Evaluate(pf, buyVote(), []float64{100}, 0)

	suite.True(plan.DrawdownTripped)
	suite.Empty(plan.Buys)
}

func (suite *ConstraintTestSuite) TestRebalanceGateDropsSmallBuyBatch() {
	position := []config.PositionConstraintParams{suite.positionParams()}
	position[0].MaxPositionSizePct = 0.03
	position[0].MinTradeSizePct = 0.01
	pfc := suite.portfolioParams()
	pfc.RebalanceThresholdPct = 0.05
	ce := NewEngine([]string{"BTC"}, position, pfc)

	pf := portfolio.New([]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		pfc, position, costmodel.Zero{})
	pf.MarkToMarket(suite.now, []float64{100})

	// The sized buy is 3% of equity, under the 5% gate.
	plan := ce.Evaluate(pf, buyVote(), []float64{100}, 0)
	suite.Empty(plan.Buys)
}

func (suite *ConstraintTestSuite) TestRebalanceGateNeverBlocksSells() {
	pfc := suite.portfolioParams()
	pfc.RebalanceThresholdPct = 0.99
	position := []config.PositionConstraintParams{suite.positionParams()}
	ce := NewEngine([]string{"BTC"}, position, pfc)

	pf := portfolio.New([]string{"BTC"},
		config.PortfolioParams{InitialCash: 10_000, CapitalGrowthFreq: config.FrequencyNever},
		pfc, position, costmodel.Zero{})
	suite.buyAt(pf, 10, 100, 0)

	plan := ce.Evaluate(pf, sellVote(), []float64{100}, 6)
	suite.Len(plan.Sells, 1)
}
