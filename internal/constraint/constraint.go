// Package constraint turns directional votes into concrete order requests.
// It is the only place a vote can die: every check that drops one records a
// Rejected* outcome, in a fixed short-circuit order, so the trade log explains
// every decision the run made.
package constraint

import (
	"math"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/portfolio"
	"github.com/quantakt/backtest/internal/types"
)

// quantities are kept on a fixed grain to stay reproducible across runs.
func roundQuantity(q float64) float64 {
	return math.Round(q*1e6) / 1e6
}

// forcedExitRequest flattens pos at price: a sell for longs, a buy-to-cover
// for shorts.
func forcedExitRequest(asset string, idx int, pos *portfolio.Position, kind types.ExitKind, price float64) types.OrderRequest {
	side := types.SideSell
	if pos.IsShort() {
		side = types.SideBuy
	}

	return types.OrderRequest{
		Asset:    asset,
		AssetIdx: idx,
		Side:     side,
		Kind:     kind,
		Quantity: math.Abs(pos.Quantity),
		Price:    price,
		Forced:   true,
	}
}

// Rejection is a vote that failed a pre-order check, with the outcome tag of
// the first check that failed.
type Rejection struct {
	Request types.OrderRequest
	Outcome types.Outcome
}

// Plan is one timestamp's order set, already split into the deterministic
// application order: forced exits first, then signal sells, then signal buys.
type Plan struct {
	Forced     []types.OrderRequest
	Sells      []types.OrderRequest
	Buys       []types.OrderRequest
	Rejections []Rejection
	// DrawdownTripped is true when the circuit breaker suppressed buys
	// this step.
	DrawdownTripped bool
}

// Engine holds the per-asset and portfolio-level constraint parameters for
// one run. It carries the drawdown breaker's latch, so each run needs its own
// instance.
type Engine struct {
	assets    []string
	position  []config.PositionConstraintParams
	portfolio config.PortfolioConstraintParams

	liquidated bool
}

// NewEngine builds the constraint engine for one run's asset list.
func NewEngine(assets []string, position []config.PositionConstraintParams, pf config.PortfolioConstraintParams) *Engine {
	return &Engine{assets: assets, position: position, portfolio: pf}
}

// Evaluate converts the step's votes into the step's order plan. Assets are
// processed in declaration order, which is the deterministic tie-break for
// everything downstream.
func (e *Engine) Evaluate(p *portfolio.Portfolio, votes []types.Vote, prices []float64, step int) Plan {
	plan := Plan{}

	tripped := p.Drawdown() >= e.portfolio.MaxDrawdownPct
	plan.DrawdownTripped = tripped

	if tripped && e.portfolio.LiquidateOnMaxDrawdown && !e.liquidated {
		// First trip: flatten everything. Afterwards the breaker only
		// suppresses buys.
		e.liquidated = true

		for idx := range e.assets {
			pos := p.Position(idx)
			if pos == nil || !pos.HasExposure() {
				continue
			}

			plan.Forced = append(plan.Forced, forcedExitRequest(e.assets[idx], idx, pos, types.KindLiquidation, prices[idx]))
		}
	} else {
		// Stop-loss and take-profit fire off position state alone,
		// independent of any vote. Stop-loss wins when both trigger.
		for idx := range e.assets {
			pos := p.Position(idx)
			if pos == nil || !pos.HasExposure() {
				continue
			}

			price := prices[idx]

			switch {
			case pos.ShouldStopLoss(price):
				plan.Forced = append(plan.Forced, forcedExitRequest(e.assets[idx], idx, pos, types.KindStopLoss, price))
			case pos.ShouldTakeProfit(price):
				plan.Forced = append(plan.Forced, forcedExitRequest(e.assets[idx], idx, pos, types.KindTakeProfit, price))
			}
		}
	}

	forcedExit := make(map[int]bool, len(plan.Forced))
	for _, req := range plan.Forced {
		forcedExit[req.AssetIdx] = true
	}

	equity := p.Equity()
	cash := p.Cash()
	buyValue := 0.0

	for idx, vote := range votes {
		if forcedExit[idx] {
			continue
		}

		switch vote.Direction {
		case types.DirectionSell:
			if req, rej := e.planSell(p, idx, prices[idx], equity, cash, step); rej != nil {
				plan.Rejections = append(plan.Rejections, *rej)
			} else if req != nil {
				plan.Sells = append(plan.Sells, *req)
			}
		case types.DirectionBuy:
			if tripped {
				continue
			}

			if req, rej := e.planBuy(p, idx, prices[idx], equity, cash, step); rej != nil {
				plan.Rejections = append(plan.Rejections, *rej)
			} else if req != nil {
				buyValue += req.Notional()
				plan.Buys = append(plan.Buys, *req)
			}
		}
	}

	// Portfolio-level rebalance gate: a buy batch that would add less than
	// the threshold of equity is not worth its transaction costs. Sells are
	// never gated; reducing risk is always allowed.
	if len(plan.Buys) > 0 && buyValue <= e.portfolio.RebalanceThresholdPct*equity {
		plan.Buys = nil
	}

	return plan
}

// planSell runs the sell-side checks in order: holding period, short sell,
// sizing, minimum size. With nothing held the vote is a short-sell: rejected
// when the portfolio is long only, otherwise sized as a short entry the same
// way a buy entry is.
func (e *Engine) planSell(p *portfolio.Portfolio, idx int, price, equity, cash float64, step int) (*types.OrderRequest, *Rejection) {
	pos := p.Position(idx)
	c := e.position[idx]

	req := types.OrderRequest{
		Asset:    e.assets[idx],
		AssetIdx: idx,
		Side:     types.SideSell,
		Kind:     types.KindSignal,
		Price:    price,
	}

	if pos == nil || !pos.HasQuantity() {
		if e.portfolio.LongOnly {
			return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedShortSell}
		}

		if pos != nil && pos.InCoolDown(step) {
			return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedCoolDownAfterLoss}
		}

		req.Quantity = entryQuantity(c, price, equity, cash)
		if req.Quantity <= 0 || req.Notional() <= c.MinTradeSizePct*equity {
			return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedTradeSizeTooSmall}
		}

		return &req, nil
	}

	if pos.HoldingCandles(step) < c.MinHoldingCandle {
		req.Quantity = roundQuantity(pos.Quantity * c.SellFraction)

		return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedHoldingPeriod}
	}

	req.Quantity = roundQuantity(pos.Quantity * c.SellFraction)
	if req.Quantity <= 0 || req.Notional() < c.MinTradeSizePct*equity {
		return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedTradeSizeTooSmall}
	}

	return &req, nil
}

// planBuy runs the buy-side checks in order: cool-down, sizing, minimum size.
// The cash check happens at apply time, where shrink-or-fail is decided.
func (e *Engine) planBuy(p *portfolio.Portfolio, idx int, price, equity, cash float64, step int) (*types.OrderRequest, *Rejection) {
	pos := p.Position(idx)
	c := e.position[idx]

	req := types.OrderRequest{
		Asset:    e.assets[idx],
		AssetIdx: idx,
		Side:     types.SideBuy,
		Kind:     types.KindSignal,
		Price:    price,
	}

	// Covers pass freely: cool-down only blocks entries.
	if pos != nil && pos.InCoolDown(step) && !pos.IsShort() {
		return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedCoolDownAfterLoss}
	}

	req.Quantity = entryQuantity(c, price, equity, cash)

	if req.Quantity <= 0 || req.Notional() <= c.MinTradeSizePct*equity {
		return nil, &Rejection{Request: req, Outcome: types.OutcomeRejectedTradeSizeTooSmall}
	}

	return &req, nil
}

// entryQuantity is the risk-based entry size: the per-trade risk budget over
// the distance to the trailing stop, capped by the absolute position-size
// limit. Long and short entries size identically.
func entryQuantity(c config.PositionConstraintParams, price, equity, cash float64) float64 {
	riskBased := c.RiskPerTradePct * math.Min(cash, equity) / (c.TrailingStopLossPct * price)
	maxAllowed := c.MaxPositionSizePct * equity / price

	return roundQuantity(math.Min(riskBased, maxAllowed))
}
