// Package portfolio owns the money. Cash, per-asset positions, the trade log,
// and the snapshot curves live here, and all of it is mutated through exactly
// one entry point, ApplyTrade, so every invariant has a single place to hold.
package portfolio

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/costmodel"
	"github.com/quantakt/backtest/internal/types"
	"github.com/shopspring/decimal"
)

// Portfolio is the run's single source of truth for cash and positions.
// It is not safe for concurrent use; each run owns its own instance.
type Portfolio struct {
	assets              []string
	params              config.PortfolioParams
	constraints         config.PortfolioConstraintParams
	positionConstraints []config.PositionConstraintParams
	model               costmodel.CostModel

	cash      decimal.Decimal
	positions []*Position

	trades    []types.Trade
	snapshots []types.Snapshot

	cumulativeCost  float64
	realizedPnL     float64
	injectedCapital float64
	lastEquity      float64
	peakEquity      float64

	lastGrowthPeriod int64
	growthSeen       bool
}

// New builds a flat portfolio holding only the initial cash.
func New(
	assets []string,
	params config.PortfolioParams,
	constraints config.PortfolioConstraintParams,
	positionConstraints []config.PositionConstraintParams,
	model costmodel.CostModel,
) *Portfolio {
	return &Portfolio{
		assets:              assets,
		params:              params,
		constraints:         constraints,
		positionConstraints: positionConstraints,
		model:               model,
		cash:                decimal.NewFromFloat(params.InitialCash),
		positions:           make([]*Position, len(assets)),
		lastEquity:          params.InitialCash,
		peakEquity:          params.InitialCash,
	}
}

// Cash returns the current free cash.
func (p *Portfolio) Cash() float64 {
	return p.cash.InexactFloat64()
}

// Equity returns the most recent marked equity (cash plus notional).
func (p *Portfolio) Equity() float64 {
	return p.lastEquity
}

// PeakEquity returns the highest equity marked so far.
func (p *Portfolio) PeakEquity() float64 {
	return p.peakEquity
}

// Drawdown returns the current peak-to-now equity drawdown in [0, 1].
func (p *Portfolio) Drawdown() float64 {
	if p.peakEquity <= 0 {
		return 0
	}

	dd := (p.peakEquity - p.lastEquity) / p.peakEquity
	if dd < 0 {
		return 0
	}

	return dd
}

// InjectedCapital returns the total scheduled cash injected so far.
func (p *Portfolio) InjectedCapital() float64 {
	return p.injectedCapital
}

// Position returns the position for the asset index, or nil before the first
// buy. Callers must treat it as read-only.
func (p *Portfolio) Position(idx int) *Position {
	return p.positions[idx]
}

// Positions returns the full position slice, indexed by asset.
func (p *Portfolio) Positions() []*Position {
	return p.positions
}

// Trades returns the append-only trade log.
func (p *Portfolio) Trades() []types.Trade {
	return p.trades
}

// Snapshots returns the append-only per-timestamp curves.
func (p *Portfolio) Snapshots() []types.Snapshot {
	return p.snapshots
}

// PreOrderUpdate advances every open position's trailing state to the current
// candle closes. Runs once per timestamp before any order is evaluated.
func (p *Portfolio) PreOrderUpdate(prices []float64) {
	for idx, pos := range p.positions {
		if pos != nil && idx < len(prices) {
			pos.PreOrderUpdate(prices[idx])
		}
	}
}

// RecordRejection appends a constraint-engine rejection to the trade log.
// Rejections are data, not errors; nothing about the portfolio changes.
func (p *Portfolio) RecordRejection(req types.OrderRequest, outcome types.Outcome, ts time.Time) types.Trade {
	trade := types.Trade{
		ID:        uuid.NewString(),
		Asset:     req.Asset,
		AssetIdx:  req.AssetIdx,
		Side:      req.Side,
		Kind:      req.Kind,
		Outcome:   outcome,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Timestamp: ts,
	}

	p.trades = append(p.trades, trade)

	return trade
}

// ApplyTrade is the single mutation entry point. It validates the request,
// computes its transaction cost, and either applies the full state change or
// records a Failed* outcome touching nothing. Either way the returned trade
// is appended to the log.
func (p *Portfolio) ApplyTrade(req types.OrderRequest, recentVolume float64, ts time.Time, step int) types.Trade {
	trade := types.Trade{
		ID:        uuid.NewString(),
		Asset:     req.Asset,
		AssetIdx:  req.AssetIdx,
		Side:      req.Side,
		Kind:      req.Kind,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Timestamp: ts,
	}

	switch req.Side {
	case types.SideBuy:
		p.applyBuyTrade(&trade, req, recentVolume, ts, step)
	case types.SideSell:
		p.applySellTrade(&trade, req, recentVolume, ts, step)
	}

	p.trades = append(p.trades, trade)

	return trade
}

func (p *Portfolio) applyBuyTrade(trade *types.Trade, req types.OrderRequest, recentVolume float64, ts time.Time, step int) {
	pos := p.positions[req.AssetIdx]

	// Cool-down blocks entries, never covers: buying back a short is a
	// risk reduction and must always be allowed.
	if pos != nil && pos.InCoolDown(step) && !pos.IsShort() {
		trade.Outcome = types.OutcomeFailedCoolDown
		trade.Quantity = 0

		return
	}

	price := decimal.NewFromFloat(req.Price)
	quantity := decimal.NewFromFloat(req.Quantity)
	volume := decimal.NewFromFloat(recentVolume)

	// A cash reserve stays untouchable: buys can only spend the rest.
	available := p.cash.Mul(decimal.NewFromFloat(1 - p.constraints.MinCashPct))

	notional := quantity.Mul(price)
	cost := p.model.Cost(notional, volume, types.SideBuy)
	required := notional.Add(cost)

	if required.GreaterThan(available) {
		if p.constraints.InsufficientCashPolicy == config.CashPolicyReject {
			trade.Outcome = types.OutcomeFailedInsufficientCash
			trade.Quantity = 0

			return
		}

		// Shrink to what the reserve-adjusted cash affords, holding the
		// cost-to-notional ratio of the requested size.
		rate := decimal.Zero
		if notional.IsPositive() {
			rate = cost.Div(notional)
		}

		quantity = shrinkQuantity(available, price, rate)
		if !quantity.IsPositive() {
			trade.Outcome = types.OutcomeFailedInsufficientCash
			trade.Quantity = 0

			return
		}

		notional = quantity.Mul(price)
		cost = p.model.Cost(notional, volume, types.SideBuy)
	}

	if pos == nil {
		pos = newPosition(req.Asset, req.Price, false, ts, step, p.positionConstraintsFor(req.AssetIdx))
		p.positions[req.AssetIdx] = pos
	}

	costF, _ := cost.Float64()
	qtyF, _ := quantity.Float64()

	avgEntry := pos.AvgEntry
	entryTime := pos.EntryTime
	wasShort := pos.IsShort()

	p.cash = p.cash.Sub(notional).Sub(cost)
	p.cumulativeCost += costF
	pnl := pos.applyBuy(req.Price, qtyF, costF, req.Kind, ts, step)
	p.realizedPnL += pnl

	trade.Outcome = types.OutcomeExecuted
	trade.Quantity = qtyF
	trade.Cost = costF

	if wasShort {
		trade.RealizedPnL = pnl
		trade.AvgEntryPrice = avgEntry
		trade.HoldingPeriod = ts.Sub(entryTime)
	}
}

func (p *Portfolio) applySellTrade(trade *types.Trade, req types.OrderRequest, recentVolume float64, ts time.Time, step int) {
	pos := p.positions[req.AssetIdx]

	quantity := req.Quantity

	if p.constraints.LongOnly {
		// Long only: sells are clamped to the held quantity and a sell
		// with nothing held fails outright.
		if pos == nil || !pos.HasQuantity() {
			trade.Outcome = types.OutcomeFailedShortSellProhibited
			trade.Quantity = 0

			return
		}

		quantity = math.Min(req.Quantity, pos.Quantity)
		if quantity <= 0 {
			trade.Outcome = types.OutcomeFailedShortSellProhibited
			trade.Quantity = 0

			return
		}
	} else {
		// Shorting enabled: quantity beyond the held amount opens or
		// extends a short. The opening leg is an entry, so cool-down
		// applies to it just as it does to buys.
		opening := pos == nil || quantity > math.Max(pos.Quantity, 0)
		if opening && pos != nil && pos.InCoolDown(step) {
			trade.Outcome = types.OutcomeFailedCoolDown
			trade.Quantity = 0

			return
		}

		if pos == nil {
			pos = newPosition(req.Asset, req.Price, true, ts, step, p.positionConstraintsFor(req.AssetIdx))
			p.positions[req.AssetIdx] = pos
		}
	}

	price := decimal.NewFromFloat(req.Price)
	notional := decimal.NewFromFloat(quantity).Mul(price)
	cost := p.model.Cost(notional, decimal.NewFromFloat(recentVolume), types.SideSell)
	costF, _ := cost.Float64()

	avgEntry := pos.AvgEntry
	entryTime := pos.EntryTime

	pnl := pos.applySell(req.Price, quantity, costF, req.Kind, ts, step)

	p.cash = p.cash.Add(notional).Sub(cost)
	p.cumulativeCost += costF
	p.realizedPnL += pnl

	trade.Outcome = types.OutcomeExecuted
	trade.Quantity = quantity
	trade.Cost = costF
	trade.RealizedPnL = pnl
	trade.AvgEntryPrice = avgEntry
	trade.HoldingPeriod = ts.Sub(entryTime)
}

// ApplyCapitalGrowth injects scheduled cash when the timestamp has rolled
// into a new period of the configured frequency. At most one injection per
// period; the amount is the fixed sum when configured, otherwise a fraction
// of current equity. Returns the amount injected, zero when none.
func (p *Portfolio) ApplyCapitalGrowth(ts time.Time) float64 {
	if p.params.CapitalGrowthFreq == config.FrequencyNever || p.params.CapitalGrowthFreq == "" {
		return 0
	}

	period := periodIdentifier(ts, p.params.CapitalGrowthFreq)

	if !p.growthSeen {
		p.growthSeen = true
		p.lastGrowthPeriod = period

		return 0
	}

	if period == p.lastGrowthPeriod {
		return 0
	}

	p.lastGrowthPeriod = period

	amount := p.params.CapitalGrowthAmount
	if amount == 0 {
		amount = p.lastEquity * p.params.CapitalGrowthPct
	}

	if amount <= 0 {
		return 0
	}

	p.cash = p.cash.Add(decimal.NewFromFloat(amount))
	p.injectedCapital += amount
	p.lastEquity += amount

	return amount
}

// MarkToMarket revalues every position at the candle closes and appends the
// step's snapshot. Runs once per timestamp, strictly after order application
// and capital growth.
func (p *Portfolio) MarkToMarket(ts time.Time, prices []float64) types.Snapshot {
	cash := p.cash.InexactFloat64()
	composition := make([]float64, len(p.assets))

	totalNotional := 0.0
	totalUnrealized := 0.0

	for idx, pos := range p.positions {
		if pos == nil || idx >= len(prices) {
			continue
		}

		notional, unrealized := pos.MarkToMarket(prices[idx])
		composition[idx] = notional
		totalNotional += notional
		totalUnrealized += unrealized
	}

	equity := cash + totalNotional
	p.lastEquity = equity

	if equity > p.peakEquity {
		p.peakEquity = equity
	}

	snapshot := types.Snapshot{
		Time:           ts,
		Equity:         equity,
		Cash:           cash,
		Notional:       totalNotional,
		CumulativeCost: p.cumulativeCost,
		RealizedPnL:    p.realizedPnL,
		UnrealizedPnL:  totalUnrealized,
		Composition:    composition,
	}

	p.snapshots = append(p.snapshots, snapshot)

	return snapshot
}

func (p *Portfolio) positionConstraintsFor(idx int) config.PositionConstraintParams {
	if idx < len(p.positionConstraints) {
		return p.positionConstraints[idx]
	}

	return config.DefaultPositionConstraints()
}

// shrinkQuantity solves qty such that qty*price*(1+rate) == available, then
// floors to the quantity grain so the result never overdraws.
func shrinkQuantity(available, price, rate decimal.Decimal) decimal.Decimal {
	denom := price.Mul(decimal.NewFromInt(1).Add(rate))
	if !denom.IsPositive() || !available.IsPositive() {
		return decimal.Zero
	}

	qty, _ := available.Div(denom).Float64()

	return decimal.NewFromFloat(math.Floor(qty*1e6) / 1e6)
}
