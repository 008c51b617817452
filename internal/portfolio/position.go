package portfolio

import (
	"math"
	"time"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/types"
)

// Positions smaller than this are treated as fully closed. Quantities are
// rounded to the same grain when shrunk, so dust never accumulates.
const quantityEpsilon = 1e-6

// Status is the position lifecycle state. Closed positions keep their history
// and re-open on the next executed entry.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Position is one asset's open-interest state. Quantity is signed: positive
// is long, negative is short (shorts exist only when the portfolio allows
// them). It is mutated only through the portfolio's trade-application
// protocol; everything else reads it.
type Position struct {
	Asset       string
	Quantity    float64
	AvgEntry    float64
	EntryTime   time.Time
	EntryStep   int
	Status      Status
	constraints config.PositionConstraintParams

	// Trailing exit state. PeakPrice is the most favorable price since
	// entry, a high-water mark for longs and a low-water mark for shorts.
	// The stop only ratchets when price clears the peak by the update
	// threshold, so small new extremes do not thrash it.
	PeakPrice       float64
	TrailingStop    float64
	TakeProfitPrice float64

	// Cool-down: entries are blocked until this step after a losing exit.
	CoolDownUntilStep int

	LastEntryTime time.Time
	LastExitTime  time.Time
	LastExitStep  int
	LastExitPnL   float64

	Notional      float64
	UnrealizedPnL float64
	RealizedPnL   float64
	CumBuyCost    float64
	CumSellCost   float64
	SharesBought  float64
	SharesSold    float64
	ExecutedBuys  int
	ExecutedSells int

	// Realized gain and loss split by what triggered each exit.
	ExitGain map[types.ExitKind]float64
	ExitLoss map[types.ExitKind]float64
	ExitQty  map[types.ExitKind]int
}

func newPosition(asset string, price float64, short bool, ts time.Time, step int, c config.PositionConstraintParams) *Position {
	p := &Position{
		Asset:             asset,
		constraints:       c,
		CoolDownUntilStep: -1,
		LastEntryTime:     ts,
		ExitGain:          make(map[types.ExitKind]float64),
		ExitLoss:          make(map[types.ExitKind]float64),
		ExitQty:           make(map[types.ExitKind]int),
	}

	p.resetEntry(price, short, ts, step)

	return p
}

// resetEntry re-arms the entry markers and trailing state as a fresh
// position at price. Quantity is zeroed; the caller folds it back in.
func (p *Position) resetEntry(price float64, short bool, ts time.Time, step int) {
	p.Status = StatusOpen
	p.AvgEntry = price
	p.Quantity = 0
	p.EntryTime = ts
	p.EntryStep = step
	p.PeakPrice = price

	if short {
		p.TrailingStop = price * (1 + p.constraints.TrailingStopLossPct)
	} else {
		p.TrailingStop = price * (1 - p.constraints.TrailingStopLossPct)
	}
}

// refreshTakeProfit re-derives the take-profit level from the current cost
// basis, so averaging into a position moves the target with the basis.
func (p *Position) refreshTakeProfit() {
	if p.constraints.TakeProfitPct <= 0 {
		p.TakeProfitPrice = 0

		return
	}

	if p.IsShort() {
		p.TakeProfitPrice = p.AvgEntry * (1 - p.constraints.TakeProfitPct)
	} else {
		p.TakeProfitPrice = p.AvgEntry * (1 + p.constraints.TakeProfitPct)
	}
}

// PreOrderUpdate advances the trailing state to the current candle's close.
// Called once per timestamp before any order is evaluated. The stop ratchets
// only when price clears the previous peak by the update threshold, toward
// higher prices for longs and lower prices for shorts.
func (p *Position) PreOrderUpdate(price float64) {
	switch {
	case p.Quantity > quantityEpsilon:
		if price > p.PeakPrice*(1+p.constraints.TrailingStopUpdateThresholdPct) {
			p.TrailingStop = price * (1 - p.constraints.TrailingStopLossPct)
		}

		if price > p.PeakPrice {
			p.PeakPrice = price
		}
	case p.Quantity < -quantityEpsilon:
		if price < p.PeakPrice*(1-p.constraints.TrailingStopUpdateThresholdPct) {
			p.TrailingStop = price * (1 + p.constraints.TrailingStopLossPct)
		}

		if price < p.PeakPrice {
			p.PeakPrice = price
		}
	}
}

// MarkToMarket revalues the position at the candle close and returns its
// notional and unrealized P&L contribution. Both are signed; a short's
// notional is negative and its unrealized P&L grows as price falls.
func (p *Position) MarkToMarket(price float64) (notional, unrealized float64) {
	p.Notional = p.Quantity * price
	p.UnrealizedPnL = (price - p.AvgEntry) * p.Quantity

	return p.Notional, p.UnrealizedPnL
}

// HasQuantity reports whether there is long quantity left to sell.
func (p *Position) HasQuantity() bool {
	return p.Quantity > quantityEpsilon
}

// HasExposure reports whether the position is open in either direction.
func (p *Position) HasExposure() bool {
	return math.Abs(p.Quantity) > quantityEpsilon
}

// IsShort reports whether the open quantity is negative.
func (p *Position) IsShort() bool {
	return p.Quantity < -quantityEpsilon
}

// InCoolDown reports whether a losing exit still blocks re-entry at step.
func (p *Position) InCoolDown(step int) bool {
	return step <= p.CoolDownUntilStep
}

// HoldingCandles is how many steps the current position has been open.
func (p *Position) HoldingCandles(step int) int {
	return step - p.EntryStep
}

// ShouldStopLoss reports whether price has crossed the trailing stop, from
// above for longs and from below for shorts.
func (p *Position) ShouldStopLoss(price float64) bool {
	switch {
	case p.HasQuantity():
		return price < p.TrailingStop
	case p.IsShort():
		return price > p.TrailingStop
	default:
		return false
	}
}

// ShouldTakeProfit reports whether price has reached the take-profit level.
func (p *Position) ShouldTakeProfit(price float64) bool {
	if p.TakeProfitPrice <= 0 {
		return false
	}

	switch {
	case p.HasQuantity():
		return price >= p.TakeProfitPrice
	case p.IsShort():
		return price <= p.TakeProfitPrice
	default:
		return false
	}
}

// applyBuy folds an executed buy into the position and returns the realized
// P&L, nonzero only when the buy covers short exposure. A cover that exceeds
// the short flips the remainder into a fresh long entry.
func (p *Position) applyBuy(price, quantity, cost float64, kind types.ExitKind, ts time.Time, step int) float64 {
	covered := math.Min(quantity, math.Max(-p.Quantity, 0))
	opened := quantity - covered

	pnl := 0.0
	if covered > 0 {
		pnl = (p.AvgEntry-price)*covered - cost
		p.recordExit(pnl, kind, ts, step)
		p.Quantity += covered

		if !p.HasExposure() {
			p.Quantity = 0
			p.Status = StatusClosed
		}
	}

	if opened > 0 {
		if p.Status == StatusClosed {
			p.resetEntry(price, false, ts, step)
		}

		oldQty := p.Quantity
		p.Quantity = oldQty + opened
		p.AvgEntry = (p.AvgEntry*oldQty + price*opened) / p.Quantity
		p.refreshTakeProfit()
		p.LastEntryTime = ts
	}

	p.CumBuyCost += cost
	p.SharesBought += quantity
	p.ExecutedBuys++
	p.Notional = p.Quantity * price

	return pnl
}

// applySell folds an executed sell into the position and returns the realized
// P&L net of cost. Quantity beyond the held amount opens or extends a short;
// the caller clamps it away when shorts are prohibited. A losing exit starts
// the cool-down clock.
func (p *Position) applySell(price, quantity, cost float64, kind types.ExitKind, ts time.Time, step int) float64 {
	closed := math.Min(quantity, math.Max(p.Quantity, 0))
	opened := quantity - closed

	pnl := 0.0
	if closed > 0 {
		pnl = (price-p.AvgEntry)*closed - cost
		p.recordExit(pnl, kind, ts, step)
		p.Quantity -= closed

		if !p.HasExposure() {
			p.Quantity = 0
			p.Status = StatusClosed
		}
	}

	if opened > 0 {
		if p.Status == StatusClosed {
			p.resetEntry(price, true, ts, step)
		}

		oldQty := p.Quantity
		p.Quantity = oldQty - opened
		p.AvgEntry = (p.AvgEntry*oldQty - price*opened) / p.Quantity
		p.refreshTakeProfit()
		p.LastEntryTime = ts
	}

	p.CumSellCost += cost
	p.SharesSold += quantity
	p.ExecutedSells++
	p.Notional = p.Quantity * price

	return pnl
}

func (p *Position) recordExit(pnl float64, kind types.ExitKind, ts time.Time, step int) {
	p.RealizedPnL += pnl
	p.LastExitTime = ts
	p.LastExitStep = step
	p.LastExitPnL = pnl

	if pnl > 0 {
		p.ExitGain[kind] += pnl
	} else {
		p.ExitLoss[kind] += pnl
	}

	p.ExitQty[kind]++

	if pnl < 0 && p.constraints.CoolDownPeriod > 0 {
		p.CoolDownUntilStep = step + p.constraints.CoolDownPeriod
	}
}
