package types

import (
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExitKind classifies what produced an order. Buys are always KindSignal;
// sells carry the exit category used by the metrics breakdown.
type ExitKind string

const (
	KindSignal      ExitKind = "signal"
	KindStopLoss    ExitKind = "stop_loss"
	KindTakeProfit  ExitKind = "take_profit"
	KindLiquidation ExitKind = "liquidation"
)

// Outcome is the closed set of trade results. Rejected* outcomes are produced
// by the constraint engine before an order exists; Failed* outcomes are produced
// by the trade-application protocol when validation fails at apply time.
type Outcome string

const (
	OutcomeExecuted                  Outcome = "executed"
	OutcomeFailedInsufficientCash    Outcome = "failed_insufficient_cash"
	OutcomeFailedShortSellProhibited Outcome = "failed_short_sell_prohibited"
	OutcomeFailedCoolDown            Outcome = "failed_cool_down"
	OutcomeRejectedHoldingPeriod     Outcome = "rejected_holding_period_too_short"
	OutcomeRejectedCoolDownAfterLoss Outcome = "rejected_cool_down_after_loss"
	OutcomeRejectedTradeSizeTooSmall Outcome = "rejected_trade_size_too_small"
	OutcomeRejectedShortSell         Outcome = "rejected_short_sell_prohibited"
)

// AllOutcomes lists every member of the outcome set, in reporting order.
var AllOutcomes = []Outcome{
	OutcomeExecuted,
	OutcomeFailedInsufficientCash,
	OutcomeFailedShortSellProhibited,
	OutcomeFailedCoolDown,
	OutcomeRejectedHoldingPeriod,
	OutcomeRejectedCoolDownAfterLoss,
	OutcomeRejectedTradeSizeTooSmall,
	OutcomeRejectedShortSell,
}

// Executed reports whether the outcome represents a filled trade.
func (o Outcome) Executed() bool {
	return o == OutcomeExecuted
}

// OrderRequest is the constraint engine's output: at most one per asset per
// timestamp, sized and ready for the trade-application protocol.
type OrderRequest struct {
	Asset    string   `yaml:"asset"`
	AssetIdx int      `yaml:"asset_idx"`
	Side     Side     `yaml:"side"`
	Kind     ExitKind `yaml:"kind"`
	Quantity float64  `yaml:"quantity"`
	Price    float64  `yaml:"price"`
	// Forced is true for stop-loss/take-profit/liquidation exits, which bypass
	// the holding-period and cool-down checks.
	Forced bool `yaml:"forced"`
}

// Notional returns the market value of the request.
func (r OrderRequest) Notional() float64 {
	return r.Quantity * r.Price
}

// Trade is an immutable record appended to the run's ordered trade log.
// Rejected and failed attempts are recorded too; they are data, not errors.
type Trade struct {
	ID        string    `csv:"id" yaml:"id"`
	Asset     string    `csv:"asset" yaml:"asset"`
	AssetIdx  int       `csv:"asset_idx" yaml:"asset_idx"`
	Side      Side      `csv:"side" yaml:"side"`
	Kind      ExitKind  `csv:"kind" yaml:"kind"`
	Outcome   Outcome   `csv:"outcome" yaml:"outcome"`
	Quantity  float64   `csv:"quantity" yaml:"quantity"`
	Price     float64   `csv:"price" yaml:"price"`
	Cost      float64   `csv:"cost" yaml:"cost"`
	Timestamp time.Time `csv:"timestamp" yaml:"timestamp"`
	// RealizedPnL is set on executed sells: (price - avg entry) * qty - cost.
	RealizedPnL float64 `csv:"realized_pnl" yaml:"realized_pnl"`
	// AvgEntryPrice is the position's cost basis at execution time (sells only).
	AvgEntryPrice float64 `csv:"avg_entry_price" yaml:"avg_entry_price"`
	// HoldingPeriod is the time between position entry and this exit (sells only).
	HoldingPeriod time.Duration `csv:"holding_period" yaml:"holding_period"`
}
