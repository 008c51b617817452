package types

import "time"

// Snapshot is the per-timestamp portfolio sample. Snapshots are append-only:
// they form the time-indexed curves every metric is computed from.
type Snapshot struct {
	Time           time.Time `csv:"time" yaml:"time"`
	Equity         float64   `csv:"equity" yaml:"equity"`
	Cash           float64   `csv:"cash" yaml:"cash"`
	Notional       float64   `csv:"notional" yaml:"notional"`
	CumulativeCost float64   `csv:"cumulative_cost" yaml:"cumulative_cost"`
	RealizedPnL    float64   `csv:"realized_pnl" yaml:"realized_pnl"`
	UnrealizedPnL  float64   `csv:"unrealized_pnl" yaml:"unrealized_pnl"`
	// Composition holds per-asset notional, indexed by the run's asset list.
	Composition []float64 `csv:"-" yaml:"composition,flow"`
}
