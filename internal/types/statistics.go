package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Ratio is a metric that may be undefined (division by a zero denominator).
// Undefined ratios render as "-", which is distinct from a legitimate zero.
type Ratio struct {
	Value float64
	Valid bool
}

// DefinedRatio returns a valid ratio.
func DefinedRatio(v float64) Ratio {
	return Ratio{Value: v, Valid: true}
}

// UndefinedRatio returns the undefined sentinel.
func UndefinedRatio() Ratio {
	return Ratio{Value: 0, Valid: false}
}

// MarshalYAML renders undefined ratios as "-".
func (r Ratio) MarshalYAML() (interface{}, error) {
	if !r.Valid {
		return "-", nil
	}

	return r.Value, nil
}

func (r Ratio) String() string {
	if !r.Valid {
		return "-"
	}

	return fmt.Sprintf("%.4f", r.Value)
}

// ExitBreakdown reports one exit category's share of a position's closed trades.
type ExitBreakdown struct {
	// Count of executed sell trades in this category.
	Count int `yaml:"count"`
	// CountPct is Count as a percentage of all executed sells for the position.
	CountPct float64 `yaml:"count_pct"`
	// Gain is the summed positive realized PnL contributed by this category.
	Gain float64 `yaml:"gain"`
	// Loss is the summed negative realized PnL contributed by this category.
	Loss float64 `yaml:"loss"`
}

// PositionMetrics holds per-asset statistics for a completed run.
type PositionMetrics struct {
	Asset string `yaml:"asset"`
	// Trade activity.
	ExecutedBuys  int `yaml:"executed_buys"`
	ExecutedSells int `yaml:"executed_sells"`
	// PnL of the position over the run.
	RealizedPnL   float64 `yaml:"realized_pnl"`
	UnrealizedPnL float64 `yaml:"unrealized_pnl"`
	TotalCost     float64 `yaml:"total_cost"`
	// Return relative to capital deployed into the position.
	Return Ratio `yaml:"return"`
	// WinRate over the position's closed sell trades.
	WinRate Ratio `yaml:"win_rate"`
	// Exit composition by category.
	Exits map[ExitKind]ExitBreakdown `yaml:"exits"`
}

// KeyMetrics is computed once per run from the full snapshot and trade history.
// It is never mutated incrementally.
type KeyMetrics struct {
	// Returns.
	GrossReturn      float64 `yaml:"gross_return"`
	NetReturn        float64 `yaml:"net_return"`
	AnnualizedReturn Ratio   `yaml:"annualized_return"`
	// Risk.
	AnnualizedVolatility Ratio   `yaml:"annualized_volatility"`
	MaxDrawdown          float64 `yaml:"max_drawdown"`
	// MaxDrawdownDuration is the longest peak-to-trough interval in the equity curve.
	MaxDrawdownDuration time.Duration `yaml:"max_drawdown_duration"`
	// Risk-adjusted returns.
	Sharpe  Ratio `yaml:"sharpe"`
	Sortino Ratio `yaml:"sortino"`
	Calmar  Ratio `yaml:"calmar"`
	// Trade statistics over closed round trips.
	WinRate      Ratio `yaml:"win_rate"`
	ProfitFactor Ratio `yaml:"profit_factor"`
	// Totals.
	TotalFees       float64 `yaml:"total_fees"`
	InjectedCapital float64 `yaml:"injected_capital"`
}

// RunSummary is the yaml-serializable header written next to exported results.
type RunSummary struct {
	ID           string                     `yaml:"id"`
	Timestamp    time.Time                  `yaml:"timestamp"`
	Assets       []string                   `yaml:"assets"`
	InitialValue float64                    `yaml:"initial_value"`
	FinalValue   float64                    `yaml:"final_value"`
	MaxValue     float64                    `yaml:"max_value"`
	MinValue     float64                    `yaml:"min_value"`
	PeakEquity   float64                    `yaml:"peak_equity"`
	TotalReturn  float64                    `yaml:"total_return"`
	Outcomes     map[Outcome]int            `yaml:"outcomes"`
	Metrics      KeyMetrics                 `yaml:"metrics"`
	Positions    map[string]PositionMetrics `yaml:"positions"`
}

// WriteRunSummary marshals the summary to yaml at path.
func WriteRunSummary(path string, summary RunSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary to file: %w", err)
	}

	return nil
}
