package engine

import (
	"time"

	"github.com/quantakt/backtest/internal/types"
)

// Status is the terminal state of one run inside a batch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Result is everything one finished run produced. It is immutable once
// returned and safe to hand across goroutines.
type Result struct {
	ID   string    `yaml:"id"`
	Name string    `yaml:"name"`
	Ran  time.Time `yaml:"ran"`

	Assets []string `yaml:"assets"`

	InitialValue float64 `yaml:"initial_value"`
	FinalValue   float64 `yaml:"final_value"`
	MaxValue     float64 `yaml:"max_value"`
	MinValue     float64 `yaml:"min_value"`
	PeakEquity   float64 `yaml:"peak_equity"`
	TotalReturn  float64 `yaml:"total_return"`

	InjectedCapital float64 `yaml:"injected_capital"`

	Snapshots []types.Snapshot `yaml:"-"`
	Trades    []types.Trade    `yaml:"-"`

	Outcomes  map[types.Outcome]int   `yaml:"outcomes"`
	Metrics   types.KeyMetrics        `yaml:"metrics"`
	Positions []types.PositionMetrics `yaml:"positions"`
}

// Summary converts the result to its serializable header form.
func (r *Result) Summary() types.RunSummary {
	positions := make(map[string]types.PositionMetrics, len(r.Positions))
	for _, pm := range r.Positions {
		positions[pm.Asset] = pm
	}

	return types.RunSummary{
		ID:           r.ID,
		Timestamp:    r.Ran,
		Assets:       r.Assets,
		InitialValue: r.InitialValue,
		FinalValue:   r.FinalValue,
		MaxValue:     r.MaxValue,
		MinValue:     r.MinValue,
		PeakEquity:   r.PeakEquity,
		TotalReturn:  r.TotalReturn,
		Outcomes:     r.Outcomes,
		Metrics:      r.Metrics,
		Positions:    positions,
	}
}
