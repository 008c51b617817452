// Package engine runs the simulation loop: a single-threaded, strictly
// sequential walk over the dataset's timestamps that wires the evaluator,
// constraint engine, and portfolio together in a fixed order every step.
// One Engine instance owns one run; batches run many instances in parallel.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/constraint"
	"github.com/quantakt/backtest/internal/costmodel"
	"github.com/quantakt/backtest/internal/logger"
	"github.com/quantakt/backtest/internal/marketdata"
	"github.com/quantakt/backtest/internal/metrics"
	"github.com/quantakt/backtest/internal/portfolio"
	"github.com/quantakt/backtest/internal/strategy"
	"github.com/quantakt/backtest/internal/types"
	"github.com/quantakt/backtest/pkg/errors"
	"go.uber.org/zap"
)

type phase int

const (
	phaseWarming phase = iota
	phaseActive
	phaseCompleted
)

// Engine executes one backtest over a shared read-only dataset. It is not
// reusable; build a fresh one per run.
type Engine struct {
	cfg     config.BacktestConfig
	dataset *marketdata.Dataset
	model   costmodel.CostModel
	logger  *logger.Logger

	done  atomic.Int64
	total int64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCostModel overrides the default flat-commission cost model.
func WithCostModel(m costmodel.CostModel) Option {
	return func(e *Engine) { e.model = m }
}

// WithLogger overrides the default nop logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New validates the config against the dataset and builds a ready-to-run
// engine. All configuration errors surface here, never mid-run.
func New(cfg config.BacktestConfig, dataset *marketdata.Dataset, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	if err := dataset.CoverageCheck(cfg.Start, cfg.End, cfg.Cadence(), cfg.WarmUpPeriod); err != nil {
		return nil, err
	}

	if len(dataset.Assets) != len(cfg.Assets) {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"dataset has %d assets, config has %d", len(dataset.Assets), len(cfg.Assets))
	}

	e := &Engine{
		cfg:     cfg,
		dataset: dataset,
		model:   costmodel.NewCommission(0.001),
		logger:  logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Progress reports steps completed and total steps, safe to read from other
// goroutines while Run is in flight.
func (e *Engine) Progress() (done, total int64) {
	return e.done.Load(), atomic.LoadInt64(&e.total)
}

// Run executes the state machine Warming then Active then Completed over
// every dataset step in [start - warmUp*cadence, end]. Each Active step, in
// order: trailing-state refresh, indicator refresh, votes, order plan, apply
// forced exits then signal sells then signal buys (each in asset-list order),
// capital growth, snapshot. The context is checked every step; cancellation
// abandons the run with an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	evaluators := make([]*strategy.Evaluator, len(e.cfg.Assets))
	positionConstraints := make([]config.PositionConstraintParams, len(e.cfg.Assets))

	for i, asset := range e.cfg.Assets {
		ev, err := strategy.NewEvaluator(asset, e.cfg.WarmUpPeriod)
		if err != nil {
			return nil, err
		}

		evaluators[i] = ev
		positionConstraints[i] = asset.Constraints
	}

	pf := portfolio.New(e.cfg.Symbols(), e.cfg.Portfolio, e.cfg.PortfolioConstraints, positionConstraints, e.model)
	ce := constraint.NewEngine(e.cfg.Symbols(), positionConstraints, e.cfg.PortfolioConstraints)

	firstStep := e.firstStep()
	lastStep := e.lastStep()
	atomic.StoreInt64(&e.total, int64(lastStep-firstStep+1))

	prices := make([]float64, len(e.cfg.Assets))
	volumes := make([]float64, len(e.cfg.Assets))
	votes := make([]types.Vote, len(e.cfg.Assets))

	state := phaseWarming

	e.logger.Info("run starting",
		zap.String("name", e.cfg.Name),
		zap.Int("steps", lastStep-firstStep+1),
		zap.Int("assets", len(e.cfg.Assets)),
	)

	for step := firstStep; step <= lastStep; step++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunCanceled, "run canceled", err)
		}

		ts := e.dataset.Timestamps[step]

		for idx, ev := range evaluators {
			ev.Update(e.dataset.CandleAt(idx, step))
		}

		if state == phaseWarming && !ts.Before(e.cfg.Start) {
			state = phaseActive
		}

		if state == phaseWarming {
			e.done.Add(1)

			continue
		}

		e.dataset.ClosesAt(step, prices)
		e.dataset.VolumesAt(step, volumes)

		pf.PreOrderUpdate(prices)

		for idx, ev := range evaluators {
			votes[idx] = ev.Evaluate()
		}

		plan := ce.Evaluate(pf, votes, prices, step)

		for _, rej := range plan.Rejections {
			pf.RecordRejection(rej.Request, rej.Outcome, ts)
		}

		for _, req := range plan.Forced {
			pf.ApplyTrade(req, volumes[req.AssetIdx], ts, step)
		}

		for _, req := range plan.Sells {
			pf.ApplyTrade(req, volumes[req.AssetIdx], ts, step)
		}

		for _, req := range plan.Buys {
			pf.ApplyTrade(req, volumes[req.AssetIdx], ts, step)
		}

		pf.ApplyCapitalGrowth(ts)
		pf.MarkToMarket(ts, prices)

		e.done.Add(1)
	}

	return e.collect(pf)
}

// firstStep is the first dataset index at or after start - warmUp*cadence.
func (e *Engine) firstStep() int {
	required := e.cfg.Start.Add(-time.Duration(e.cfg.WarmUpPeriod) * e.cfg.Cadence())

	for i, ts := range e.dataset.Timestamps {
		if !ts.Before(required) {
			return i
		}
	}

	return len(e.dataset.Timestamps) - 1
}

// lastStep is the last dataset index at or before end.
func (e *Engine) lastStep() int {
	for i := len(e.dataset.Timestamps) - 1; i >= 0; i-- {
		if !e.dataset.Timestamps[i].After(e.cfg.End) {
			return i
		}
	}

	return 0
}

func (e *Engine) collect(pf *portfolio.Portfolio) (*Result, error) {
	snapshots := pf.Snapshots()
	trades := pf.Trades()

	if len(snapshots) == 0 {
		return nil, errors.New(errors.ErrCodeRunFailed, "run produced no snapshots")
	}

	unrealized := make([]float64, len(e.cfg.Assets))
	for idx, pos := range pf.Positions() {
		if pos != nil {
			unrealized[idx] = pos.UnrealizedPnL
		}
	}

	km, pm := metrics.Compute(snapshots, trades, e.cfg.Symbols(), unrealized, metrics.Params{
		RiskFreeRate:    e.cfg.RiskFreeRate,
		Cadence:         e.cfg.Cadence(),
		InitialCash:     e.cfg.Portfolio.InitialCash,
		InjectedCapital: pf.InjectedCapital(),
	})

	outcomes := make(map[types.Outcome]int, len(types.AllOutcomes))
	for _, t := range trades {
		outcomes[t.Outcome]++
	}

	maxValue, minValue := snapshots[0].Equity, snapshots[0].Equity
	for _, s := range snapshots {
		if s.Equity > maxValue {
			maxValue = s.Equity
		}

		if s.Equity < minValue {
			minValue = s.Equity
		}
	}

	final := snapshots[len(snapshots)-1]

	result := &Result{
		ID:              uuid.NewString(),
		Name:            e.cfg.Name,
		Ran:             time.Now(),
		Assets:          e.cfg.Symbols(),
		InitialValue:    e.cfg.Portfolio.InitialCash,
		FinalValue:      final.Equity,
		MaxValue:        maxValue,
		MinValue:        minValue,
		PeakEquity:      pf.PeakEquity(),
		TotalReturn:     km.NetReturn,
		InjectedCapital: pf.InjectedCapital(),
		Snapshots:       snapshots,
		Trades:          trades,
		Outcomes:        outcomes,
		Metrics:         km,
		Positions:       pm,
	}

	e.logger.Info("run completed",
		zap.String("id", result.ID),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("total_return", result.TotalReturn),
		zap.Int("trades", len(trades)),
	)

	return result, nil
}
