package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/costmodel"
	"github.com/quantakt/backtest/internal/logger"
	"github.com/quantakt/backtest/internal/marketdata"
	"github.com/quantakt/backtest/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItem is one grid cell's run outcome. GridNum is assigned from the
// config's position before dispatch, so it is stable no matter in what order
// workers finish.
type BatchItem struct {
	GridNum int
	Config  config.BacktestConfig
	Status  Status
	Result  *Result
	Err     error
}

// Batch runs many independent backtests in parallel. Every run owns its own
// portfolio and loop; the only shared state is the read-only dataset and the
// completion counter.
type Batch struct {
	Workers int
	// Timeout bounds each run. A run that exceeds it is marked failed and
	// the batch moves on. Zero means no per-run timeout.
	Timeout time.Duration
	Model   costmodel.CostModel
	Logger  *logger.Logger

	completed atomic.Int64
}

// NewBatch builds a batch runner with the given worker-pool size.
func NewBatch(workers int, logger *logger.Logger) *Batch {
	return &Batch{
		Workers: workers,
		Logger:  logger,
	}
}

// Completed reports how many runs have finished (in any status), safe to poll
// from another goroutine for progress display.
func (b *Batch) Completed() int64 {
	return b.completed.Load()
}

// Run executes every config against the shared dataset and returns items in
// grid order. Cancellation is checked before each dispatch: runs already in
// flight finish (or hit their timeout), undispatched ones come back canceled.
func (b *Batch) Run(ctx context.Context, configs []config.BacktestConfig, dataset *marketdata.Dataset) ([]BatchItem, error) {
	if len(configs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyGrid, "batch has no configs")
	}

	items := make([]BatchItem, len(configs))
	for i := range configs {
		items[i] = BatchItem{GridNum: i, Config: configs[i]}
	}

	workers := b.Workers
	if workers <= 0 {
		workers = 1
	}

	g := &errgroup.Group{}
	g.SetLimit(workers)

	for i := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				items[j].Status = StatusCanceled
				items[j].Err = err
			}

			break
		}

		item := &items[i]

		g.Go(func() error {
			b.runOne(ctx, item, dataset)
			b.completed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, err
	}

	return items, nil
}

func (b *Batch) runOne(ctx context.Context, item *BatchItem, dataset *marketdata.Dataset) {
	runCtx := ctx

	if b.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	opts := []Option{}
	if b.Model != nil {
		opts = append(opts, WithCostModel(b.Model))
	}

	if b.Logger != nil {
		opts = append(opts, WithLogger(b.Logger))
	}

	eng, err := New(item.Config, dataset, opts...)
	if err != nil {
		item.Status = StatusFailed
		item.Err = err

		return
	}

	result, err := eng.Run(runCtx)
	if err != nil {
		item.Status = StatusFailed
		item.Err = err

		if b.Logger != nil {
			b.Logger.Warn("grid run failed",
				zap.Int("grid_num", item.GridNum),
				zap.Error(err),
			)
		}

		return
	}

	item.Status = StatusCompleted
	item.Result = result
}
