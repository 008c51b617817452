package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/engine"
	"github.com/quantakt/backtest/internal/logger"
	"github.com/quantakt/backtest/internal/marketdata"
	"github.com/quantakt/backtest/internal/results"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Candle-by-candle multi-asset backtesting",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug-level console logging",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			gridCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a single backtest from a config file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest config yaml",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the candle file (csv or parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to export results into",
				Value:   "./results",
			},
		},
		Action: runAction,
	}
}

// newLogger builds the command's logger, honoring the global verbose flag.
func newLogger(cmd *cli.Command) (*logger.Logger, error) {
	if cmd.Bool("verbose") {
		return logger.NewLogger(logger.WithDebug())
	}

	return logger.NewLogger()
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	dataset, err := loadDataset(cmd.String("data"), cfg, log)
	if err != nil {
		return err
	}

	eng, err := engine.New(*cfg, dataset, engine.WithLogger(log))
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go trackProgress(eng, cfg.Name, done)

	result, err := eng.Run(ctx)
	close(done)

	if err != nil {
		return err
	}

	store, err := results.NewStore(log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Record(result); err != nil {
		return err
	}

	if err := store.Export(cmd.String("output"), result); err != nil {
		return err
	}

	fmt.Printf("final value: %.2f  return: %.2f%%  trades: %d\n",
		result.FinalValue, result.TotalReturn*100, len(result.Trades))

	return nil
}

func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Run every config in a directory as a parallel batch",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "configs",
				Usage:    "Glob of backtest config yamls, e.g. './grid/*.yaml'",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the candle file (csv or parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to export batch results into",
				Value:   "./results",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Worker pool size",
				Value:   int64(runtime.NumCPU()),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-run timeout; an expired run is marked failed",
			},
		},
		Action: gridAction,
	}
}

func gridAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	paths, err := filepath.Glob(cmd.String("configs"))
	if err != nil {
		return err
	}

	sort.Strings(paths)

	configs := make([]config.BacktestConfig, 0, len(paths))

	for _, path := range paths {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}

		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		configs = append(configs, *cfg)
	}

	if len(configs) == 0 {
		return fmt.Errorf("no configs matched %q", cmd.String("configs"))
	}

	// Every grid cell shares one immutable dataset; load with the union of
	// the first config's assets, which the grid convention keeps identical
	// across cells.
	dataset, err := loadDataset(cmd.String("data"), &configs[0], log)
	if err != nil {
		return err
	}

	batch := engine.NewBatch(int(cmd.Int("workers")), log)
	batch.Timeout = cmd.Duration("timeout")

	bar := progressbar.Default(int64(len(configs)))
	bar.Describe(fmt.Sprintf("Running %d backtests", len(configs)))

	barDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-barDone:
				return
			case <-ticker.C:
				bar.Set64(batch.Completed())
			}
		}
	}()

	items, err := batch.Run(ctx, configs, dataset)
	close(barDone)
	bar.Finish()

	if err != nil {
		return err
	}

	store, err := results.NewStore(log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ExportBatch(cmd.String("output"), items); err != nil {
		return err
	}

	completed := 0

	for _, item := range items {
		if item.Status == engine.StatusCompleted {
			completed++
		} else {
			log.Warn("grid item did not complete",
				zap.Int("grid_num", item.GridNum),
				zap.String("status", string(item.Status)),
				zap.Error(item.Err),
			)
		}
	}

	fmt.Printf("batch done: %d/%d completed\n", completed, len(items))

	return nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the backtest config JSON schema",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			schema, err := (&config.BacktestConfig{}).GenerateSchemaJSON()
			if err != nil {
				return err
			}

			fmt.Println(schema)

			return nil
		},
	}
}

func loadDataset(path string, cfg *config.BacktestConfig, log *logger.Logger) (*marketdata.Dataset, error) {
	loader, err := marketdata.NewLoader(":memory:", log)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		err = loader.InitializeParquet(path)
	default:
		err = loader.InitializeCSV(path)
	}

	if err != nil {
		return nil, err
	}

	required := cfg.Start.Add(-time.Duration(cfg.WarmUpPeriod) * cfg.Cadence())

	return loader.Load(cfg.Symbols(), required, cfg.End)
}

func trackProgress(eng *engine.Engine, name string, done chan struct{}) {
	var bar *progressbar.ProgressBar

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if bar != nil {
				bar.Finish()
			}

			return
		case <-ticker.C:
			completed, total := eng.Progress()
			if total == 0 {
				continue
			}

			if bar == nil {
				bar = progressbar.Default(total)
				bar.Describe(fmt.Sprintf("Running %s", name))
			}

			bar.Set64(completed)
		}
	}
}
