// Package results persists a finished run. The engine itself stays pure and
// in-memory; this store takes its Result afterwards, lands trades and
// snapshots in DuckDB, computes SQL-side statistics, and exports parquet
// files plus a yaml summary.
package results

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantakt/backtest/internal/engine"
	"github.com/quantakt/backtest/internal/logger"
	"github.com/quantakt/backtest/internal/types"
	"github.com/quantakt/backtest/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// HoldingTimeStats is the SQL-side summary of executed sell holding periods.
type HoldingTimeStats struct {
	MinHours float64
	MaxHours float64
	AvgHours float64
}

// NewStore opens an in-memory DuckDB for the run's results.
func NewStore(log *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to open results database", err)
	}

	s := &Store{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			asset TEXT,
			side TEXT,
			kind TEXT,
			outcome TEXT,
			quantity DOUBLE,
			price DOUBLE,
			cost DOUBLE,
			timestamp TIMESTAMP,
			realized_pnl DOUBLE,
			avg_entry_price DOUBLE,
			holding_hours DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to create trades table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			time TIMESTAMP,
			equity DOUBLE,
			cash DOUBLE,
			notional DOUBLE,
			cumulative_cost DOUBLE,
			realized_pnl DOUBLE,
			unrealized_pnl DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to create snapshots table", err)
	}

	return nil
}

// Record lands the run's trades and snapshots.
func (s *Store) Record(result *engine.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, t := range result.Trades {
		insert := s.sq.
			Insert("trades").
			Columns("id", "asset", "side", "kind", "outcome", "quantity", "price",
				"cost", "timestamp", "realized_pnl", "avg_entry_price", "holding_hours").
			Values(t.ID, t.Asset, string(t.Side), string(t.Kind), string(t.Outcome),
				t.Quantity, t.Price, t.Cost, t.Timestamp, t.RealizedPnL,
				t.AvgEntryPrice, t.HoldingPeriod.Hours()).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to insert trade", err)
		}
	}

	for _, snap := range result.Snapshots {
		insert := s.sq.
			Insert("snapshots").
			Columns("time", "equity", "cash", "notional", "cumulative_cost",
				"realized_pnl", "unrealized_pnl").
			Values(snap.Time, snap.Equity, snap.Cash, snap.Notional,
				snap.CumulativeCost, snap.RealizedPnL, snap.UnrealizedPnL).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to insert snapshot", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to commit results", err)
	}

	s.logger.Debug("recorded run",
		zap.String("id", result.ID),
		zap.Int("trades", len(result.Trades)),
		zap.Int("snapshots", len(result.Snapshots)),
	)

	return nil
}

// HoldingTime summarizes executed sell holding periods for one asset.
func (s *Store) HoldingTime(asset string) (HoldingTimeStats, error) {
	query := s.sq.
		Select(
			"COALESCE(MIN(holding_hours), 0)",
			"COALESCE(MAX(holding_hours), 0)",
			"COALESCE(AVG(holding_hours), 0)",
		).
		From("trades").
		Where(squirrel.Eq{"asset": asset, "side": string(types.SideSell), "outcome": string(types.OutcomeExecuted)}).
		RunWith(s.db)

	var stats HoldingTimeStats
	if err := query.QueryRow().Scan(&stats.MinHours, &stats.MaxHours, &stats.AvgHours); err != nil {
		return HoldingTimeStats{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to compute holding time", err)
	}

	return stats, nil
}

// OutcomeCounts tallies the trade log by outcome, SQL-side.
func (s *Store) OutcomeCounts() (map[types.Outcome]int, error) {
	query := s.sq.
		Select("outcome", "COUNT(*)").
		From("trades").
		GroupBy("outcome").
		RunWith(s.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count outcomes", err)
	}
	defer rows.Close()

	counts := make(map[types.Outcome]int)

	for rows.Next() {
		var (
			outcome string
			count   int
		)

		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan outcome count", err)
		}

		counts[types.Outcome(outcome)] = count
	}

	return counts, rows.Err()
}

// Export writes trades.parquet, snapshots.parquet, and summary.yaml under dir.
func (s *Store) Export(dir string, result *engine.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create results directory", err)
	}

	// COPY is not expressible in squirrel; raw SQL here.
	tradesPath := filepath.Join(dir, "trades.parquet")
	if _, err := s.db.Exec(fmt.Sprintf(`COPY trades TO '%s' (FORMAT PARQUET)`, tradesPath)); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to export trades", err)
	}

	snapshotsPath := filepath.Join(dir, "snapshots.parquet")
	if _, err := s.db.Exec(fmt.Sprintf(`COPY snapshots TO '%s' (FORMAT PARQUET)`, snapshotsPath)); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to export snapshots", err)
	}

	summaryPath := filepath.Join(dir, "summary.yaml")
	if err := types.WriteRunSummary(summaryPath, result.Summary()); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write summary", err)
	}

	s.logger.Info("exported run results",
		zap.String("trades", tradesPath),
		zap.String("snapshots", snapshotsPath),
		zap.String("summary", summaryPath),
	)

	return nil
}

// Cleanup drops and recreates the tables, readying the store for another run.
func (s *Store) Cleanup() error {
	_, err := s.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS snapshots;
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to drop tables", err)
	}

	return s.initialize()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ExportBatch writes each completed grid item under dir/grid_<num>/ and a
// batch-level index yaml listing every item's status.
func (s *Store) ExportBatch(dir string, items []engine.BatchItem) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create batch directory", err)
	}

	index := make([]indexEntry, 0, len(items))

	for _, item := range items {
		entry := indexEntry{
			GridNum: item.GridNum,
			Name:    item.Config.Name,
			Status:  string(item.Status),
		}

		if item.Err != nil {
			entry.Error = item.Err.Error()
		}

		if item.Result != nil {
			entry.Return = item.Result.TotalReturn

			if err := s.Cleanup(); err != nil {
				return err
			}

			if err := s.Record(item.Result); err != nil {
				return err
			}

			runDir := filepath.Join(dir, fmt.Sprintf("grid_%d", item.GridNum))
			if err := s.Export(runDir, item.Result); err != nil {
				return err
			}
		}

		index = append(index, entry)
	}

	return writeBatchIndex(filepath.Join(dir, "index.yaml"), index)
}

// indexEntry is one row of a batch export's index.yaml.
type indexEntry struct {
	GridNum int     `yaml:"grid_num"`
	Name    string  `yaml:"name"`
	Status  string  `yaml:"status"`
	Return  float64 `yaml:"return"`
	Error   string  `yaml:"error,omitempty"`
}

func writeBatchIndex(path string, index []indexEntry) error {
	doc := struct {
		Exported time.Time    `yaml:"exported"`
		Items    []indexEntry `yaml:"items"`
	}{Exported: time.Now(), Items: index}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to marshal batch index", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write batch index", err)
	}

	return nil
}
