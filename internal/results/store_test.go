package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quantakt/backtest/internal/engine"
	"github.com/quantakt/backtest/internal/logger"
	"github.com/quantakt/backtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite

	store *Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	store, err := NewStore(logger.NewNopLogger())
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) sampleResult() *engine.Result {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	trades := []types.Trade{
		{
			ID: uuid.NewString(), Asset: "BTC", Side: types.SideBuy, Kind: types.KindSignal,
			Outcome: types.OutcomeExecuted, Quantity: 10, Price: 100, Cost: 1, Timestamp: base,
		},
		{
			ID: uuid.NewString(), Asset: "BTC", Side: types.SideSell, Kind: types.KindTakeProfit,
			Outcome: types.OutcomeExecuted, Quantity: 10, Price: 120, Cost: 1, Timestamp: base.Add(10 * time.Hour),
			RealizedPnL: 198, AvgEntryPrice: 100, HoldingPeriod: 10 * time.Hour,
		},
		{
			ID: uuid.NewString(), Asset: "BTC", Side: types.SideSell, Kind: types.KindStopLoss,
			Outcome: types.OutcomeExecuted, Quantity: 5, Price: 95, Cost: 1, Timestamp: base.Add(30 * time.Hour),
			RealizedPnL: -26, AvgEntryPrice: 100, HoldingPeriod: 30 * time.Hour,
		},
		{
			ID: uuid.NewString(), Asset: "BTC", Side: types.SideBuy, Kind: types.KindSignal,
			Outcome: types.OutcomeRejectedCoolDownAfterLoss, Quantity: 5, Price: 94, Timestamp: base.Add(31 * time.Hour),
		},
	}

	snapshots := []types.Snapshot{
		{Time: base, Equity: 10_000, Cash: 9_000, Notional: 1_000},
		{Time: base.Add(time.Hour), Equity: 10_100, Cash: 9_000, Notional: 1_100},
	}

	return &engine.Result{
		ID:           uuid.NewString(),
		Name:         "sample",
		Ran:          base,
		Assets:       []string{"BTC"},
		InitialValue: 10_000,
		FinalValue:   10_100,
		TotalReturn:  0.01,
		Snapshots:    snapshots,
		Trades:       trades,
		Outcomes: map[types.Outcome]int{
			types.OutcomeExecuted:                  3,
			types.OutcomeRejectedCoolDownAfterLoss: 1,
		},
	}
}

func (s *StoreTestSuite) TestOutcomeCounts() {
	s.Require().NoError(s.store.Record(s.sampleResult()))

	counts, err := s.store.OutcomeCounts()
	s.Require().NoError(err)

	s.Equal(3, counts[types.OutcomeExecuted])
	s.Equal(1, counts[types.OutcomeRejectedCoolDownAfterLoss])
}

func (s *StoreTestSuite) TestHoldingTime() {
	s.Require().NoError(s.store.Record(s.sampleResult()))

	stats, err := s.store.HoldingTime("BTC")
	s.Require().NoError(err)

	s.InDelta(10, stats.MinHours, 1e-9)
	s.InDelta(30, stats.MaxHours, 1e-9)
	s.InDelta(20, stats.AvgHours, 1e-9)
}

func (s *StoreTestSuite) TestHoldingTimeEmptyAsset() {
	stats, err := s.store.HoldingTime("ETH")
	s.Require().NoError(err)

	s.Zero(stats.MinHours)
	s.Zero(stats.AvgHours)
}

func (s *StoreTestSuite) TestExportWritesAllArtifacts() {
	result := s.sampleResult()
	s.Require().NoError(s.store.Record(result))

	dir := s.T().TempDir()
	s.Require().NoError(s.store.Export(dir, result))

	for _, name := range []string{"trades.parquet", "snapshots.parquet", "summary.yaml"} {
		info, err := os.Stat(filepath.Join(dir, name))
		s.Require().NoError(err, name)
		s.Positive(info.Size(), name)
	}
}

func (s *StoreTestSuite) TestCleanupEmptiesTables() {
	s.Require().NoError(s.store.Record(s.sampleResult()))
	s.Require().NoError(s.store.Cleanup())

	counts, err := s.store.OutcomeCounts()
	s.Require().NoError(err)
	s.Empty(counts)
}

func (s *StoreTestSuite) TestExportBatch() {
	completed := s.sampleResult()

	items := []engine.BatchItem{
		{GridNum: 0, Status: engine.StatusCompleted, Result: completed},
		{GridNum: 1, Status: engine.StatusFailed, Err: assert.AnError},
	}

	dir := s.T().TempDir()
	s.Require().NoError(s.store.ExportBatch(dir, items))

	_, err := os.Stat(filepath.Join(dir, "grid_0", "summary.yaml"))
	s.Require().NoError(err)

	_, err = os.Stat(filepath.Join(dir, "grid_1"))
	s.True(os.IsNotExist(err), "failed items export nothing")

	data, err := os.ReadFile(filepath.Join(dir, "index.yaml"))
	s.Require().NoError(err)
	s.Contains(string(data), "grid_num: 0")
	s.Contains(string(data), "status: failed")
}

func TestRecordAfterCloseFails(t *testing.T) {
	store, err := NewStore(logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Record(&engine.Result{})
	require.Error(t, err)
}
