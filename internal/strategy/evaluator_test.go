package strategy

import (
	"testing"
	"time"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy always votes the same direction, regardless of input.
type stubStrategy struct {
	name string
	vote types.Direction
}

func (s *stubStrategy) Name() string          { return s.name }
func (s *stubStrategy) Update(_ types.Candle) {}
func (s *stubStrategy) Vote() types.Vote      { return types.Vote{Direction: s.vote, Strength: 1} }

func candle(close float64) types.Candle {
	return types.Candle{Time: time.Now(), Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func TestEvaluatorDecisionRule(t *testing.T) {
	tests := []struct {
		name     string
		positive []types.Direction
		negative []types.Direction
		want     types.Direction
	}{
		{name: "single positive buy", positive: []types.Direction{types.DirectionBuy}, want: types.DirectionBuy},
		{name: "all hold", positive: []types.Direction{types.DirectionHold}, want: types.DirectionHold},
		{name: "any positive buy wins", positive: []types.Direction{types.DirectionHold, types.DirectionBuy}, want: types.DirectionBuy},
		{name: "positive sell", positive: []types.Direction{types.DirectionSell}, want: types.DirectionSell},
		{
			name:     "conflict within positive set cancels to hold",
			positive: []types.Direction{types.DirectionBuy, types.DirectionSell},
			want:     types.DirectionHold,
		},
		{
			name:     "negative sell vetoes buy",
			positive: []types.Direction{types.DirectionBuy},
			negative: []types.Direction{types.DirectionSell},
			want:     types.DirectionHold,
		},
		{
			name:     "negative hold does not veto",
			positive: []types.Direction{types.DirectionBuy},
			negative: []types.Direction{types.DirectionHold},
			want:     types.DirectionBuy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var positive, negative []Strategy

			for _, d := range tc.positive {
				positive = append(positive, &stubStrategy{name: "pos", vote: d})
			}

			for _, d := range tc.negative {
				negative = append(negative, &stubStrategy{name: "neg", vote: d})
			}

			ev := newEvaluator("BTC", 0, positive, negative)
			ev.Update(candle(100))

			assert.Equal(t, tc.want, ev.Evaluate().Direction)
		})
	}
}

func TestEvaluatorHoldsDuringWarmUp(t *testing.T) {
	ev := newEvaluator("BTC", 3, []Strategy{&stubStrategy{name: "pos", vote: types.DirectionBuy}}, nil)

	for i := 0; i < 3; i++ {
		ev.Update(candle(100))
		assert.Equal(t, types.DirectionHold, ev.Evaluate().Direction, "step %d is inside warm-up", i)
	}

	ev.Update(candle(100))
	assert.Equal(t, types.DirectionBuy, ev.Evaluate().Direction, "first step past warm-up")
}

func TestEvaluatorStrengthIsAgreementFraction(t *testing.T) {
	ev := newEvaluator("BTC", 0, []Strategy{
		&stubStrategy{name: "a", vote: types.DirectionBuy},
		&stubStrategy{name: "b", vote: types.DirectionHold},
	}, nil)

	ev.Update(candle(100))
	vote := ev.Evaluate()

	assert.Equal(t, types.DirectionBuy, vote.Direction)
	assert.InDelta(t, 0.5, vote.Strength, 1e-9)
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New(config.StrategyConfig{Type: "not_a_strategy"})
	require.Error(t, err)
}

func TestNewBuildsEveryKnownStrategy(t *testing.T) {
	for _, name := range config.KnownStrategyTypes {
		s, err := New(config.StrategyConfig{Type: name})
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}
}

func TestVariantsHoldBeforeIndicatorsReady(t *testing.T) {
	for _, name := range config.KnownStrategyTypes {
		s, err := New(config.StrategyConfig{Type: name})
		require.NoError(t, err, name)

		s.Update(candle(100))
		assert.Equal(t, types.DirectionHold, s.Vote().Direction, "%s should hold on one candle", name)
	}
}
