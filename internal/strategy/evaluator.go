package strategy

import (
	"fmt"

	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/types"
)

// Evaluator combines one asset's positive and negative strategy sets into a
// single per-candle vote. The positive set proposes trades; a sell from the
// negative set vetoes entries. The decision rule, expressed as trees over the
// named votes:
//
//	buy  = or(positive buys) and not(or(positive sells)) and not(or(negative sells))
//	sell = or(positive sells) and not(or(positive buys))
//
// Conflicting buy and sell votes inside the positive set cancel to Hold, and
// every vote is Hold until the configured warm-up has elapsed.
type Evaluator struct {
	asset    string
	positive []instance
	negative []instance
	warmUp   int
	seen     int

	buyExpr  Expr
	sellExpr Expr
}

type instance struct {
	key      string
	strategy Strategy
}

// NewEvaluator builds the asset's strategies and the decision expressions.
func NewEvaluator(asset config.AssetConfig, warmUp int) (*Evaluator, error) {
	positive := make([]Strategy, 0, len(asset.Positive))

	for _, sc := range asset.Positive {
		s, err := New(sc)
		if err != nil {
			return nil, err
		}

		positive = append(positive, s)
	}

	negative := make([]Strategy, 0, len(asset.Negative))

	for _, sc := range asset.Negative {
		s, err := New(sc)
		if err != nil {
			return nil, err
		}

		negative = append(negative, s)
	}

	return newEvaluator(asset.Symbol, warmUp, positive, negative), nil
}

func newEvaluator(asset string, warmUp int, positive, negative []Strategy) *Evaluator {
	e := &Evaluator{asset: asset, warmUp: warmUp}

	var posBuys, posSells, negSells Or

	for i, s := range positive {
		key := fmt.Sprintf("positive.%d.%s", i, s.Name())
		e.positive = append(e.positive, instance{key: key, strategy: s})
		posBuys = append(posBuys, Ref{Strategy: key, Direction: types.DirectionBuy})
		posSells = append(posSells, Ref{Strategy: key, Direction: types.DirectionSell})
	}

	for i, s := range negative {
		key := fmt.Sprintf("negative.%d.%s", i, s.Name())
		e.negative = append(e.negative, instance{key: key, strategy: s})
		negSells = append(negSells, Ref{Strategy: key, Direction: types.DirectionSell})
	}

	e.buyExpr = And{posBuys, Not{Expr: posSells}, Not{Expr: negSells}}
	e.sellExpr = And{posSells, Not{Expr: posBuys}}

	return e
}

// Asset returns the symbol this evaluator decides for.
func (e *Evaluator) Asset() string {
	return e.asset
}

// Update feeds one candle into every strategy, positive and negative alike.
func (e *Evaluator) Update(candle types.Candle) {
	for _, ins := range e.positive {
		ins.strategy.Update(candle)
	}

	for _, ins := range e.negative {
		ins.strategy.Update(candle)
	}

	e.seen++
}

// Evaluate returns the combined vote for the last updated candle. During
// warm-up it always returns Hold, regardless of what the strategies say.
func (e *Evaluator) Evaluate() types.Vote {
	if e.seen <= e.warmUp {
		return types.Hold()
	}

	votes := make(map[string]types.Direction, len(e.positive)+len(e.negative))
	for _, ins := range e.positive {
		votes[ins.key] = ins.strategy.Vote().Direction
	}

	for _, ins := range e.negative {
		votes[ins.key] = ins.strategy.Vote().Direction
	}

	switch {
	case e.buyExpr.Eval(votes):
		return types.Vote{Direction: types.DirectionBuy, Strength: e.agreement(votes, types.DirectionBuy)}
	case e.sellExpr.Eval(votes):
		return types.Vote{Direction: types.DirectionSell, Strength: e.agreement(votes, types.DirectionSell)}
	default:
		return types.Hold()
	}
}

// agreement is the fraction of positive strategies voting the decided
// direction, used as the vote strength.
func (e *Evaluator) agreement(votes map[string]types.Direction, dir types.Direction) float64 {
	if len(e.positive) == 0 {
		return 0
	}

	agree := 0

	for _, ins := range e.positive {
		if votes[ins.key] == dir {
			agree++
		}
	}

	return float64(agree) / float64(len(e.positive))
}
