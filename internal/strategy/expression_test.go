package strategy

import (
	"testing"

	"github.com/quantakt/backtest/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestExpressionTruthTable(t *testing.T) {
	votes := map[string]types.Direction{
		"a": types.DirectionBuy,
		"b": types.DirectionSell,
		"c": types.DirectionHold,
	}

	buyA := Ref{Strategy: "a", Direction: types.DirectionBuy}
	sellB := Ref{Strategy: "b", Direction: types.DirectionSell}
	buyC := Ref{Strategy: "c", Direction: types.DirectionBuy}

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{name: "ref match", expr: buyA, want: true},
		{name: "ref wrong direction", expr: buyC, want: false},
		{name: "ref missing strategy", expr: Ref{Strategy: "missing", Direction: types.DirectionBuy}, want: false},
		{name: "and all true", expr: And{buyA, sellB}, want: true},
		{name: "and one false", expr: And{buyA, buyC}, want: false},
		{name: "empty and", expr: And{}, want: true},
		{name: "or one true", expr: Or{buyC, sellB}, want: true},
		{name: "or none true", expr: Or{buyC}, want: false},
		{name: "empty or", expr: Or{}, want: false},
		{name: "not", expr: Not{Expr: buyC}, want: true},
		{name: "nested", expr: And{Or{buyA, buyC}, Not{Expr: Ref{Strategy: "c", Direction: types.DirectionSell}}}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.expr.Eval(votes))
		})
	}
}
