package strategy

import "github.com/quantakt/backtest/internal/types"

// Expr is a boolean combination over the per-strategy votes of one asset at
// one timestamp. Expressions are evaluated against a name-to-direction map so
// the same tree can be reused across timestamps without rebuilding.
type Expr interface {
	Eval(votes map[string]types.Direction) bool
}

// Ref is a leaf: true when the named strategy voted the wanted direction.
// A missing name evaluates to false rather than panicking so expression
// trees can be built before all strategies have voted.
type Ref struct {
	Strategy  string
	Direction types.Direction
}

func (r Ref) Eval(votes map[string]types.Direction) bool {
	d, ok := votes[r.Strategy]

	return ok && d == r.Direction
}

// And is true when every child is true. An empty And is true.
type And []Expr

func (a And) Eval(votes map[string]types.Direction) bool {
	for _, e := range a {
		if !e.Eval(votes) {
			return false
		}
	}

	return true
}

// Or is true when any child is true. An empty Or is false.
type Or []Expr

func (o Or) Eval(votes map[string]types.Direction) bool {
	for _, e := range o {
		if e.Eval(votes) {
			return true
		}
	}

	return false
}

// Not negates its child.
type Not struct {
	Expr Expr
}

func (n Not) Eval(votes map[string]types.Direction) bool {
	return !n.Expr.Eval(votes)
}
