package types

// Direction is a strategy's directional vote for one asset at one timestamp.
type Direction int8

const (
	DirectionSell Direction = -1
	DirectionHold Direction = 0
	DirectionBuy  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "hold"
	}
}

// Vote is one strategy's opinion. Votes are ephemeral: recomputed every
// timestamp and never persisted beyond the current step.
type Vote struct {
	Direction Direction
	Strength  float64
}

// Hold is the neutral vote, emitted during warm-up and on no signal.
func Hold() Vote {
	return Vote{Direction: DirectionHold, Strength: 0}
}
