package indicator

// EMA is an incrementally updated exponential moving average. The first
// `period` samples are accumulated into an SMA seed, after which the standard
// smoothing recurrence applies.
type EMA struct {
	period int
	alpha  float64
	value  float64
	seed   float64
	count  int
}

// NewEMA creates an EMA over the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / (float64(period) + 1.0),
	}
}

// Update feeds one close price.
func (e *EMA) Update(close float64) {
	e.count++

	if e.count <= e.period {
		e.seed += close
		e.value = e.seed / float64(e.count)

		return
	}

	e.value = e.alpha*close + (1-e.alpha)*e.value
}

// Value returns the current average. Only meaningful once Ready.
func (e *EMA) Value() float64 {
	return e.value
}

// Ready reports whether the seed window has been consumed.
func (e *EMA) Ready() bool {
	return e.count >= e.period
}

// TripleEMA tracks a fast/medium/slow EMA stack over the same series.
type TripleEMA struct {
	Fast   *EMA
	Medium *EMA
	Slow   *EMA
}

// NewTripleEMA creates the three-EMA stack.
func NewTripleEMA(fast, medium, slow int) *TripleEMA {
	return &TripleEMA{
		Fast:   NewEMA(fast),
		Medium: NewEMA(medium),
		Slow:   NewEMA(slow),
	}
}

// Update feeds one close price to all three averages.
func (t *TripleEMA) Update(close float64) {
	t.Fast.Update(close)
	t.Medium.Update(close)
	t.Slow.Update(close)
}

// Ready reports whether the slowest average has seeded.
func (t *TripleEMA) Ready() bool {
	return t.Slow.Ready()
}

// BullishCross reports fast above medium (short-term momentum up).
func (t *TripleEMA) BullishCross() bool {
	return t.Ready() && t.Fast.Value() > t.Medium.Value()
}

// BullishStack reports fast > medium > slow, the full uptrend alignment.
func (t *TripleEMA) BullishStack() bool {
	return t.Ready() && t.Fast.Value() > t.Medium.Value() && t.Medium.Value() > t.Slow.Value()
}

// BearishStack reports fast < medium < slow.
func (t *TripleEMA) BearishStack() bool {
	return t.Ready() && t.Fast.Value() < t.Medium.Value() && t.Medium.Value() < t.Slow.Value()
}
