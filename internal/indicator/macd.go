package indicator

// MACD is an incrementally updated Moving Average Convergence Divergence:
// macd line = fast EMA - slow EMA, signal line = EMA of the macd line.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given fast/slow/signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

// Update feeds one close price.
func (m *MACD) Update(close float64) {
	m.fast.Update(close)
	m.slow.Update(close)

	if m.slow.Ready() {
		m.signal.Update(m.fast.Value() - m.slow.Value())
	}
}

// Line returns the current macd line value.
func (m *MACD) Line() float64 {
	return m.fast.Value() - m.slow.Value()
}

// Signal returns the current signal line value.
func (m *MACD) Signal() float64 {
	return m.signal.Value()
}

// Histogram returns macd line minus signal line.
func (m *MACD) Histogram() float64 {
	return m.Line() - m.Signal()
}

// Bullish reports the macd line above its signal line.
func (m *MACD) Bullish() bool {
	return m.Ready() && m.Line() > m.Signal()
}

// Bearish reports the macd line below its signal line.
func (m *MACD) Bearish() bool {
	return m.Ready() && m.Line() < m.Signal()
}

// Ready reports whether both the slow EMA and the signal EMA have seeded.
func (m *MACD) Ready() bool {
	return m.slow.Ready() && m.signal.Ready()
}
