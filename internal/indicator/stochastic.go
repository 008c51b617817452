package indicator

// Stochastic maintains rolling highs/lows and derives %K, with %D as a
// three-sample simple average of %K.
type Stochastic struct {
	period    int
	highs     []float64
	lows      []float64
	head      int
	filled    bool
	lastClose float64
	kHistory  [3]float64
	kCount    int
}

// NewStochastic creates a %K oscillator over the given lookback period.
func NewStochastic(period int) *Stochastic {
	return &Stochastic{
		period: period,
		highs:  make([]float64, period),
		lows:   make([]float64, period),
	}
}

// Update feeds one candle's high/low/close.
func (s *Stochastic) Update(high, low, close float64) {
	s.highs[s.head] = high
	s.lows[s.head] = low
	s.lastClose = close
	s.head++

	if s.head == s.period {
		s.head = 0
		s.filled = true
	}

	s.kHistory[s.kCount%3] = s.K()
	s.kCount++
}

// K returns the raw %K in [0, 100].
func (s *Stochastic) K() float64 {
	n := s.period
	if !s.filled {
		n = s.head
	}

	if n == 0 {
		return 50
	}

	hi, lo := s.highs[0], s.lows[0]
	for i := 1; i < n; i++ {
		if s.highs[i] > hi {
			hi = s.highs[i]
		}

		if s.lows[i] < lo {
			lo = s.lows[i]
		}
	}

	if hi == lo {
		return 50
	}

	return (s.lastClose - lo) / (hi - lo) * 100
}

// D returns the smoothed %D.
func (s *Stochastic) D() float64 {
	n := 3
	if s.kCount < 3 {
		n = s.kCount
	}

	if n == 0 {
		return 50
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += s.kHistory[i]
	}

	return sum / float64(n)
}

// Ready reports whether the lookback window has filled once.
func (s *Stochastic) Ready() bool {
	return s.filled
}
