package indicator

// Pattern tracks rolling support/resistance off a window of highs and lows.
// Resistance is the window high, support the window low; breakout and bounce
// tests apply a threshold band around each level to filter noise.
type Pattern struct {
	window              int
	resistanceThreshold float64
	supportThreshold    float64
	highs               []float64
	lows                []float64
	head                int
	filled              bool
}

// NewPattern creates a support/resistance tracker over the given window.
func NewPattern(window int, resistanceThreshold, supportThreshold float64) *Pattern {
	return &Pattern{
		window:              window,
		resistanceThreshold: resistanceThreshold,
		supportThreshold:    supportThreshold,
		highs:               make([]float64, window),
		lows:                make([]float64, window),
	}
}

// Update feeds one candle's high/low.
func (p *Pattern) Update(high, low float64) {
	p.highs[p.head] = high
	p.lows[p.head] = low
	p.head++

	if p.head == p.window {
		p.head = 0
		p.filled = true
	}
}

// Resistance returns the window high.
func (p *Pattern) Resistance() float64 {
	n := p.size()
	if n == 0 {
		return 0
	}

	hi := p.highs[0]
	for i := 1; i < n; i++ {
		if p.highs[i] > hi {
			hi = p.highs[i]
		}
	}

	return hi
}

// Support returns the window low.
func (p *Pattern) Support() float64 {
	n := p.size()
	if n == 0 {
		return 0
	}

	lo := p.lows[0]
	for i := 1; i < n; i++ {
		if p.lows[i] < lo {
			lo = p.lows[i]
		}
	}

	return lo
}

// ResistanceBreakout reports price clearing resistance by the threshold.
func (p *Pattern) ResistanceBreakout(price float64) bool {
	if !p.Ready() {
		return false
	}

	return price > p.Resistance()*(1+p.resistanceThreshold)
}

// SupportBounce reports price holding within the threshold band above support.
func (p *Pattern) SupportBounce(price float64) bool {
	if !p.Ready() {
		return false
	}

	support := p.Support()

	return price >= support && price <= support*(1+p.supportThreshold)
}

// Uptrend reports the window's recent lows rising: the newest low sits above
// the window low by more than the support threshold.
func (p *Pattern) Uptrend(price float64) bool {
	if !p.Ready() {
		return false
	}

	return price > p.Support()*(1+p.supportThreshold) && price > p.Resistance()*(1-p.resistanceThreshold)
}

// Ready reports whether the window has filled once.
func (p *Pattern) Ready() bool {
	return p.filled
}

func (p *Pattern) size() int {
	if p.filled {
		return p.window
	}

	return p.head
}
