package indicator

import "math"

// BollingerBands maintains a rolling window of closes and derives the middle
// band (SMA) plus upper/lower bands at stdDev standard deviations.
type BollingerBands struct {
	period int
	stdDev float64
	window []float64
	head   int
	filled bool
}

// NewBollingerBands creates bands over the given period and width.
func NewBollingerBands(period int, stdDev float64) *BollingerBands {
	return &BollingerBands{
		period: period,
		stdDev: stdDev,
		window: make([]float64, period),
	}
}

// Update feeds one close price.
func (b *BollingerBands) Update(close float64) {
	b.window[b.head] = close
	b.head++

	if b.head == b.period {
		b.head = 0
		b.filled = true
	}
}

// Bands returns (upper, middle, lower).
func (b *BollingerBands) Bands() (float64, float64, float64) {
	n := b.period
	if !b.filled {
		n = b.head
	}

	if n == 0 {
		return 0, 0, 0
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += b.window[i]
	}

	mean := sum / float64(n)

	variance := 0.0
	for i := 0; i < n; i++ {
		d := b.window[i] - mean
		variance += d * d
	}

	sigma := math.Sqrt(variance / float64(n))

	return mean + b.stdDev*sigma, mean, mean - b.stdDev*sigma
}

// BelowLower reports price under the lower band (oversold extension).
func (b *BollingerBands) BelowLower(price float64) bool {
	if !b.Ready() {
		return false
	}

	_, _, lower := b.Bands()

	return price < lower
}

// AboveUpper reports price over the upper band (overbought extension).
func (b *BollingerBands) AboveUpper(price float64) bool {
	if !b.Ready() {
		return false
	}

	upper, _, _ := b.Bands()

	return price > upper
}

// Ready reports whether the window has filled once.
func (b *BollingerBands) Ready() bool {
	return b.filled
}
