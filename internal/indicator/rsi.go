package indicator

// RSI is an incrementally updated Relative Strength Index using Wilder's
// smoothing. The first `period` changes seed the averages.
type RSI struct {
	period    int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int
}

// NewRSI creates an RSI over the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds one close price.
func (r *RSI) Update(close float64) {
	if r.count == 0 {
		r.prevClose = close
		r.count++

		return
	}

	change := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count <= r.period {
		// Seed phase: plain average of the first `period` changes.
		n := float64(r.count)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	} else {
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	r.count++
}

// Value returns the current RSI in [0, 100].
func (r *RSI) Value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}

		return 100
	}

	rs := r.avgGain / r.avgLoss

	return 100 - (100 / (1 + rs))
}

// Ready reports whether the seed window has been consumed.
func (r *RSI) Ready() bool {
	return r.count > r.period
}
