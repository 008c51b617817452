// Package marketdata loads and holds the candle series a run steps over.
// A Dataset is immutable after Load, so a batch of runs can share one copy
// without locks.
package marketdata

import (
	"math"
	"time"

	"github.com/quantakt/backtest/internal/types"
	"github.com/quantakt/backtest/pkg/errors"
)

// Dataset is a columnar, time-aligned view of every asset's candles. Column i
// of Series belongs to asset i of Assets; every column has exactly one candle
// per entry of Timestamps. Aligned-and-gap-free is established once, by
// Validate, and never rechecked in the hot loop.
type Dataset struct {
	Assets     []string
	Timestamps []time.Time
	Series     [][]types.Candle
}

// NumSteps returns the number of timestamps.
func (d *Dataset) NumSteps() int {
	return len(d.Timestamps)
}

// CandleAt returns asset assetIdx's candle at step.
func (d *Dataset) CandleAt(assetIdx, step int) types.Candle {
	return d.Series[assetIdx][step]
}

// ClosesAt fills buf with every asset's close at step and returns it.
// buf must have len(Assets) capacity; reusing it keeps the loop allocation
// free.
func (d *Dataset) ClosesAt(step int, buf []float64) []float64 {
	for i := range d.Series {
		buf[i] = d.Series[i][step].Close
	}

	return buf
}

// VolumesAt fills buf with every asset's volume at step and returns it.
func (d *Dataset) VolumesAt(step int, buf []float64) []float64 {
	for i := range d.Series {
		buf[i] = d.Series[i][step].Volume
	}

	return buf
}

// Validate checks alignment, ordering, and price sanity. A gap is fatal and
// names the asset and timestamp: silently skipping an asset would corrupt
// every composition invariant downstream.
func (d *Dataset) Validate() error {
	if len(d.Assets) != len(d.Series) {
		return errors.Newf(errors.ErrCodeMisalignedSeries,
			"%d assets but %d series", len(d.Assets), len(d.Series))
	}

	if len(d.Timestamps) == 0 {
		return errors.New(errors.ErrCodeDataNotFound, "dataset has no timestamps")
	}

	for i := 1; i < len(d.Timestamps); i++ {
		if !d.Timestamps[i].After(d.Timestamps[i-1]) {
			return errors.Newf(errors.ErrCodeMisalignedSeries,
				"timestamps not strictly increasing at %s", d.Timestamps[i])
		}
	}

	for idx, series := range d.Series {
		if len(series) != len(d.Timestamps) {
			return errors.Newf(errors.ErrCodeMissingCandle,
				"asset %q has %d candles, expected %d", d.Assets[idx], len(series), len(d.Timestamps))
		}

		for step, candle := range series {
			if !candle.Time.Equal(d.Timestamps[step]) {
				return errors.Newf(errors.ErrCodeMissingCandle,
					"asset %q missing candle at %s", d.Assets[idx], d.Timestamps[step])
			}

			for _, price := range [...]float64{candle.Open, candle.High, candle.Low, candle.Close} {
				if math.IsNaN(price) || math.IsInf(price, 0) {
					return errors.Newf(errors.ErrCodeInvalidPrice,
						"asset %q has non-finite price at %s", d.Assets[idx], candle.Time)
				}

				if price <= 0 {
					return errors.Newf(errors.ErrCodeInvalidPrice,
						"asset %q has non-positive price at %s", d.Assets[idx], candle.Time)
				}
			}

			if math.IsNaN(candle.Volume) || math.IsInf(candle.Volume, 0) || candle.Volume < 0 {
				return errors.Newf(errors.ErrCodeInvalidPrice,
					"asset %q has invalid volume at %s", d.Assets[idx], candle.Time)
			}
		}
	}

	return nil
}

// CoverageCheck verifies the dataset spans [start - warmUp*cadence, end] so
// the warm-up consumes real candles rather than shortening the active window.
func (d *Dataset) CoverageCheck(start, end time.Time, cadence time.Duration, warmUp int) error {
	required := start.Add(-time.Duration(warmUp) * cadence)

	if d.Timestamps[0].After(required) {
		return errors.Newf(errors.ErrCodeInsufficientWarmUp,
			"dataset starts at %s, need %s to cover warm-up", d.Timestamps[0], required)
	}

	if d.Timestamps[len(d.Timestamps)-1].Before(end) {
		return errors.Newf(errors.ErrCodeDataNotFound,
			"dataset ends at %s, need %s", d.Timestamps[len(d.Timestamps)-1], end)
	}

	return nil
}
