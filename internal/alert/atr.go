// Package alert evaluates price watch strategies and runs the polling monitor.
package alert

import (
	"math"

	"findash/internal/core"
)

// ATRPeriod is the window of the average true range used by atr_trailing.
const ATRPeriod = 14

// TrueRange returns the true range of each bar. The first bar has no previous
// close, so its range is High-Low.
func TrueRange(bars []core.PriceBar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		r := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			r = math.Max(r, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		tr[i] = r
	}
	return tr
}

// ATR returns the simple rolling mean of the last period true ranges at each
// bar. Bars with fewer than period ranges before them are NaN.
func ATR(bars []core.PriceBar, period int) []float64 {
	out := make([]float64, len(bars))
	if period < 1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	tr := TrueRange(bars)
	sum := 0.0
	for i := range tr {
		sum += tr[i]
		if i >= period {
			sum -= tr[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}
