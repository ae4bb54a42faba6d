package alert

import (
	"fmt"
	"math"
	"strconv"

	"findash/internal/core"
)

// trailingWindow is the number of closes averaged for the atr_trailing baseline.
const trailingWindow = 5

// Evaluate checks every strategy of item against bars (oldest first) and
// returns the reason text of each one that triggered. The look-back windows
// count bars, not calendar days.
func Evaluate(item core.WatchItem, bars []core.PriceBar) []string {
	if len(bars) == 0 {
		return nil
	}
	item = item.WithDefaults()
	ratio := item.RatioValue()
	curr := bars[len(bars)-1].Close
	window := tail(bars, item.Days)

	var reasons []string
	for _, s := range item.Strategies {
		switch s {
		case core.MaxDrop:
			ref := maxHigh(window)
			target := ref * (1 + ratio/100)
			if curr <= target {
				reasons = append(reasons, fmt.Sprintf("📉 최고가 하락: 고점(%s) 대비 %s%% 지점(%s) 이하", whole(ref), pct(ratio), whole(target)))
			}
		case core.MinRise:
			ref := minLow(window)
			target := ref * (1 + ratio/100)
			if curr >= target {
				reasons = append(reasons, fmt.Sprintf("📈 저점 반등: 저점(%s) 대비 %s%% 지점(%s) 이상", whole(ref), pct(ratio), whole(target)))
			}
		case core.AvgGap:
			ref := meanClose(window)
			target := ref * (1 + ratio/100)
			if (ratio >= 0 && curr >= target) || (ratio < 0 && curr <= target) {
				reasons = append(reasons, fmt.Sprintf("⚖️ 평균가 이격: 평균(%s) 대비 %s%% 지점(%s) 도달", whole(ref), pct(ratio), whole(target)))
			}
		case core.ATRTrailing:
			atr := ATR(bars, ATRPeriod)[len(bars)-1]
			if math.IsNaN(atr) {
				continue
			}
			mult := item.ATRMultValue()
			target := meanClose(tail(bars, trailingWindow)) - atr*mult
			if curr <= target {
				reasons = append(reasons, fmt.Sprintf("🛡️ ATR 지지선 붕괴: 지지선(%s) 이하 도달 (ATR: %.2f, 배수: %s)", whole(target), atr, pct(mult)))
			}
		}
	}
	return reasons
}

func tail(bars []core.PriceBar, n int) []core.PriceBar {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

func maxHigh(bars []core.PriceBar) float64 {
	m := math.Inf(-1)
	for _, b := range bars {
		m = math.Max(m, b.High)
	}
	return m
}

func minLow(bars []core.PriceBar) float64 {
	m := math.Inf(1)
	for _, b := range bars {
		m = math.Min(m, b.Low)
	}
	return m
}

func meanClose(bars []core.PriceBar) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

func whole(v float64) string {
	return core.FormatAmount(int64(math.Round(v)))
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
