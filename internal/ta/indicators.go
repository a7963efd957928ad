// Package ta computes the technical indicator snapshot used by the
// analysis pipeline. The heavy lifting is delegated to go-talib; support
// and resistance come from quantiles of recent lows/highs.
package ta

import (
	"sort"

	"coinsentry/internal/domain"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const (
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	bollingerPeriod = 20
	bollingerStdDev = 2.0
	pivotWindow     = 50
)

// Compute builds a TechnicalIndicators snapshot from price history. At
// least rsiPeriod+1 points are required; with less data an RSI of 50
// (neutral) and zeroed indicators are returned.
func Compute(history []domain.HistoryPoint) domain.TechnicalIndicators {
	if len(history) <= rsiPeriod {
		return domain.TechnicalIndicators{RSI: 50, VolumeTrend: "neutral"}
	}

	closes := make([]float64, len(history))
	highs := make([]float64, len(history))
	lows := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, p := range history {
		closes[i] = p.Price
		highs[i] = p.High
		lows[i] = p.Low
		volumes[i] = p.Volume
	}

	ind := domain.TechnicalIndicators{
		RSI:         last(talib.Rsi(closes, rsiPeriod)),
		MA20:        tailMean(closes, 20),
		MA50:        tailMean(closes, 50),
		Support:     Support(lows),
		Resistance:  Resistance(highs),
		VolumeTrend: volumeTrend(volumes),
	}

	if len(closes) >= macdSlow+macdSignal {
		macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		ind.MACD = last(macd)
		ind.MACDSignal = last(signal)
		ind.MACDHistogram = last(hist)
	}

	if len(closes) >= bollingerPeriod {
		upper, _, lower := talib.BBands(closes, bollingerPeriod, bollingerStdDev, bollingerStdDev, talib.SMA)
		ind.BollingerUpper = last(upper)
		ind.BollingerLower = last(lower)
	}

	return ind
}

// Support estimates a support level as the 10th percentile of the most
// recent lows.
func Support(lows []float64) float64 {
	return quantileOfTail(lows, 0.10)
}

// Resistance estimates a resistance level as the 90th percentile of the
// most recent highs.
func Resistance(highs []float64) float64 {
	return quantileOfTail(highs, 0.90)
}

func quantileOfTail(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	window := values
	if len(window) > pivotWindow {
		window = window[len(window)-pivotWindow:]
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

// volumeTrend compares the mean volume of the newest quarter of the
// series against the rest.
func volumeTrend(volumes []float64) string {
	if len(volumes) < 8 {
		return "neutral"
	}
	split := len(volumes) - len(volumes)/4
	older := stat.Mean(volumes[:split], nil)
	recent := stat.Mean(volumes[split:], nil)
	if older == 0 {
		return "neutral"
	}
	switch ratio := recent / older; {
	case ratio > 1.25:
		return "rising"
	case ratio < 0.8:
		return "falling"
	default:
		return "neutral"
	}
}

func tailMean(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) > n {
		values = values[len(values)-n:]
	}
	return stat.Mean(values, nil)
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
