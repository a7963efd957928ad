// Package analysis turns a market snapshot into a heuristic direction
// call and a 0..10 buy-opportunity score.
package analysis

import (
	"fmt"
	"math"
	"time"

	"coinsentry/internal/domain"
)

// Predict accumulates a trend score from indicator signals and maps it
// to a prediction type with a confidence percentage.
func Predict(md *domain.MarketData) domain.Prediction {
	ind := md.Indicators
	price := md.CurrentPrice.PriceEUR

	score := 0
	var signals []string

	switch {
	case ind.RSI < 30:
		score += 2
		signals = append(signals, "RSI oversold, rebound likely")
	case ind.RSI < 40:
		score++
		signals = append(signals, "RSI low")
	case ind.RSI > 70:
		score -= 2
		signals = append(signals, "RSI overbought, pullback possible")
	case ind.RSI > 60:
		score--
		signals = append(signals, "RSI elevated")
	}

	if ind.MACDHistogram > 0 {
		score++
		signals = append(signals, "MACD histogram positive")
	} else {
		score--
		signals = append(signals, "MACD histogram negative")
	}

	if ind.MA20 > 0 {
		if price > ind.MA20 {
			score++
			signals = append(signals, "price above MA20")
		} else {
			score--
			signals = append(signals, "price below MA20")
		}
	}

	if ind.BollingerLower > 0 && price < ind.BollingerLower {
		score++
		signals = append(signals, "price under lower Bollinger band")
	} else if ind.BollingerUpper > 0 && price > ind.BollingerUpper {
		score--
		signals = append(signals, "price over upper Bollinger band")
	}

	if ind.Support > 0 && price > 0 {
		if math.Abs(price-ind.Support)/price*100 < 2 {
			score++
			signals = append(signals, "near support")
		}
	}
	if ind.Resistance > 0 && price > 0 {
		if math.Abs(ind.Resistance-price)/price*100 < 2 {
			score--
			signals = append(signals, "near resistance")
		}
	}

	pred := domain.Prediction{
		Symbol:     md.Symbol,
		TrendScore: score,
		Signals:    signals,
		Timestamp:  time.Now().UTC(),
	}

	switch {
	case score >= 3:
		pred.Type = domain.PredictionBullish
		pred.Confidence = minInt(85, 60+score*5)
		pred.TargetHigh = orDefault(ind.Resistance, price*1.05)
		pred.TargetLow = price * 0.97
	case score >= 1:
		pred.Type = domain.PredictionSlightlyBullish
		pred.Confidence = 55 + score*5
		pred.TargetHigh = price * 1.03
		pred.TargetLow = price * 0.98
	case score <= -3:
		pred.Type = domain.PredictionBearish
		pred.Confidence = minInt(85, 60-score*5)
		pred.TargetLow = orDefault(ind.Support, price*0.95)
		pred.TargetHigh = price * 1.03
	case score <= -1:
		pred.Type = domain.PredictionSlightlyBearish
		pred.Confidence = 55 - score*5
		pred.TargetLow = price * 0.97
		pred.TargetHigh = price * 1.02
	default:
		pred.Type = domain.PredictionNeutral
		pred.Confidence = 50
		pred.TargetHigh = orDefault(ind.Resistance, price*1.05)
		pred.TargetLow = orDefault(ind.Support, price*0.95)
	}

	return pred
}

// Describe renders a prediction type for humans.
func Describe(t domain.PredictionType) string {
	switch t {
	case domain.PredictionBullish:
		return "bullish"
	case domain.PredictionSlightlyBullish:
		return "slightly bullish"
	case domain.PredictionBearish:
		return "bearish"
	case domain.PredictionSlightlyBearish:
		return "slightly bearish"
	default:
		return "neutral"
	}
}

// Arrow returns a compact direction marker for reports.
func Arrow(t domain.PredictionType) string {
	switch t {
	case domain.PredictionBullish:
		return "↑↑"
	case domain.PredictionSlightlyBullish:
		return "↑"
	case domain.PredictionBearish:
		return "↓↓"
	case domain.PredictionSlightlyBearish:
		return "↓"
	default:
		return "→"
	}
}

func orDefault(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func reasonf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
