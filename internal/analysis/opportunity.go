package analysis

import (
	"time"

	"coinsentry/internal/domain"
)

const (
	opportunityBase = 5.0
	maxReasons      = 5
)

// ScoreOpportunity rates how attractive buying looks right now on a
// 0..10 scale. It starts from a neutral base and moves with the
// prediction, momentum indicators, market sentiment, and where the
// price sits inside its recent weekly range.
func ScoreOpportunity(md *domain.MarketData, pred domain.Prediction, weekly domain.Extremes) domain.OpportunityScore {
	score := opportunityBase
	var reasons []string

	switch pred.Type {
	case domain.PredictionBullish:
		if pred.Confidence >= 75 {
			score += 2
			reasons = append(reasons, reasonf("strong bullish prediction (%d%% confidence)", pred.Confidence))
		} else {
			score++
			reasons = append(reasons, "bullish prediction")
		}
	case domain.PredictionSlightlyBullish:
		score += 0.5
		reasons = append(reasons, "slightly bullish prediction")
	case domain.PredictionBearish:
		score -= 2
		reasons = append(reasons, "bearish prediction")
	case domain.PredictionSlightlyBearish:
		score--
		reasons = append(reasons, "slightly bearish prediction")
	}

	rsi := md.Indicators.RSI
	switch {
	case rsi < 30:
		score += 2
		reasons = append(reasons, reasonf("RSI oversold (%.0f)", rsi))
	case rsi < 40:
		score++
		reasons = append(reasons, reasonf("RSI low (%.0f)", rsi))
	case rsi > 70:
		score -= 1.5
		reasons = append(reasons, reasonf("RSI overbought (%.0f)", rsi))
	}

	if fgi := md.FearGreed; fgi > 0 {
		switch {
		case fgi <= 25:
			score += 2
			reasons = append(reasons, reasonf("extreme fear in the market (%d)", fgi))
		case fgi <= 40:
			score++
			reasons = append(reasons, reasonf("fear in the market (%d)", fgi))
		case fgi >= 75:
			score -= 1.5
			reasons = append(reasons, reasonf("extreme greed in the market (%d)", fgi))
		}
	}

	change := md.CurrentPrice.Change24h
	switch {
	case change < -10:
		score += 1.5
		reasons = append(reasons, reasonf("big 24h dip (%.1f%%)", change))
	case change < -5:
		score += 0.5
		reasons = append(reasons, reasonf("24h dip (%.1f%%)", change))
	case change > 15:
		score--
		reasons = append(reasons, reasonf("sharp 24h run-up (+%.1f%%)", change))
	}

	price := md.CurrentPrice.PriceEUR
	if weekly.Min > 0 && price <= weekly.Min*1.10 {
		score += 1.5
		reasons = append(reasons, "close to the 7-day low")
	} else if weekly.Max > 0 && price >= weekly.Max*0.90 {
		score--
		reasons = append(reasons, "close to the 7-day high")
	}

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}

	return domain.OpportunityScore{
		Symbol:         md.Symbol,
		Score:          score,
		Reasons:        reasons,
		Recommendation: recommend(score),
		Timestamp:      time.Now().UTC(),
	}
}

func recommend(score float64) string {
	switch {
	case score >= 8:
		return "excellent buy opportunity"
	case score >= 7:
		return "very good opportunity"
	case score >= 6:
		return "decent opportunity"
	case score >= 4:
		return "neutral, better to wait"
	default:
		return "not a good moment to buy"
	}
}
