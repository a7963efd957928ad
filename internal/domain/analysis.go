package domain

import "time"

type PredictionType string

const (
	PredictionBullish         PredictionType = "bullish"
	PredictionSlightlyBullish PredictionType = "slightly_bullish"
	PredictionNeutral         PredictionType = "neutral"
	PredictionSlightlyBearish PredictionType = "slightly_bearish"
	PredictionBearish         PredictionType = "bearish"
)

// Bullish reports whether the prediction leans up.
func (p PredictionType) Bullish() bool {
	return p == PredictionBullish || p == PredictionSlightlyBullish
}

// Bearish reports whether the prediction leans down.
func (p PredictionType) Bearish() bool {
	return p == PredictionBearish || p == PredictionSlightlyBearish
}

// Prediction is a heuristic direction call for one symbol: a trend score
// accumulated from indicator signals, mapped to a type and a confidence
// percentage.
type Prediction struct {
	Symbol     string         `json:"symbol"`
	Type       PredictionType `json:"type"`
	TrendScore int            `json:"trend_score"`
	Confidence int            `json:"confidence"` // 0..100
	Signals    []string       `json:"signals"`
	TargetHigh float64        `json:"target_high"`
	TargetLow  float64        `json:"target_low"`
	Timestamp  time.Time      `json:"timestamp"`
}

// OpportunityScore grades how attractive buying a symbol is right now on
// a 0..10 scale, with the reasons that moved the score.
type OpportunityScore struct {
	Symbol         string    `json:"symbol"`
	Score          float64   `json:"score"` // 0..10
	Reasons        []string  `json:"reasons"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}
