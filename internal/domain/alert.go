package domain

import "time"

type AlertType string

const (
	AlertPriceDrop       AlertType = "price_drop"
	AlertPriceSpike      AlertType = "price_spike"
	AlertLevelCrossed    AlertType = "level_crossed"
	AlertFundingNegative AlertType = "funding_negative"
	AlertFearGreed       AlertType = "fear_greed"
	AlertPrediction      AlertType = "prediction"
)

type AlertLevel int

const (
	LevelInfo AlertLevel = iota
	LevelWarning
	LevelImportant
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelImportant:
		return "important"
	case LevelCritical:
		return "critical"
	default:
		return "info"
	}
}

type Alert struct {
	Symbol    string            `json:"symbol"`
	Type      AlertType         `json:"type"`
	Level     AlertLevel        `json:"level"`
	Message   string            `json:"message"`
	Price     float64           `json:"price,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PriceLevel is a configured watch level (support or ceiling) for one
// symbol. Buffer widens the trigger zone; Cooldown suppresses repeat
// triggers of the same level.
type PriceLevel struct {
	Symbol        string
	Level         float64
	Kind          LevelKind
	Buffer        float64
	Cooldown      time.Duration
	LastTriggered time.Time
	TriggerCount  int
}

type LevelKind string

const (
	LevelLow  LevelKind = "low"
	LevelHigh LevelKind = "high"
)

// CanTrigger reports whether the level's cooldown has elapsed.
func (p *PriceLevel) CanTrigger(now time.Time) bool {
	if p.LastTriggered.IsZero() {
		return true
	}
	return now.Sub(p.LastTriggered) >= p.Cooldown
}

// RecordTrigger marks the level as fired at now.
func (p *PriceLevel) RecordTrigger(now time.Time) {
	p.LastTriggered = now
	p.TriggerCount++
}
