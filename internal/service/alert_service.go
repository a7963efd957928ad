package service

import (
	"fmt"
	"sync"
	"time"

	"coinsentry/internal/config"
	"coinsentry/internal/domain"
)

// AlertService applies the configured alert rules to market snapshots.
// It keeps the per-level and per-type cooldown state in memory; a
// condition that stays true across cycles fires once per cooldown.
type AlertService struct {
	cfg    config.AlertConfig
	levels []*domain.PriceLevel

	mu           sync.Mutex
	lastNotified map[string]time.Time
	callbacks    []func(domain.Alert)

	nowFunc func() time.Time
}

func NewAlertService(cfg config.AlertConfig, levels map[string]config.PriceLevelConfig) *AlertService {
	s := &AlertService{
		cfg:          cfg,
		lastNotified: make(map[string]time.Time),
		nowFunc:      time.Now,
	}
	for symbol, lv := range levels {
		if lv.Low > 0 {
			s.levels = append(s.levels, &domain.PriceLevel{
				Symbol:   symbol,
				Level:    lv.Low,
				Kind:     domain.LevelLow,
				Buffer:   cfg.LevelBufferEUR,
				Cooldown: cfg.LevelCooldown,
			})
		}
		if lv.High > 0 {
			s.levels = append(s.levels, &domain.PriceLevel{
				Symbol:   symbol,
				Level:    lv.High,
				Kind:     domain.LevelHigh,
				Buffer:   cfg.LevelBufferEUR,
				Cooldown: cfg.LevelCooldown,
			})
		}
	}
	return s
}

// OnAlert registers a callback invoked for every emitted alert.
func (s *AlertService) OnAlert(fn func(domain.Alert)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Evaluate runs all rules against a snapshot and returns the alerts
// that fired, after cooldown filtering.
func (s *AlertService) Evaluate(md *domain.MarketData, pred domain.Prediction) []domain.Alert {
	if !s.cfg.Enabled {
		return nil
	}
	now := s.nowFunc()

	var candidates []domain.Alert
	candidates = append(candidates, s.checkPriceMove(md, now)...)
	candidates = append(candidates, s.checkLevels(md, now)...)
	candidates = append(candidates, s.checkFunding(md, now)...)
	candidates = append(candidates, s.checkFearGreed(md, now)...)
	candidates = append(candidates, s.checkPrediction(md, pred, now)...)

	var fired []domain.Alert
	for _, a := range candidates {
		if !s.passCooldown(a, now) {
			continue
		}
		fired = append(fired, a)
	}

	s.mu.Lock()
	callbacks := append(make([]func(domain.Alert), 0, len(s.callbacks)), s.callbacks...)
	s.mu.Unlock()
	for _, a := range fired {
		for _, fn := range callbacks {
			fn(a)
		}
	}
	return fired
}

func (s *AlertService) checkPriceMove(md *domain.MarketData, now time.Time) []domain.Alert {
	change := md.PriceChange(s.cfg.PriceLookback)
	price := md.CurrentPrice.PriceEUR

	switch {
	case s.cfg.DropThresholdPct > 0 && change <= -s.cfg.DropThresholdPct:
		return []domain.Alert{{
			Symbol:    md.Symbol,
			Type:      domain.AlertPriceDrop,
			Level:     domain.LevelImportant,
			Message:   fmt.Sprintf("%s dropped %.1f%% over the last %s (now €%.2f)", md.Symbol, -change, s.cfg.PriceLookback, price),
			Price:     price,
			Timestamp: now,
			Metadata:  map[string]string{"change_pct": fmt.Sprintf("%.2f", change)},
		}}
	case s.cfg.SpikeThresholdPct > 0 && change >= s.cfg.SpikeThresholdPct:
		return []domain.Alert{{
			Symbol:    md.Symbol,
			Type:      domain.AlertPriceSpike,
			Level:     domain.LevelInfo,
			Message:   fmt.Sprintf("%s spiked +%.1f%% over the last %s (now €%.2f)", md.Symbol, change, s.cfg.PriceLookback, price),
			Price:     price,
			Timestamp: now,
			Metadata:  map[string]string{"change_pct": fmt.Sprintf("%.2f", change)},
		}}
	}
	return nil
}

func (s *AlertService) checkLevels(md *domain.MarketData, now time.Time) []domain.Alert {
	if !s.cfg.EnablePriceLevels {
		return nil
	}
	price := md.CurrentPrice.PriceEUR

	var alerts []domain.Alert
	for _, lvl := range s.levels {
		if lvl.Symbol != md.Symbol || !lvl.CanTrigger(now) {
			continue
		}

		var level domain.AlertLevel
		var message string
		switch lvl.Kind {
		case domain.LevelLow:
			switch {
			case price <= lvl.Level-lvl.Buffer:
				level = domain.LevelCritical
				message = fmt.Sprintf("%s fell below your €%.2f watch level (now €%.2f)", md.Symbol, lvl.Level, price)
			case price <= lvl.Level+lvl.Buffer:
				level = domain.LevelWarning
				message = fmt.Sprintf("%s is approaching your €%.2f low watch level (now €%.2f)", md.Symbol, lvl.Level, price)
			default:
				continue
			}
		case domain.LevelHigh:
			switch {
			case price >= lvl.Level+lvl.Buffer:
				level = domain.LevelCritical
				message = fmt.Sprintf("%s broke above your €%.2f watch level (now €%.2f)", md.Symbol, lvl.Level, price)
			case price >= lvl.Level-lvl.Buffer:
				level = domain.LevelWarning
				message = fmt.Sprintf("%s is approaching your €%.2f high watch level (now €%.2f)", md.Symbol, lvl.Level, price)
			default:
				continue
			}
		default:
			continue
		}

		lvl.RecordTrigger(now)
		alerts = append(alerts, domain.Alert{
			Symbol:    md.Symbol,
			Type:      domain.AlertLevelCrossed,
			Level:     level,
			Message:   message,
			Price:     price,
			Timestamp: now,
			Metadata: map[string]string{
				"watch_level": fmt.Sprintf("%.2f", lvl.Level),
				"kind":        string(lvl.Kind),
			},
		})
	}
	return alerts
}

func (s *AlertService) checkFunding(md *domain.MarketData, now time.Time) []domain.Alert {
	if !md.HasFunding || md.FundingRate > s.cfg.FundingNegativePct {
		return nil
	}
	return []domain.Alert{{
		Symbol:    md.Symbol,
		Type:      domain.AlertFundingNegative,
		Level:     domain.LevelInfo,
		Message:   fmt.Sprintf("%s funding rate is %.4f%%, shorts are paying longs", md.Symbol, md.FundingRate),
		Price:     md.CurrentPrice.PriceEUR,
		Timestamp: now,
	}}
}

func (s *AlertService) checkFearGreed(md *domain.MarketData, now time.Time) []domain.Alert {
	if md.FearGreed <= 0 || md.FearGreed > s.cfg.FearGreedMax {
		return nil
	}
	return []domain.Alert{{
		Symbol:    md.Symbol,
		Type:      domain.AlertFearGreed,
		Level:     domain.LevelInfo,
		Message:   fmt.Sprintf("fear & greed index at %d, the market is fearful", md.FearGreed),
		Timestamp: now,
	}}
}

func (s *AlertService) checkPrediction(md *domain.MarketData, pred domain.Prediction, now time.Time) []domain.Alert {
	if !s.cfg.EnablePredictions || pred.Confidence < s.cfg.PredictionMinConf {
		return nil
	}

	var level domain.AlertLevel
	switch pred.Type {
	case domain.PredictionBullish:
		level = domain.LevelInfo
	case domain.PredictionBearish:
		level = domain.LevelWarning
	default:
		return nil
	}
	return []domain.Alert{{
		Symbol:    md.Symbol,
		Type:      domain.AlertPrediction,
		Level:     level,
		Message:   fmt.Sprintf("%s looks %s (%d%% confidence)", md.Symbol, pred.Type, pred.Confidence),
		Price:     md.CurrentPrice.PriceEUR,
		Timestamp: now,
		Metadata:  map[string]string{"confidence": fmt.Sprintf("%d", pred.Confidence)},
	}}
}

// passCooldown reports whether an alert of this type+symbol may notify
// now, and records the send time when it may.
func (s *AlertService) passCooldown(a domain.Alert, now time.Time) bool {
	key := string(a.Type) + "|" + a.Symbol

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastNotified[key]; ok && now.Sub(last) < s.cfg.NotifyCooldown {
		return false
	}
	s.lastNotified[key] = now
	return true
}
