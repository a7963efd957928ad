// Package job runs the background monitoring loop: poll every symbol,
// analyze, alert, summarize, and keep the status counters.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coinsentry/internal/analysis"
	"coinsentry/internal/bot"
	"coinsentry/internal/config"
	"coinsentry/internal/domain"
	"coinsentry/internal/service"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	pruneInterval = 12 * time.Hour
	retention     = 30 * 24 * time.Hour
)

// MarketSource is the market service surface the daemon polls.
type MarketSource interface {
	Snapshot(ctx context.Context, symbol string) (*domain.MarketData, error)
	WeeklyExtremes(ctx context.Context, symbol string) (domain.Extremes, error)
}

// Alerter evaluates alert rules for one snapshot.
type Alerter interface {
	Evaluate(md *domain.MarketData, pred domain.Prediction) []domain.Alert
}

// SummaryScheduler decides when the periodic summary goes out.
type SummaryScheduler interface {
	ShouldSend() bool
	MarkSent()
	NextSummary() time.Time
}

// Notifier is the outbound Telegram surface. The daemon treats a nil
// implementation as disabled.
type Notifier interface {
	SendAlert(a domain.Alert) error
	SendSummary(entries []bot.SummaryEntry, fearGreed int) error
	SendText(text string) error
}

// AlertSink persists fired alerts. Optional.
type AlertSink interface {
	Insert(ctx context.Context, alert domain.Alert) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryPruner trims old persisted price rows. Optional.
type HistoryPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stats are the daemon's lifetime counters.
type Stats struct {
	StartedAt  time.Time `json:"started_at"`
	Cycles     int       `json:"cycles"`
	Checks     int       `json:"checks"`
	AlertsSent int       `json:"alerts_sent"`
	Errors     int       `json:"errors"`
	LastCycle  time.Time `json:"last_cycle,omitempty"`
}

// Result is the latest full analysis for one symbol.
type Result struct {
	Data        *domain.MarketData      `json:"data"`
	Prediction  domain.Prediction       `json:"prediction"`
	Opportunity domain.OpportunityScore `json:"opportunity"`
	At          time.Time               `json:"at"`
}

// Daemon is the polling loop behind --daemon mode.
type Daemon struct {
	tracer   trace.Tracer
	cfg      *config.Config
	markets  MarketSource
	alerts   Alerter
	summary  SummaryScheduler
	notifier Notifier
	alertDB  AlertSink
	priceDB  HistoryPruner

	mu      sync.Mutex
	stats   Stats
	results map[string]Result

	nowFunc func() time.Time
}

func NewDaemon(
	tracer trace.Tracer,
	cfg *config.Config,
	markets MarketSource,
	alerts Alerter,
	summary SummaryScheduler,
	notifier Notifier,
	alertDB AlertSink,
	priceDB HistoryPruner,
) *Daemon {
	return &Daemon{
		tracer:   tracer,
		cfg:      cfg,
		markets:  markets,
		alerts:   alerts,
		summary:  summary,
		notifier: notifier,
		alertDB:  alertDB,
		priceDB:  priceDB,
		results:  make(map[string]Result),
		nowFunc:  time.Now,
	}
}

// Run blocks until ctx is cancelled, polling every check interval. The
// first cycle runs immediately.
func (d *Daemon) Run(ctx context.Context) {
	d.mu.Lock()
	d.stats.StartedAt = d.nowFunc()
	d.mu.Unlock()

	log.Info().
		Strs("symbols", d.cfg.Symbols).
		Dur("interval", d.cfg.CheckInterval).
		Msg("daemon starting")
	d.notify(func() error {
		return d.notifier.SendText(fmt.Sprintf("coinsentry up, watching %d symbols every %s", len(d.cfg.Symbols), d.cfg.CheckInterval))
	})

	if d.alertDB != nil || d.priceDB != nil {
		go d.pruneLoop(ctx)
	}

	d.runCycle(ctx)

	ticker := time.NewTicker(d.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.notify(func() error {
				return d.notifier.SendText("coinsentry shutting down, " + d.StatusLine())
			})
			log.Info().Msg("daemon stopped")
			return
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// RunCycleOnce runs a single polling cycle. The daemon loop uses it
// internally; one-shot callers can use it to warm the results map.
func (d *Daemon) RunCycleOnce(ctx context.Context) {
	d.runCycle(ctx)
}

func (d *Daemon) runCycle(ctx context.Context) {
	ctx, span := d.tracer.Start(ctx, "daemon.run-cycle")
	defer span.End()

	now := d.nowFunc()
	quiet := service.InQuietHours(d.cfg.QuietHours, now)

	for _, symbol := range d.cfg.Symbols {
		if err := d.processSymbol(ctx, symbol, quiet); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("symbol check failed")
			d.mu.Lock()
			d.stats.Errors++
			d.mu.Unlock()
		}
	}

	if !quiet && d.summary.ShouldSend() {
		d.sendSummary(ctx)
		d.summary.MarkSent()
	}

	d.mu.Lock()
	d.stats.Cycles++
	d.stats.LastCycle = d.nowFunc()
	d.mu.Unlock()
}

func (d *Daemon) processSymbol(ctx context.Context, symbol string, quiet bool) error {
	ctx, span := d.tracer.Start(ctx, "daemon.process-symbol")
	defer span.End()

	md, err := d.markets.Snapshot(ctx, symbol)
	if err != nil {
		return err
	}

	weekly, err := d.markets.WeeklyExtremes(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("weekly extremes unavailable")
	}

	pred := analysis.Predict(md)
	opp := analysis.ScoreOpportunity(md, pred, weekly)

	d.mu.Lock()
	d.stats.Checks++
	d.results[symbol] = Result{Data: md, Prediction: pred, Opportunity: opp, At: d.nowFunc()}
	d.mu.Unlock()

	// Quiet hours pause alerting entirely so cooldowns are not burned
	// on suppressed notifications.
	if quiet {
		return nil
	}

	fired := d.alerts.Evaluate(md, pred)
	for _, a := range fired {
		d.notify(func() error { return d.notifier.SendAlert(a) })
		if d.alertDB != nil {
			if err := d.alertDB.Insert(ctx, a); err != nil {
				log.Warn().Err(err).Msg("failed to persist alert")
			}
		}
	}

	d.mu.Lock()
	d.stats.AlertsSent += len(fired)
	d.mu.Unlock()
	return nil
}

func (d *Daemon) sendSummary(ctx context.Context) {
	d.mu.Lock()
	entries := make([]bot.SummaryEntry, 0, len(d.cfg.Symbols))
	fearGreed := 0
	for _, symbol := range d.cfg.Symbols {
		r, ok := d.results[symbol]
		if !ok {
			continue
		}
		entries = append(entries, bot.SummaryEntry{
			Symbol:         symbol,
			PriceEUR:       r.Data.CurrentPrice.PriceEUR,
			Change24h:      r.Data.CurrentPrice.Change24h,
			Score:          r.Opportunity.Score,
			Recommendation: r.Opportunity.Recommendation,
		})
		if r.Data.FearGreed > 0 {
			fearGreed = r.Data.FearGreed
		}
	}
	d.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	d.notify(func() error { return d.notifier.SendSummary(entries, fearGreed) })
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := d.nowFunc().Add(-retention)
			if d.priceDB != nil {
				if n, err := d.priceDB.PruneBefore(ctx, cutoff); err != nil {
					log.Warn().Err(err).Msg("price history prune failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Msg("pruned old price history")
				}
			}
			if d.alertDB != nil {
				if n, err := d.alertDB.PruneBefore(ctx, cutoff); err != nil {
					log.Warn().Err(err).Msg("alert log prune failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Msg("pruned old alerts")
				}
			}
		}
	}
}

// Stats returns a copy of the daemon counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Results returns a copy of the latest per-symbol analysis.
func (d *Daemon) Results() map[string]Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Result, len(d.results))
	for k, v := range d.results {
		out[k] = v
	}
	return out
}

// NextSummary returns when the next periodic summary is due.
func (d *Daemon) NextSummary() time.Time {
	return d.summary.NextSummary()
}

// StatusLine is a one-line human summary for /status and shutdown.
func (d *Daemon) StatusLine() string {
	s := d.Stats()
	uptime := d.nowFunc().Sub(s.StartedAt).Round(time.Second)
	return fmt.Sprintf("uptime %s, %d cycles, %d checks, %d alerts, %d errors",
		uptime, s.Cycles, s.Checks, s.AlertsSent, s.Errors)
}

func (d *Daemon) notify(send func() error) {
	if d.notifier == nil {
		return
	}
	if err := send(); err != nil {
		log.Warn().Err(err).Msg("telegram notification failed")
	}
}
