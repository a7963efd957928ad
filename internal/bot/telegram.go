// Package bot is the Telegram surface: outbound alerts, reports, and
// summaries, plus a handful of inbound commands.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coinsentry/internal/analysis"
	"coinsentry/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// Sender is the slice of *tele.Bot the notifier uses, faked in tests.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
	Start()
	Stop()
}

// Market is what the inbound commands need from the market side.
type Market interface {
	Snapshot(ctx context.Context, symbol string) (*domain.MarketData, error)
	WeeklyExtremes(ctx context.Context, symbol string) (domain.Extremes, error)
}

// Notifier sends messages to the configured chat, spacing them out by
// the configured delay. A nil Notifier is a disabled one: every method
// is a no-op.
type Notifier struct {
	bot     Sender
	chat    tele.Recipient
	delay   time.Duration
	symbols []string

	mu       sync.Mutex
	lastSend time.Time
}

// NewNotifier builds a notifier for the given bot token and chat. An
// empty token disables Telegram entirely and returns a nil notifier.
func NewNotifier(token string, chatID int64, delay time.Duration) (*Notifier, error) {
	if token == "" {
		log.Warn().Msg("telegram token not set, notifications disabled")
		return nil, nil
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{bot: b, chat: tele.ChatID(chatID), delay: delay}, nil
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.bot != nil
}

// RegisterCommands wires the inbound command handlers and starts the
// long poller in the background.
func (n *Notifier) RegisterCommands(markets Market, symbols []string, status func() string) {
	if !n.Enabled() {
		return
	}
	n.symbols = symbols

	n.bot.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	n.bot.Handle("/price", func(c tele.Context) error {
		symbol, err := n.symbolArg(c)
		if err != nil {
			return c.Send(err.Error())
		}
		md, err := markets.Snapshot(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching %s: %v", symbol, err))
		}
		p := md.CurrentPrice
		return c.Send(fmt.Sprintf(
			"%s\nPrice: €%.2f ($%.2f)\n24h Change: %+.2f%%\n24h Volume: %.0f",
			symbol, p.PriceEUR, p.PriceUSD, p.Change24h, p.Volume24h,
		))
	})

	n.bot.Handle("/score", func(c tele.Context) error {
		symbol, err := n.symbolArg(c)
		if err != nil {
			return c.Send(err.Error())
		}
		ctx := context.Background()
		md, err := markets.Snapshot(ctx, symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching %s: %v", symbol, err))
		}
		weekly, err := markets.WeeklyExtremes(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("weekly extremes unavailable for /score")
		}
		pred := analysis.Predict(md)
		opp := analysis.ScoreOpportunity(md, pred, weekly)
		return c.Send(FormatReport(md, pred, opp), tele.ModeMarkdown)
	})

	n.bot.Handle("/status", func(c tele.Context) error {
		return c.Send(status())
	})

	go n.bot.Start()
	log.Info().Msg("telegram bot listening for commands")
}

func (n *Notifier) symbolArg(c tele.Context) (string, error) {
	args := c.Args()
	if len(args) == 0 {
		return "", fmt.Errorf("usage: %s SYMBOL\nwatched: %s", c.Text(), strings.Join(n.symbols, ", "))
	}
	return strings.ToUpper(strings.TrimSpace(args[0])), nil
}

// Stop shuts down the long poller.
func (n *Notifier) Stop() {
	if n.Enabled() {
		n.bot.Stop()
	}
}

// SendAlert pushes one alert to the chat.
func (n *Notifier) SendAlert(a domain.Alert) error {
	return n.send(alertEmoji(a.Level) + " " + a.Message)
}

// SendReport pushes a full per-symbol report, as produced by a manual
// check or the /score command.
func (n *Notifier) SendReport(md *domain.MarketData, pred domain.Prediction, opp domain.OpportunityScore) error {
	return n.send(FormatReport(md, pred, opp), tele.ModeMarkdown)
}

// SummaryEntry is one symbol's line in the periodic summary.
type SummaryEntry struct {
	Symbol         string
	PriceEUR       float64
	Change24h      float64
	Score          float64
	Recommendation string
}

// SendSummary pushes the periodic market summary.
func (n *Notifier) SendSummary(entries []SummaryEntry, fearGreed int) error {
	return n.send(FormatSummary(entries, fearGreed), tele.ModeMarkdown)
}

// SendText pushes a plain message (startup and shutdown notices).
func (n *Notifier) SendText(text string) error {
	return n.send(text)
}

func (n *Notifier) send(text string, opts ...interface{}) error {
	if !n.Enabled() {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if wait := n.delay - time.Since(n.lastSend); wait > 0 {
		time.Sleep(wait)
	}
	_, err := n.bot.Send(n.chat, text, opts...)
	n.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func alertEmoji(level domain.AlertLevel) string {
	switch level {
	case domain.LevelCritical:
		return "🔴"
	case domain.LevelImportant:
		return "🚨"
	case domain.LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// FormatReport renders the per-symbol check result as Telegram markdown.
func FormatReport(md *domain.MarketData, pred domain.Prediction, opp domain.OpportunityScore) string {
	p := md.CurrentPrice

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* €%.2f ($%.2f)\n", md.Symbol, p.PriceEUR, p.PriceUSD)
	fmt.Fprintf(&b, "24h: %+.2f%%  RSI: %.0f\n", p.Change24h, md.Indicators.RSI)
	if md.FearGreed > 0 {
		fmt.Fprintf(&b, "Fear & Greed: %d\n", md.FearGreed)
	}
	if md.HasFunding {
		fmt.Fprintf(&b, "Funding: %.4f%%\n", md.FundingRate)
	}
	fmt.Fprintf(&b, "Trend: %s %s (%d%%)\n", analysis.Arrow(pred.Type), analysis.Describe(pred.Type), pred.Confidence)
	fmt.Fprintf(&b, "Score: *%.1f/10* - %s", opp.Score, opp.Recommendation)
	for _, r := range opp.Reasons {
		fmt.Fprintf(&b, "\n  - %s", r)
	}
	return b.String()
}

// FormatSummary renders the periodic all-symbols summary.
func FormatSummary(entries []SummaryEntry, fearGreed int) string {
	var b strings.Builder
	b.WriteString("*Market summary*\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s €%.2f (%+.2f%%) score %.1f\n", e.Symbol, e.PriceEUR, e.Change24h, e.Score)
	}
	if fearGreed > 0 {
		fmt.Fprintf(&b, "Fear & Greed: %d", fearGreed)
	}
	return strings.TrimRight(b.String(), "\n")
}
