package bot

import (
	"strings"
	"testing"
	"time"

	"coinsentry/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type fakeSender struct {
	sent    []string
	handled []string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sent = append(f.sent, what.(string))
	return &tele.Message{}, nil
}

func (f *fakeSender) Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc) {
	f.handled = append(f.handled, endpoint.(string))
}

func (f *fakeSender) Start() {}
func (f *fakeSender) Stop()  {}

func TestNewNotifierDisabledWithoutToken(t *testing.T) {
	n, err := NewNotifier("", 42, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Enabled() {
		t.Fatal("empty token should disable the notifier")
	}

	// All sends on the disabled notifier are no-ops.
	if err := n.SendAlert(domain.Alert{Message: "x"}); err != nil {
		t.Fatalf("disabled send should not error: %v", err)
	}
	if err := n.SendText("hello"); err != nil {
		t.Fatalf("disabled send should not error: %v", err)
	}
	n.Stop()
}

func TestSendAlertUsesLevelEmoji(t *testing.T) {
	fake := &fakeSender{}
	n := &Notifier{bot: fake, chat: tele.ChatID(1)}

	alert := domain.Alert{
		Symbol:  "BTC",
		Level:   domain.LevelCritical,
		Message: "BTC fell below your watch level",
	}
	if err := n.SendAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.sent))
	}
	if !strings.HasPrefix(fake.sent[0], "🔴 ") {
		t.Fatalf("critical alert should lead with the red marker: %q", fake.sent[0])
	}
}

func TestSendReport(t *testing.T) {
	fake := &fakeSender{}
	n := &Notifier{bot: fake, chat: tele.ChatID(42)}

	md := &domain.MarketData{
		Symbol: "BTC",
		CurrentPrice: domain.CryptoPrice{
			Symbol:    "BTC",
			PriceEUR:  90000,
			PriceUSD:  100000,
			Change24h: -2.5,
			Timestamp: time.Now().UTC(),
		},
		Indicators: domain.TechnicalIndicators{RSI: 35},
	}
	pred := domain.Prediction{Symbol: "BTC", Type: domain.PredictionSlightlyBullish, Confidence: 65}
	opp := domain.OpportunityScore{Symbol: "BTC", Score: 7.2, Recommendation: "very good opportunity"}

	if err := n.SendReport(md, pred, opp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.sent))
	}
	if !strings.Contains(fake.sent[0], "7.2") || !strings.Contains(fake.sent[0], "very good opportunity") {
		t.Fatalf("report missing the score: %q", fake.sent[0])
	}
}

func TestSendSpacing(t *testing.T) {
	fake := &fakeSender{}
	n := &Notifier{bot: fake, chat: tele.ChatID(1), delay: 30 * time.Millisecond}

	start := time.Now()
	_ = n.SendText("one")
	_ = n.SendText("two")
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second send should wait out the delay, took %v", elapsed)
	}
	if len(fake.sent) != 2 {
		t.Fatalf("expected two messages, got %d", len(fake.sent))
	}
}

func TestRegisterCommands(t *testing.T) {
	fake := &fakeSender{}
	n := &Notifier{bot: fake, chat: tele.ChatID(1)}

	n.RegisterCommands(nil, []string{"BTC"}, func() string { return "ok" })

	want := []string{"/ping", "/price", "/score", "/status"}
	if len(fake.handled) != len(want) {
		t.Fatalf("expected %d handlers, got %v", len(want), fake.handled)
	}
	for i, cmd := range want {
		if fake.handled[i] != cmd {
			t.Fatalf("expected %s, got %s", cmd, fake.handled[i])
		}
	}
}

func TestFormatReport(t *testing.T) {
	md := &domain.MarketData{
		Symbol: "BTC",
		CurrentPrice: domain.CryptoPrice{
			Symbol:    "BTC",
			PriceEUR:  90000,
			PriceUSD:  100000,
			Change24h: -3.21,
		},
		Indicators: domain.TechnicalIndicators{RSI: 28},
		FearGreed:  19,
		HasFunding: true,
	}
	pred := domain.Prediction{Type: domain.PredictionBullish, Confidence: 80}
	opp := domain.OpportunityScore{
		Score:          8.5,
		Recommendation: "excellent buy opportunity",
		Reasons:        []string{"RSI oversold (28)", "extreme fear in the market (19)"},
	}

	report := FormatReport(md, pred, opp)
	for _, want := range []string{
		"*BTC* €90000.00",
		"-3.21%",
		"RSI: 28",
		"Fear & Greed: 19",
		"8.5/10",
		"excellent buy opportunity",
		"RSI oversold (28)",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestFormatSummary(t *testing.T) {
	entries := []SummaryEntry{
		{Symbol: "BTC", PriceEUR: 90000, Change24h: 1.5, Score: 6.5},
		{Symbol: "ETH", PriceEUR: 3100, Change24h: -0.8, Score: 4},
	}
	summary := FormatSummary(entries, 44)

	for _, want := range []string{"Market summary", "BTC", "ETH", "Fear & Greed: 44"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}

	noFgi := FormatSummary(entries, 0)
	if strings.Contains(noFgi, "Fear & Greed") {
		t.Fatal("unknown index should be omitted from the summary")
	}
}
