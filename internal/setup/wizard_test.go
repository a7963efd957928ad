package setup

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coinsentry/internal/config"
)

func TestWizardWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	input := strings.Join([]string{
		"123:abc",      // token
		"4242",         // chat id
		"btc, doge",    // symbols
		"30m",          // interval
		"8",            // drop threshold
		"12",           // spike threshold
		"n",            // no test message
	}, "\n") + "\n"

	var out bytes.Buffer
	testCalled := false
	w := NewWizard(strings.NewReader(input), &out, func(token string, chatID int64) error {
		testCalled = true
		return nil
	})

	if err := w.Run(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if testCalled {
		t.Fatal("declined test message should not send")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.ChatID != 4242 {
		t.Fatalf("unexpected telegram config: %+v", cfg.Telegram)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "DOGE" {
		t.Fatalf("unexpected symbols: %+v", cfg.Symbols)
	}
	if cfg.CheckInterval != 30*time.Minute {
		t.Fatalf("unexpected interval: %v", cfg.CheckInterval)
	}
	if cfg.Alerts.DropThresholdPct != 8 || cfg.Alerts.SpikeThresholdPct != 12 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Alerts)
	}
}

func TestWizardKeepsDefaultsOnEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// Token and chat id answered, everything else left at the default.
	input := "tok\n7\n\n\n\n\nn\n"

	var out bytes.Buffer
	w := NewWizard(strings.NewReader(input), &out, nil)
	if err := w.Run(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(cfg.Symbols) != 3 {
		t.Fatalf("expected default symbols, got %+v", cfg.Symbols)
	}
	if cfg.CheckInterval != 15*time.Minute {
		t.Fatalf("expected default interval, got %v", cfg.CheckInterval)
	}
}

func TestWizardRejectsIncompleteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// Empty token and chat id fail validation.
	input := "\n\n\n\n\n\n"

	var out bytes.Buffer
	w := NewWizard(strings.NewReader(input), &out, nil)
	if err := w.Run(path); err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out.String(), "problem:") {
		t.Fatalf("problems should be printed:\n%s", out.String())
	}
}

func TestWizardSendsTestMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	input := "tok\n7\n\n\n\n\ny\n"

	var captured struct {
		token string
		chat  int64
	}
	var out bytes.Buffer
	w := NewWizard(strings.NewReader(input), &out, func(token string, chatID int64) error {
		captured.token = token
		captured.chat = chatID
		return nil
	})

	if err := w.Run(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.token != "tok" || captured.chat != 7 {
		t.Fatalf("unexpected test args: %+v", captured)
	}
	if !strings.Contains(out.String(), "test message sent") {
		t.Fatalf("expected confirmation:\n%s", out.String())
	}
}
