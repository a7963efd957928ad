package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlagsDefaultsToGUI(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opts.gui {
		t.Fatal("no mode flag should default to the dashboard")
	}
	if opts.configPath == "" {
		t.Fatal("config path should default")
	}
}

func TestParseFlagsSingleMode(t *testing.T) {
	opts, err := parseFlags([]string{"--once", "--symbol", "btc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opts.once || opts.gui {
		t.Fatalf("unexpected modes: %+v", opts)
	}
	if opts.symbol != "btc" {
		t.Fatalf("unexpected symbol: %s", opts.symbol)
	}

	if _, err := parseFlags([]string{"--once", "--daemon"}); err == nil {
		t.Fatal("conflicting modes should error")
	}
}

func TestLoadConfigMissingFileSuggestsSetup(t *testing.T) {
	opts := options{once: true, configPath: filepath.Join(t.TempDir(), "nope.yaml")}

	_, err := loadConfig(opts)
	if err == nil || !strings.Contains(err.Error(), "--setup") {
		t.Fatalf("expected a --setup hint, got %v", err)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "symbols: [btc]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Daemon mode needs Telegram credentials.
	if _, err := loadConfig(options{daemon: true, configPath: path}); err == nil {
		t.Fatal("incomplete config should fail for the daemon")
	}

	// The dashboard only needs symbols.
	cfg, err := loadConfig(options{gui: true, configPath: path})
	if err != nil {
		t.Fatalf("dashboard should accept a telegram-less config: %v", err)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "BTC" {
		t.Fatalf("unexpected symbols: %+v", cfg.Symbols)
	}
}
