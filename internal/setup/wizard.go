// Package setup is the interactive first-run wizard behind --setup.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"coinsentry/internal/config"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Tester sends a test message to verify the Telegram credentials. It is
// injected so the wizard itself stays offline in tests.
type Tester func(token string, chatID int64) error

// Wizard collects the minimal working configuration over stdin.
type Wizard struct {
	in   *bufio.Scanner
	out  io.Writer
	test Tester
}

func NewWizard(in io.Reader, out io.Writer, test Tester) *Wizard {
	return &Wizard{in: bufio.NewScanner(in), out: out, test: test}
}

// Run walks through the prompts and writes the config to path. An
// existing file's values become the defaults.
func (w *Wizard) Run(path string) error {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(w.out, "coinsentry setup")
	fmt.Fprintln(w.out, "----------------")

	cfg.Telegram.BotToken = w.ask("Telegram bot token (from @BotFather)", cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = w.askInt64("Telegram chat id (from @userinfobot)", cfg.Telegram.ChatID)
	cfg.Symbols = w.askSymbols("Symbols to watch (comma separated)", cfg.Symbols)
	cfg.CheckInterval = w.askDuration("Check interval (e.g. 15m, 1h)", cfg.CheckInterval)
	cfg.Alerts.DropThresholdPct = w.askFloat("Alert on price drops bigger than (percent)", cfg.Alerts.DropThresholdPct)
	cfg.Alerts.SpikeThresholdPct = w.askFloat("Alert on price spikes bigger than (percent)", cfg.Alerts.SpikeThresholdPct)

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(w.out, "problem:", p)
		}
		return fmt.Errorf("configuration still incomplete")
	}

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintln(w.out, "saved", path)

	if w.test != nil && w.askYesNo("Send a Telegram test message?", true) {
		if err := w.test(cfg.Telegram.BotToken, cfg.Telegram.ChatID); err != nil {
			fmt.Fprintln(w.out, "test message failed:", err)
			fmt.Fprintln(w.out, "check the token and chat id, then run --setup again")
		} else {
			fmt.Fprintln(w.out, "test message sent")
		}
	}
	return nil
}

func (w *Wizard) ask(prompt, current string) string {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, current)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	if !w.in.Scan() {
		return current
	}
	answer := strings.TrimSpace(w.in.Text())
	if answer == "" {
		return current
	}
	return answer
}

func (w *Wizard) askInt64(prompt string, current int64) int64 {
	currentStr := ""
	if current != 0 {
		currentStr = strconv.FormatInt(current, 10)
	}
	for {
		answer := w.ask(prompt, currentStr)
		if answer == "" {
			return current
		}
		n, err := strconv.ParseInt(answer, 10, 64)
		if err == nil {
			return n
		}
		fmt.Fprintln(w.out, "not a number, try again")
	}
}

func (w *Wizard) askFloat(prompt string, current float64) float64 {
	for {
		answer := w.ask(prompt, strconv.FormatFloat(current, 'f', -1, 64))
		n, err := strconv.ParseFloat(answer, 64)
		if err == nil {
			return n
		}
		fmt.Fprintln(w.out, "not a number, try again")
	}
}

func (w *Wizard) askDuration(prompt string, current time.Duration) time.Duration {
	for {
		answer := w.ask(prompt, current.String())
		d, err := str2duration.ParseDuration(answer)
		if err == nil {
			return d
		}
		fmt.Fprintln(w.out, "not a duration (try 15m, 1h, 1d), try again")
	}
}

func (w *Wizard) askSymbols(prompt string, current []string) []string {
	answer := w.ask(prompt, strings.Join(current, ","))
	parts := strings.Split(answer, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	if len(symbols) == 0 {
		return current
	}
	return symbols
}

func (w *Wizard) askYesNo(prompt string, def bool) bool {
	hint := "Y/n"
	if !def {
		hint = "y/N"
	}
	answer := strings.ToLower(w.ask(prompt+" ("+hint+")", ""))
	if answer == "" {
		return def
	}
	return answer == "y" || answer == "yes"
}
