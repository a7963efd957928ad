// Package config loads and validates the bot's YAML configuration.
// Values can be overridden through environment variables (a .env file is
// honored by the entry point).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// DefaultPath is where the bot looks for its configuration unless
// --config points elsewhere.
const DefaultPath = "config/config.yaml"

type Config struct {
	Telegram      TelegramConfig
	Symbols       []string
	CheckInterval time.Duration
	SummaryHours  []int
	QuietHours    QuietHoursConfig
	Alerts        AlertConfig
	PriceLevels   map[string]PriceLevelConfig
	Log           LogConfig
	DatabaseURL   string
	RedisURL      string
	HTTPPort      int
	HTTPAPIKey    string
}

type TelegramConfig struct {
	BotToken     string
	ChatID       int64
	MessageDelay time.Duration
}

type QuietHoursConfig struct {
	Enabled   bool
	StartHour int
	EndHour   int
}

type AlertConfig struct {
	Enabled             bool
	PriceLookback       time.Duration
	DropThresholdPct    float64
	SpikeThresholdPct   float64
	FundingNegativePct  float64
	FearGreedMax        int
	EnablePredictions   bool
	PredictionMinConf   int
	EnablePriceLevels   bool
	LevelBufferEUR      float64
	LevelCooldown       time.Duration
	NotifyCooldown      time.Duration
}

// PriceLevelConfig holds optional watch levels for one symbol, in EUR.
// A zero value means the level is not set.
type PriceLevelConfig struct {
	Low  float64
	High float64
}

type LogConfig struct {
	Level string
	File  string
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads the YAML config at path, applies defaults, and lets
// environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return build(v)
}

// LoadOrDefault behaves like Load but returns a default config when the
// file does not exist, still honoring environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	if Exists(path) {
		return Load(path)
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols", []string{"BTC", "ETH", "SOL"})
	v.SetDefault("check_interval", "15m")
	v.SetDefault("summary_hours", []int{9, 12, 18})
	v.SetDefault("quiet_hours.enabled", false)
	v.SetDefault("quiet_hours.start_hour", 23)
	v.SetDefault("quiet_hours.end_hour", 7)
	v.SetDefault("telegram.message_delay", "500ms")
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.price_lookback", "2h")
	v.SetDefault("alerts.drop_threshold_pct", 10.0)
	v.SetDefault("alerts.spike_threshold_pct", 10.0)
	v.SetDefault("alerts.funding_negative_pct", -0.03)
	v.SetDefault("alerts.fear_greed_max", 30)
	v.SetDefault("alerts.enable_predictions", true)
	v.SetDefault("alerts.prediction_min_confidence", 70)
	v.SetDefault("alerts.enable_price_levels", true)
	v.SetDefault("alerts.level_buffer_eur", 2.0)
	v.SetDefault("alerts.level_cooldown", "30m")
	v.SetDefault("alerts.notify_cooldown", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("http_port", 8080)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetInt64("telegram.chat_id"),
		},
		Symbols:      normalizeSymbols(v.GetStringSlice("symbols")),
		SummaryHours: v.GetIntSlice("summary_hours"),
		QuietHours: QuietHoursConfig{
			Enabled:   v.GetBool("quiet_hours.enabled"),
			StartHour: v.GetInt("quiet_hours.start_hour"),
			EndHour:   v.GetInt("quiet_hours.end_hour"),
		},
		Alerts: AlertConfig{
			Enabled:            v.GetBool("alerts.enabled"),
			DropThresholdPct:   v.GetFloat64("alerts.drop_threshold_pct"),
			SpikeThresholdPct:  v.GetFloat64("alerts.spike_threshold_pct"),
			FundingNegativePct: v.GetFloat64("alerts.funding_negative_pct"),
			FearGreedMax:       v.GetInt("alerts.fear_greed_max"),
			EnablePredictions:  v.GetBool("alerts.enable_predictions"),
			PredictionMinConf:  v.GetInt("alerts.prediction_min_confidence"),
			EnablePriceLevels:  v.GetBool("alerts.enable_price_levels"),
			LevelBufferEUR:     v.GetFloat64("alerts.level_buffer_eur"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),
		HTTPPort:    v.GetInt("http_port"),
		HTTPAPIKey:  v.GetString("http_api_key"),
	}

	var err error
	if cfg.CheckInterval, err = parseDuration(v.GetString("check_interval")); err != nil {
		return nil, fmt.Errorf("check_interval: %w", err)
	}
	if cfg.Telegram.MessageDelay, err = parseDuration(v.GetString("telegram.message_delay")); err != nil {
		return nil, fmt.Errorf("telegram.message_delay: %w", err)
	}
	if cfg.Alerts.PriceLookback, err = parseDuration(v.GetString("alerts.price_lookback")); err != nil {
		return nil, fmt.Errorf("alerts.price_lookback: %w", err)
	}
	if cfg.Alerts.LevelCooldown, err = parseDuration(v.GetString("alerts.level_cooldown")); err != nil {
		return nil, fmt.Errorf("alerts.level_cooldown: %w", err)
	}
	if cfg.Alerts.NotifyCooldown, err = parseDuration(v.GetString("alerts.notify_cooldown")); err != nil {
		return nil, fmt.Errorf("alerts.notify_cooldown: %w", err)
	}

	cfg.PriceLevels = make(map[string]PriceLevelConfig)
	for symbol := range v.GetStringMap("price_levels") {
		key := "price_levels." + symbol
		cfg.PriceLevels[strings.ToUpper(symbol)] = PriceLevelConfig{
			Low:  v.GetFloat64(key + ".low"),
			High: v.GetFloat64(key + ".high"),
		}
	}

	return cfg, nil
}

// parseDuration accepts extended duration strings such as "1d" on top of
// the standard "300ms", "2h45m" forms.
func parseDuration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(s)
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Validate returns all problems that would make the bot unable to run.
func (c *Config) Validate() []string {
	var problems []string
	if c.Telegram.BotToken == "" {
		problems = append(problems, "telegram.bot_token is not set")
	}
	if c.Telegram.ChatID == 0 {
		problems = append(problems, "telegram.chat_id is not set")
	}
	if len(c.Symbols) == 0 {
		problems = append(problems, "symbols list is empty")
	}
	if c.CheckInterval < time.Minute {
		problems = append(problems, "check_interval must be at least 1m")
	}
	for _, h := range c.SummaryHours {
		if h < 0 || h > 23 {
			problems = append(problems, fmt.Sprintf("summary hour %d out of range 0..23", h))
		}
	}
	if q := c.QuietHours; q.Enabled {
		if q.StartHour < 0 || q.StartHour > 23 || q.EndHour < 0 || q.EndHour > 23 {
			problems = append(problems, "quiet hours out of range 0..23")
		}
	}
	return problems
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	v := viper.New()
	v.Set("telegram.bot_token", c.Telegram.BotToken)
	v.Set("telegram.chat_id", c.Telegram.ChatID)
	v.Set("telegram.message_delay", c.Telegram.MessageDelay.String())
	v.Set("symbols", c.Symbols)
	v.Set("check_interval", c.CheckInterval.String())
	v.Set("summary_hours", c.SummaryHours)
	v.Set("quiet_hours.enabled", c.QuietHours.Enabled)
	v.Set("quiet_hours.start_hour", c.QuietHours.StartHour)
	v.Set("quiet_hours.end_hour", c.QuietHours.EndHour)
	v.Set("alerts.enabled", c.Alerts.Enabled)
	v.Set("alerts.price_lookback", c.Alerts.PriceLookback.String())
	v.Set("alerts.drop_threshold_pct", c.Alerts.DropThresholdPct)
	v.Set("alerts.spike_threshold_pct", c.Alerts.SpikeThresholdPct)
	v.Set("alerts.funding_negative_pct", c.Alerts.FundingNegativePct)
	v.Set("alerts.fear_greed_max", c.Alerts.FearGreedMax)
	v.Set("alerts.enable_predictions", c.Alerts.EnablePredictions)
	v.Set("alerts.prediction_min_confidence", c.Alerts.PredictionMinConf)
	v.Set("alerts.enable_price_levels", c.Alerts.EnablePriceLevels)
	v.Set("alerts.level_buffer_eur", c.Alerts.LevelBufferEUR)
	v.Set("alerts.level_cooldown", c.Alerts.LevelCooldown.String())
	v.Set("alerts.notify_cooldown", c.Alerts.NotifyCooldown.String())
	for symbol, levels := range c.PriceLevels {
		key := "price_levels." + strings.ToLower(symbol)
		if levels.Low > 0 {
			v.Set(key+".low", levels.Low)
		}
		if levels.High > 0 {
			v.Set(key+".high", levels.High)
		}
	}
	v.Set("log.level", c.Log.Level)
	v.Set("log.file", c.Log.File)
	if c.DatabaseURL != "" {
		v.Set("database_url", c.DatabaseURL)
	}
	if c.RedisURL != "" {
		v.Set("redis_url", c.RedisURL)
	}
	v.Set("http_port", c.HTTPPort)
	if c.HTTPAPIKey != "" {
		v.Set("http_api_key", c.HTTPAPIKey)
	}

	return v.WriteConfigAs(path)
}
