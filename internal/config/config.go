package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceJSON       = "json"
	SourcePrometheus = "prometheus"
)

// MinPollInterval mirrors the watchdog's interval floor; a smaller base
// interval could never be honoured.
const MinPollInterval = 30 * time.Second

type Config struct {
	Addr          string         `yaml:"addr"`
	DataDir       string         `yaml:"data_dir"`
	DBPath        string         `yaml:"db_path"`
	LogLevel      string         `yaml:"log_level"`
	RetentionDays int            `yaml:"retention_days"`
	Source        SourceConfig   `yaml:"source"`
	Poll          PollConfig     `yaml:"poll"`
	Watchdog      WatchdogConfig `yaml:"watchdog"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

// SourceConfig describes where snapshots come from.
type SourceConfig struct {
	// Kind is one of: json | prometheus.
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollConfig struct {
	// BaseInterval is the poll interval for a healthy modem.
	BaseInterval time.Duration `yaml:"base_interval"`
	// Adaptive lets the watchdog shorten the interval while the signal is degraded.
	Adaptive bool `yaml:"adaptive"`
}

type WatchdogConfig struct {
	DriftThresholdDB float64       `yaml:"drift_threshold_db"`
	DriftWindow      time.Duration `yaml:"drift_window"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	// DedupWindow suppresses repeats of the same alert key.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// Load builds the configuration from environment variables and, when path
// is non-empty, overlays the YAML file at path.
func Load(path string) (Config, error) {
	cfg := fromEnv()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "cablewatch.db")
	}
	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func fromEnv() Config {
	return Config{
		Addr:          getenv("APP_ADDR", ":8080"),
		DataDir:       getenv("APP_DATA_DIR", "./data"),
		DBPath:        os.Getenv("APP_DB_PATH"),
		LogLevel:      getenv("APP_LOG_LEVEL", "info"),
		RetentionDays: getenvInt("APP_RETENTION_DAYS", 30),
		Source: SourceConfig{
			Kind:    getenv("MODEM_SOURCE_KIND", SourceJSON),
			URL:     getenv("MODEM_SOURCE_URL", "http://127.0.0.1:9100/snapshot"),
			Timeout: getenvDuration("MODEM_SOURCE_TIMEOUT", 15*time.Second),
		},
		Poll: PollConfig{
			BaseInterval: getenvDuration("APP_POLL_INTERVAL", 15*time.Minute),
			Adaptive:     getenvBool("APP_POLL_ADAPTIVE", true),
		},
		Watchdog: WatchdogConfig{
			DriftThresholdDB: getenvFloat("WATCHDOG_DRIFT_THRESHOLD_DB", 3.0),
			DriftWindow:      getenvDuration("WATCHDOG_DRIFT_WINDOW", 24*time.Hour),
		},
		Telegram: TelegramConfig{
			BotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:      os.Getenv("TELEGRAM_CHAT_ID"),
			DedupWindow: getenvDuration("TELEGRAM_DEDUP_WINDOW", time.Hour),
		},
	}
}

func validate(cfg Config) error {
	switch cfg.Source.Kind {
	case SourceJSON, SourcePrometheus:
	default:
		return fmt.Errorf("source.kind %q unknown: want json|prometheus", cfg.Source.Kind)
	}
	if cfg.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if cfg.Poll.BaseInterval < MinPollInterval {
		return fmt.Errorf("poll.base_interval %v is below the %v minimum", cfg.Poll.BaseInterval, MinPollInterval)
	}
	if cfg.Watchdog.DriftThresholdDB <= 0 {
		return fmt.Errorf("watchdog.drift_threshold_db must be positive")
	}
	if cfg.Watchdog.DriftWindow <= 0 {
		return fmt.Errorf("watchdog.drift_window must be positive")
	}
	if cfg.Telegram.DedupWindow < 0 {
		return fmt.Errorf("telegram.dedup_window must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := strings.ReplaceAll(os.Getenv(k), ",", ".")
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
