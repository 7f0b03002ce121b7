package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Notification trigger modes. The mode is a deployment-wide choice:
// either every subscriber gets a daily digest at a fixed local time,
// or everyone is polled on a fixed interval.
const (
	ModeDaily    = "daily"
	ModeInterval = "interval"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/currency.db"`
	TZ       string `envconfig:"TZ" default:"Europe/Moscow"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	NotifyMode     string        `envconfig:"NOTIFY_MODE" default:"daily"` // daily|interval
	DailyAt        string        `envconfig:"DAILY_AT" default:"07:00"`    // HH:MM in TZ
	NotifyInterval time.Duration `envconfig:"NOTIFY_INTERVAL" default:"1h"`

	RatesBaseURL string `envconfig:"RATES_BASE_URL" default:"https://www.cbr.ru/scripts"`
	BanksBaseURL string `envconfig:"BANKS_BASE_URL" default:"https://1000bankov.ru"`

	SendMaxAttempts int           `envconfig:"SEND_MAX_ATTEMPTS" default:"5"`
	SendBackoffMin  time.Duration `envconfig:"SEND_BACKOFF_MIN" default:"4s"`
	SendBackoffMax  time.Duration `envconfig:"SEND_BACKOFF_MAX" default:"10s"`
}

// Load reads .env (if present) and then the environment into Config.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.NotifyMode {
	case ModeDaily, ModeInterval:
	default:
		return fmt.Errorf("NOTIFY_MODE must be %q or %q, got %q", ModeDaily, ModeInterval, c.NotifyMode)
	}
	if _, err := time.LoadLocation(c.TZ); err != nil {
		return fmt.Errorf("TZ: %w", err)
	}
	if _, err := time.Parse("15:04", c.DailyAt); err != nil {
		return fmt.Errorf("DAILY_AT: expected HH:MM: %w", err)
	}
	if c.NotifyInterval < time.Minute {
		return fmt.Errorf("NOTIFY_INTERVAL must be at least 1m, got %s", c.NotifyInterval)
	}
	if c.SendMaxAttempts < 1 {
		return fmt.Errorf("SEND_MAX_ATTEMPTS must be positive, got %d", c.SendMaxAttempts)
	}
	return nil
}
