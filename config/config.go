// Package config resolves runtime settings from the environment with
// documented fallbacks. Missing or invalid tuning values are silently
// replaced by defaults; only the credentials required to start at all
// (token, database) are surfaced as errors.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBillingDay anchors billing periods when no valid day is configured.
	DefaultBillingDay = 1
	// DefaultOrderRate is the per-order payroll rate used for contractor earnings.
	DefaultOrderRate = 500
	// DefaultScanInterval is the cadence of the SLA escalation scanner.
	DefaultScanInterval = time.Minute
)

// Config carries everything the bot process needs at startup.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	BillingDay    int
	OrderRate     int
	ScanInterval  time.Duration
}

// Load reads SUPPORTFLOW_* environment variables (TELEGRAM_TOKEN,
// DATABASE_URL, BILLING_DAY, ORDER_RATE, SCAN_INTERVAL).
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUPPORTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("billing-day", DefaultBillingDay)
	v.SetDefault("order-rate", DefaultOrderRate)
	v.SetDefault("scan-interval", DefaultScanInterval)

	cfg := Config{
		TelegramToken: v.GetString("telegram-token"),
		DatabaseURL:   v.GetString("database-url"),
		BillingDay:    v.GetInt("billing-day"),
		OrderRate:     v.GetInt("order-rate"),
		ScanInterval:  v.GetDuration("scan-interval"),
	}

	// Days past 28 would drift with month-end normalization; treat as invalid.
	if cfg.BillingDay < 1 || cfg.BillingDay > 28 {
		cfg.BillingDay = DefaultBillingDay
	}
	if cfg.OrderRate <= 0 {
		cfg.OrderRate = DefaultOrderRate
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: SUPPORTFLOW_DATABASE_URL is required")
	}

	return cfg, nil
}
