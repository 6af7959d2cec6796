// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported DATABASE_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// BotTokens holds one token per bot session, in fallback order.
	BotTokens      []string
	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string
	LogLevel       string
	LogFile        string
	AllowedUsers   []int64

	TelegraphToken     string
	TelegraphShortName string

	PollInterval     time.Duration
	PollInitialDelay time.Duration
	SendDelay        time.Duration
	FloodCooldown    time.Duration

	// StatusAddr is the listen address of the status endpoint; empty disables it.
	StatusAddr string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	tokens := splitList(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		BotTokens:          tokens,
		DatabaseDriver:     envOrDefault("DATABASE_DRIVER", DriverSQLite),
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/bot.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		TelegraphToken:     os.Getenv("TELEGRAPH_ACCESS_TOKEN"),
		TelegraphShortName: envOrDefault("TELEGRAPH_SHORT_NAME", "feedrelay"),
		StatusAddr:         os.Getenv("STATUS_ADDR"),
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q, use sqlite or postgres", cfg.DatabaseDriver)
	}

	for _, s := range splitList(os.Getenv("ALLOWED_USERS")) {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"POLL_INTERVAL", 4 * time.Hour, &cfg.PollInterval},
		{"POLL_INITIAL_DELAY", 4 * time.Minute, &cfg.PollInitialDelay},
		{"SEND_DELAY", 3 * time.Second, &cfg.SendDelay},
		{"FLOOD_COOLDOWN", 30 * time.Second, &cfg.FloodCooldown},
	}
	for _, d := range durations {
		v, err := durationOrDefault(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DatabaseDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a duration like 30s or 4h", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
