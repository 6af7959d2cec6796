package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_DRIVER", "DATABASE_PATH", "DATABASE_URL", "LOG_LEVEL",
	"LOG_FILE", "ALLOWED_USERS", "TELEGRAPH_ACCESS_TOKEN", "TELEGRAPH_SHORT_NAME",
	"POLL_INTERVAL", "POLL_INITIAL_DELAY", "SEND_DELAY", "FLOOD_COOLDOWN", "STATUS_ADDR",
}

func defaults(tokens ...string) *Config {
	return &Config{
		BotTokens:          tokens,
		DatabaseDriver:     DriverSQLite,
		DatabasePath:       "./data/bot.db",
		LogLevel:           "info",
		TelegraphShortName: "feedrelay",
		PollInterval:       4 * time.Hour,
		PollInitialDelay:   4 * time.Minute,
		SendDelay:          3 * time.Second,
		FloodCooldown:      30 * time.Second,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:    "blank token list",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": " , "},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: func() *Config { return defaults("test-token") },
		},
		{
			name: "several tokens",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "a, b ,c"},
			want: func() *Config { return defaults("a", "b", "c") },
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"DATABASE_DRIVER":        "postgres",
				"DATABASE_PATH":          "/tmp/bot.db",
				"DATABASE_URL":           "postgres://relay@localhost/relay",
				"LOG_LEVEL":              "debug",
				"LOG_FILE":               "/var/log/relay.log",
				"ALLOWED_USERS":          "111,222,333",
				"TELEGRAPH_ACCESS_TOKEN": "tg",
				"TELEGRAPH_SHORT_NAME":   "gallery",
				"POLL_INTERVAL":          "30m",
				"POLL_INITIAL_DELAY":     "0s",
				"SEND_DELAY":             "1s",
				"FLOOD_COOLDOWN":         "1m",
				"STATUS_ADDR":            ":8080",
			},
			want: func() *Config {
				return &Config{
					BotTokens:          []string{"tok"},
					DatabaseDriver:     DriverPostgres,
					DatabasePath:       "/tmp/bot.db",
					DatabaseURL:        "postgres://relay@localhost/relay",
					LogLevel:           "debug",
					LogFile:            "/var/log/relay.log",
					AllowedUsers:       []int64{111, 222, 333},
					TelegraphToken:     "tg",
					TelegraphShortName: "gallery",
					PollInterval:       30 * time.Minute,
					PollInitialDelay:   0,
					SendDelay:          time.Second,
					FloodCooldown:      time.Minute,
					StatusAddr:         ":8080",
				}
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "postgres without url",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_DRIVER":    "postgres",
			},
			wantErr: true,
		},
		{
			name: "unknown driver",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_DRIVER":    "mysql",
			},
			wantErr: true,
		},
		{
			name: "invalid duration",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"SEND_DELAY":         "3 seconds",
			},
			wantErr: true,
		},
		{
			name: "zero poll interval",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"POLL_INTERVAL":      "0s",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	sqlite := &Config{DatabaseDriver: DriverSQLite, DatabasePath: "/data/bot.db", DatabaseURL: "ignored"}
	if diff := cmp.Diff("/data/bot.db", sqlite.DSN()); diff != "" {
		t.Errorf("sqlite DSN mismatch (-want +got):\n%s", diff)
	}
	pg := &Config{DatabaseDriver: DriverPostgres, DatabasePath: "ignored", DatabaseURL: "postgres://x"}
	if diff := cmp.Diff("postgres://x", pg.DSN()); diff != "" {
		t.Errorf("postgres DSN mismatch (-want +got):\n%s", diff)
	}
}
