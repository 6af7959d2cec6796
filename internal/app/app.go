// Package app holds the process-wide runtime: the store, the bot sessions
// and everything that runs on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"feedrelay/internal/bot"
	"feedrelay/internal/config"
	"feedrelay/internal/delivery"
	"feedrelay/internal/fetcher"
	"feedrelay/internal/scheduler"
	"feedrelay/internal/status"
	"feedrelay/internal/storage"
	"feedrelay/internal/telegraph"
)

// App is the runtime object shared by the scheduler and the command handlers.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *storage.SQL
	engine    *delivery.Engine
	sessions  []*bot.Session
	bots      []*bot.Bot
	scheduler *scheduler.Scheduler
	status    *status.Server
}

// New opens the store, authenticates every bot session and wires the
// delivery pipeline.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if cfg.DatabaseDriver == config.DriverSQLite {
		if err := EnsureDataDir(cfg.DatabasePath); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{cfg: cfg, log: log, store: store}
	if err := a.wire(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	publisher := telegraph.New(httpClient, a.cfg.TelegraphToken)
	if publisher.Token() == "" {
		token, err := publisher.CreateAccount(ctx, a.cfg.TelegraphShortName, a.cfg.TelegraphShortName)
		if err != nil {
			return fmt.Errorf("create telegraph account: %w", err)
		}
		a.log.Warn("created a telegraph account; set TELEGRAPH_ACCESS_TOKEN to keep publishing under it",
			"access_token", token)
	}

	a.engine = delivery.New(fetcher.New(httpClient), publisher, a.store, a.log, delivery.Options{
		SendDelay:     a.cfg.SendDelay,
		FloodCooldown: a.cfg.FloodCooldown,
	})

	sessions := make([]delivery.Session, 0, len(a.cfg.BotTokens))
	for i, token := range a.cfg.BotTokens {
		s, err := bot.Dial(token, a.log)
		if err != nil {
			return fmt.Errorf("bot session %d: %w", i+1, err)
		}
		a.log.Info("bot session ready", "bot", s.Name())
		a.sessions = append(a.sessions, s)
		sessions = append(sessions, s)
	}

	a.scheduler = scheduler.New(a.store, a.engine, sessions, a.log)
	a.scheduler.SetIntervals(a.cfg.PollInitialDelay, a.cfg.PollInterval)

	for _, s := range a.sessions {
		a.bots = append(a.bots, bot.New(s, a.store, a.scheduler, a.engine, a.cfg, httpClient))
	}

	if a.cfg.StatusAddr != "" {
		a.status = status.New(a.cfg.StatusAddr, a.store, a.log)
	}
	return nil
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.scheduler.Run(ctx)
		return nil
	})
	for _, b := range a.bots {
		g.Go(func() error {
			b.Run(ctx)
			return nil
		})
	}
	if a.status != nil {
		g.Go(func() error {
			return a.status.Run(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// EnsureDataDir creates the parent directory of a SQLite database file.
func EnsureDataDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	return nil
}
