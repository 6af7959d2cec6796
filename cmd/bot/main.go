package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"feedrelay/internal/app"
	"feedrelay/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog := newLogger(cfg.LogLevel, cfg.LogFile)
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("start", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	log.Info("starting bot", "sessions", len(cfg.BotTokens), "database", cfg.DatabaseDriver)

	if err := a.Run(ctx); err != nil {
		log.Error("run", "error", err)
	}

	log.Info("bot stopped")
}

// newLogger builds a text logger on stderr, also writing to a rotated file
// when path is set.
func newLogger(level, path string) (*slog.Logger, func() error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, file)
		closeFn = file.Close
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn
}
