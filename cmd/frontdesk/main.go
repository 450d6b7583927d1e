package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/frontdesk/pkg/config"
	"github.com/harunnryd/frontdesk/pkg/logging"
	"github.com/harunnryd/frontdesk/pkg/redact"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "frontdesk.yaml", "path to the YAML config file (empty for env only)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load env:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := logging.InitLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	redact.SetEnabled(cfg.Privacy.RedactPII)
	logger.Info("logger_initialized", "level", cfg.LogLevel, "format", cfg.LogFormat, "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("runner_stopped_with_error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}
