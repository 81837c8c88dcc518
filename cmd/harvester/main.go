package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/riskibarqy/fixture-harvester/internal/app"
	"github.com/riskibarqy/fixture-harvester/internal/config"
	"github.com/riskibarqy/fixture-harvester/internal/observability"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.NewJSON(logging.LevelInfo).Error("load .env", "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		logging.NewJSON(logging.LevelInfo).Error("load config", "error", err)
		return 1
	}

	logger := logging.NewJSON(cfg.LogLevel).With("service", cfg.ServiceName, "version", cfg.ServiceVersion)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("shutdown uptrace", "error", err)
		}
	}()

	stopProfiling, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		return 1
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Warn("stop pyroscope", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		return 1
	}
	defer func() {
		if err := harvester.Close(); err != nil {
			logger.Warn("close app", "error", err)
		}
	}()

	if cfg.Scheduled() {
		if err := harvester.RunScheduled(ctx); err != nil {
			logger.Error("scheduled mode stopped with error", "error", err)
			return 1
		}
		return 0
	}

	_, err = harvester.RunOnce(ctx)
	return runExitCode(logger, err)
}

// runExitCode maps a finished run to the process status. Only a failed
// publish is non-zero; per-run failures before publish leave the previous
// snapshot in place and are logged.
func runExitCode(logger *logging.Logger, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, usecase.ErrPublish):
		logger.Error("harvest not published", "error", err)
		return 1
	default:
		logger.Error("harvest aborted before publish, previous snapshot kept", "error", err)
		return 0
	}
}
