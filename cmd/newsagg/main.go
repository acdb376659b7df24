package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/newsagg/internal/app"
	"github.com/deusflow/newsagg/internal/config"
	"github.com/deusflow/newsagg/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run one ingestion pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log, *once)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Storage is closed before it returns.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger, once bool) int {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	if once {
		r, err := a.RunOnce(ctx)
		if err != nil {
			log.Error("Ingestion failed", "error", err, "per_source_errors", r.Errors)
			return 1
		}
		log.Info("Ingestion done", "run_id", r.RunID, "inserted", r.Inserted, "duplicates", r.Duplicates)
		return 0
	}

	if err := a.Run(ctx); err != nil {
		log.Error("Service stopped with error", "error", err)
		return 1
	}
	return 0
}
