// Command cutflowd runs the ingestion service: HTTP API, extraction
// pipeline, webhook delivery, and the background re-extraction pool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beerberidie/cutflow/internal/async"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/extract"
	"github.com/beerberidie/cutflow/internal/pipeline"
	"github.com/beerberidie/cutflow/internal/repository"
	"github.com/beerberidie/cutflow/internal/server"
	"github.com/beerberidie/cutflow/internal/storage"
	"github.com/beerberidie/cutflow/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	repo := repository.NewIngestRepository(db, logger)

	store, err := storage.NewManager(cfg.Storage.Root, logger)
	if err != nil {
		logger.Error("initializing storage", "error", err)
		os.Exit(1)
	}

	whStore, err := webhook.OpenStore(cfg.Webhook.QueueDBPath)
	if err != nil {
		logger.Error("opening webhook queue store", "error", err)
		os.Exit(1)
	}
	defer whStore.Close()

	notifier := webhook.NewNotifier(cfg.Webhook, whStore, logger)
	monitor := webhook.NewMonitor(whStore)

	var queueWorker *webhook.QueueWorker
	if notifier.Enabled() {
		queueWorker = webhook.NewQueueWorker(whStore, notifier, cfg.Webhook.ScanInterval, logger)
		queueWorker.Start()
		defer queueWorker.Stop()
	} else {
		logger.Info("webhook delivery disabled, no WEBHOOK_URL configured")
	}

	go pruneMetricsLoop(ctx, whStore, cfg.Webhook.MetricRetention, logger)

	ocr := extract.NewOCREngine(extract.OCRConfig{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Language,
		TessdataDir: cfg.OCR.TessdataDir,
	}, logger)
	if !ocr.Available() {
		logger.Warn("tesseract not found, image text recognition disabled", "cmd", cfg.OCR.Tesseract)
	}

	proc := pipeline.NewProcessor(
		logger,
		extract.NewRegistry(ocr),
		store,
		repo,
		notifier,
		cfg.Server.MaxFileMB,
		cfg.Worker.Workers,
	)

	queue := async.NewExtractQueue(proc, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.ProcessTimeout),
	)

	srv := server.New(logger, proc, repo, queue, monitor, func(ctx context.Context) error {
		return repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, logger)
	})

	err = srv.Start(ctx, cfg.Server.Addr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)

	if err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// pruneMetricsLoop trims old delivery metrics once an hour.
func pruneMetricsLoop(ctx context.Context, store *webhook.Store, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneMetrics(retention)
			if err != nil {
				logger.Error("pruning webhook metrics", "error", err)
			} else if n > 0 {
				logger.Info("pruned webhook metrics", "removed", n)
			}
		}
	}
}
