package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/bootstrap"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/watch/fswatch"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/logging"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
		return app.Queue.SubscribeDocumentIngested(groupCtx, func(handlerCtx context.Context, documentID string) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()
			if doc, err := app.Repo.GetByID(processCtx, documentID); err == nil {
				workerMetrics.ObserveQueueLag(serviceName, time.Since(doc.CreatedAt))
			}

			start := time.Now()
			workerMetrics.StartDocument()
			err := app.ProcessUC.ProcessByID(processCtx, documentID)
			workerMetrics.FinishDocument(serviceName, time.Since(start), err)
			return err
		})
	})

	if cfg.KBWatch {
		group.Go(func() error {
			report, err := app.Loader.LoadDirectory(groupCtx, cfg.KnowledgeBaseDir, true, domain.LoadOptions{})
			if err != nil {
				slog.Warn("knowledge_base_load_failed", "error", err)
			} else {
				slog.Info("knowledge_base_ready", "documents", report.DocumentsLoaded, "tables", report.TablesLoaded, "skipped", report.Skipped)
			}
			watcher := fswatch.New(cfg.KnowledgeBaseDir, app.Loader, fswatch.Options{
				HardKB:   true,
				Debounce: cfg.KBWatchDebounce,
				OnImport: func(_ string, loaded bool, err error) {
					workerMetrics.RecordWatchImport(serviceName, loaded, err)
				},
			})
			return watcher.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
