package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/Yeiad-Explore/studynet-counselor-agent/internal/adapters/http"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/bootstrap"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/logging"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	warmUp(ctx, app)

	router := httpadapter.NewRouter(cfg, app.HTTPServices(), metrics.NewHTTPServerMetrics("api")).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AgentTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		refreshKeywordIndex(groupCtx, app, cfg.KeywordRefreshInterval)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("api server error: %v", err)
	}
}

// warmUp restores state the API keeps in process. With the memory vector
// backend the knowledge base directory is imported here as well, since the
// worker's memory is not shared.
func warmUp(ctx context.Context, app *bootstrap.App) {
	if n, err := app.Tables.Reload(ctx); err != nil {
		slog.Warn("table_reload_failed", "error", err)
	} else {
		slog.Info("tables_reloaded", "tables", n)
	}

	if strings.EqualFold(app.Config.VectorBackend, "memory") {
		report, err := app.Loader.LoadDirectory(ctx, app.Config.KnowledgeBaseDir, true, domain.LoadOptions{})
		if err != nil {
			slog.Warn("knowledge_base_load_failed", "error", err)
		} else {
			slog.Info("knowledge_base_ready", "documents", report.DocumentsLoaded, "tables", report.TablesLoaded)
		}
	}

	if n, err := app.Retriever.RebuildKeywordIndex(ctx); err != nil {
		slog.Warn("keyword_index_rebuild_failed", "error", err)
	} else {
		slog.Info("keyword_index_rebuilt", "chunks", n)
	}
}

// refreshKeywordIndex picks up chunks the worker stored since the last
// rebuild. Zero interval disables it.
func refreshKeywordIndex(ctx context.Context, app *bootstrap.App, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rebuilt, err := app.Retriever.RefreshKeywordIndex(ctx)
			if err != nil {
				slog.Warn("keyword_index_refresh_failed", "error", err)
				continue
			}
			if rebuilt {
				if _, err := app.Tables.Reload(ctx); err != nil {
					slog.Warn("table_reload_failed", "error", err)
				}
			}
		}
	}
}
