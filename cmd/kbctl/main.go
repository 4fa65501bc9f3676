package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/adapters/cli"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/bootstrap"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewTextLogger(os.Stderr, cfg.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := func(ctx context.Context) (*cli.Services, error) {
		app, err := bootstrap.NewWithOptions(ctx, cfg, bootstrap.Options{SkipQueue: true})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		if _, err := app.Tables.Reload(ctx); err != nil {
			slog.Warn("table_reload_failed", "error", err)
		}
		return &cli.Services{
			Loader:           app.Loader,
			Tables:           app.Tables,
			Retriever:        app.Retriever,
			Queries:          app.Orchestrator,
			Tools:            app.Orchestrator,
			KnowledgeBaseDir: cfg.KnowledgeBaseDir,
			UploadsDir:       cfg.StoragePath,
			SearchK:          cfg.RerankTopN,
			SQLLimit:         cfg.SQLQueryLimit,
			Close:            app.Close,
		}, nil
	}

	if err := cli.Execute(ctx, factory, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
