package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	httpadapter "github.com/Yeiad-Explore/studynet-counselor-agent/internal/adapters/http"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/config"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/usecase"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/chunking"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/extractor"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/llm/crossencoder"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/llm/ollama"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/queue/nats"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/repository/postgres"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/resilience"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/search/bm25"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/storage/localfs"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/tabular/sqlite"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/vector/memory"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	Store        *usecase.DocumentStore
	Retriever    *usecase.HybridRetriever
	Orchestrator *usecase.Orchestrator
	Loader       *usecase.KnowledgeBaseLoader
	Sessions     *usecase.SessionUseCase
	Tables       *sqlite.Engine

	closeFn func()
}

// Options select the optional parts of the graph. The command line tool
// runs without a queue connection.
type Options struct {
	SkipQueue bool
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	return NewWithOptions(ctx, cfg, Options{})
}

func NewWithOptions(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	conversations := postgres.NewConversationRepository(db)
	dataSources := postgres.NewDataSourceRepository(db)
	queryLogs := postgres.NewQueryLogRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var queue *nats.Queue
	if !opts.SkipQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
	}

	vocabulary, err := config.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		slog.Warn("vocabulary_file_ignored", "path", cfg.VocabularyFile, "error", err)
	}

	llmExecutor := resilience.NewExecutor(llmResilienceConfig(cfg))
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout,
		ResilienceExecutor: llmExecutor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	chat := ollama.NewChatModel(ollamaClient)

	var encoder ports.CrossEncoder
	if strings.TrimSpace(cfg.CrossEncoderURL) != "" {
		encoder = crossencoder.New(cfg.CrossEncoderURL, cfg.CrossEncoderModel, crossencoder.Options{
			APIKey:             cfg.CrossEncoderAPIKey,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
	}

	children, parents := chunkBackends(cfg, db)
	store := usecase.NewDocumentStore(
		children,
		parents,
		embedder,
		chunking.NewSplitter(cfg.ParentChunkSize, cfg.ParentChunkOverlap),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	)

	tables, err := sqlite.New(sqlite.Options{
		Directories:  []string{cfg.KnowledgeBaseDir, filepath.Join(cfg.StoragePath, usecase.TableStorageDir)},
		DefaultLimit: cfg.SQLQueryLimit,
		Logger:       slog.Default(),
	})
	if err != nil {
		closeQueue(queue)
		_ = db.Close()
		return nil, fmt.Errorf("init table engine: %w", err)
	}

	classifier := usecase.NewQueryClassifier(chat, vocabulary, cfg.EnhancerTimeout)
	enhancer := usecase.NewQueryEnhancer(chat, vocabulary, cfg.MaxQueryVariations, cfg.EnhancerTimeout)
	retriever := usecase.NewHybridRetriever(store, bm25.New(cfg.BM25K1, cfg.BM25B), encoder, enhancer, chat, usecase.RetrieverOptions{
		K:              cfg.RetrieverK,
		SemanticWeight: cfg.SemanticWeight,
		RRFK:           cfg.RRFK,
		RerankTimeout:  cfg.AgentToolTimeout,
		MinScore:       cfg.SimilarityThreshold,
	})
	orchestrator := usecase.NewOrchestrator(classifier, enhancer, retriever, tables, chat, conversations, dataSources, queryLogs, usecase.OrchestratorConfig{
		Limits:         agentLimits(cfg),
		SQLLimit:       cfg.SQLQueryLimit,
		SemanticWeight: cfg.SemanticWeight,
	})

	contentExtractor := extractor.NewRouter(storage)
	var messageQueue ports.MessageQueue
	if queue != nil {
		messageQueue = queue
	}

	app := &App{
		Config: cfg,
		Queue:  messageQueue,
		Repo:   repo,

		IngestUC:  usecase.NewIngestDocumentUseCase(repo, storage, messageQueue),
		ProcessUC: usecase.NewProcessDocumentUseCase(repo, storage, contentExtractor, store, retriever, tables, dataSources),

		Store:        store,
		Retriever:    retriever,
		Orchestrator: orchestrator,
		Loader:       usecase.NewKnowledgeBaseLoader(store, retriever, tables, contentExtractor, dataSources),
		Sessions:     usecase.NewSessionUseCase(conversations),
		Tables:       tables,

		closeFn: func() {
			closeQueue(queue)
			_ = tables.Close()
			_ = db.Close()
		},
	}
	return app, nil
}

// HTTPServices exposes the use cases in the shape the HTTP adapter wants.
func (a *App) HTTPServices() httpadapter.Services {
	return httpadapter.Services{
		Ingestor:      a.IngestUC,
		Documents:     a.Repo,
		Queries:       a.Orchestrator,
		Retriever:     a.Retriever,
		Tables:        a.Tables,
		Sessions:      a.Sessions,
		KnowledgeBase: a.Loader,
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// chunkBackends picks where child vectors and parent texts live. The memory
// backend keeps both in process and is meant for a single binary setup.
func chunkBackends(cfg config.Config, db *sql.DB) (ports.ChunkIndex, ports.ParentStore) {
	if strings.EqualFold(cfg.VectorBackend, "memory") {
		return memory.NewChunkIndex(), memory.NewParentStore()
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	return qdrant.NewWithExecutor(cfg.QdrantURL, cfg.QdrantCollection, executor), postgres.NewParentStore(db)
}

func agentLimits(cfg config.Config) domain.AgentLimits {
	return domain.AgentLimits{
		MaxIterations:   cfg.AgentMaxIterations,
		Timeout:         cfg.AgentTimeout,
		ToolTimeout:     cfg.AgentToolTimeout,
		ContextMessages: cfg.ConversationBufferSize,
		KnowledgeTopK:   cfg.RetrieverK,
	}
}

func llmResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	if cfg.LLMRetryMaxAttempts > 0 {
		out.RetryMaxAttempts = cfg.LLMRetryMaxAttempts
	}
	if cfg.LLMRetryInitialBackoff > 0 {
		out.RetryInitialBackoff = cfg.LLMRetryInitialBackoff
		out.RetryMaxBackoff = 8 * cfg.LLMRetryInitialBackoff
	}
	out.BreakerEnabled = cfg.LLMBreakerEnabled
	if cfg.LLMRateLimitRPS > 0 {
		out.RateLimit = cfg.LLMRateLimitRPS
		out.RateBurst = 1
	}
	return out
}

func closeQueue(queue *nats.Queue) {
	if queue != nil {
		queue.Close()
	}
}
