package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"github.com/faizmisman/dosm-faq-chatbot/internal/generator"
	"github.com/faizmisman/dosm-faq-chatbot/internal/ingest"
	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"github.com/faizmisman/dosm-faq-chatbot/middleware"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"github.com/faizmisman/dosm-faq-chatbot/repositories/postgres"
	"github.com/faizmisman/dosm-faq-chatbot/services/querylog"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when no database is configured
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Embeddings repositories.EmbeddingRepository
	QueryLogs  repositories.QueryLogRepository
	TxManager  repositories.TransactionManager

	// Retrieval
	Embedder       embedding.Embedder
	IndexFactory   *vectorindex.Factory // persisted store first, then the dataset
	RebuildFactory *vectorindex.Factory // dataset only
	Generator      generator.Generator
	Pipeline       *rag.Pipeline

	// Services
	QueryLogService *querylog.Service
	Counters        *observability.Counters
	APIKey          *middleware.APIKeyMiddleware
	Watcher         *ingest.Watcher

	chromaClient chromago.Client
	indexBuilder vectorindex.Builder
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Counters: observability.NewCounters(),
		APIKey:   middleware.NewAPIKeyMiddleware(cfg.Auth.APIKey, logger),
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initEmbedder(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	deps.initIndexFactory(ctx, cfg)
	deps.initGenerator(ctx, cfg)
	deps.initPipeline(cfg)

	if err := deps.initQueryLog(); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize query log: %w", err)
	}

	if cfg.VectorStore.WatchDataset && cfg.RAG.DatasetPath != "" {
		deps.Watcher = ingest.NewWatcher(cfg.RAG.DatasetPath, deps.Pipeline, ingest.DefaultDebounce, logger)
	}

	if !deps.APIKey.Enabled() {
		logger.Warn("API_KEY not set, /predict and /admin are open")
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.Strings("index_sources", deps.IndexFactory.Sources()),
		zap.String("embedder", deps.Embedder.Name()))
	return deps, nil
}

// initDatabase opens PostgreSQL when configured. No database is not an error.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("no database configured, query logging and pgvector disabled")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		_ = factory.Close()
		d.RepoFactory, d.DB = nil, nil
		return err
	}

	repos := factory.NewRepositories()
	d.Embeddings = repos.Embeddings
	d.QueryLogs = repos.QueryLogs
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) initEmbedder(cfg *config.Config) error {
	embedder, err := embedding.New(embedding.Config{
		Provider:      cfg.Embedding.Provider,
		Model:         cfg.Embedding.Model,
		Dimension:     cfg.Embedding.Dimension,
		OllamaURL:     cfg.Embedding.OllamaURL,
		OpenAIAPIKey:  cfg.Generator.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Generator.OpenAIBaseURL,
	})
	if err != nil {
		return err
	}
	d.Embedder = embedder
	return nil
}

// initIndexFactory orders the index sources for the configured backend:
// the persisted store first, then a fresh build from the dataset. Builds
// fall back to a lexical index when embedding fails. Rebuilds skip the
// persisted store so they always re-read the dataset.
func (d *Dependencies) initIndexFactory(ctx context.Context, cfg *config.Config) {
	expectedDim := cfg.Embedding.Dimension
	memory := &vectorindex.EmbeddingBuilder{Embedder: d.Embedder, ExpectedDim: expectedDim, Logger: d.Logger}

	var sources []vectorindex.Source
	var builder vectorindex.Builder = memory

	switch cfg.VectorStore.Backend {
	case config.BackendSnapshot:
		path := cfg.VectorStore.SnapshotPath()
		sources = append(sources, &vectorindex.SnapshotSource{Path: path, Embedder: d.Embedder, Logger: d.Logger})
		builder = &vectorindex.SnapshotBuilder{Inner: memory, Path: path, Logger: d.Logger}

	case config.BackendPGVector:
		if d.Embeddings == nil {
			d.Logger.Warn("pgvector backend selected without a database, using in-memory index")
			break
		}
		sources = append(sources, &vectorindex.PGVectorSource{Repo: d.Embeddings, Embedder: d.Embedder, Logger: d.Logger})
		builder = &vectorindex.PGVectorBuilder{
			Repo:        d.Embeddings,
			Tx:          d.TxManager,
			Embedder:    d.Embedder,
			ExpectedDim: expectedDim,
			Source:      cfg.RAG.DatasetSource,
			Logger:      d.Logger,
		}

	case config.BackendChroma:
		client, collection, err := vectorindex.ConnectChroma(ctx, cfg.VectorStore.ChromaURL, cfg.VectorStore.ChromaCollection)
		if err != nil {
			d.Logger.Warn("chroma unavailable, using in-memory index", zap.Error(err))
			break
		}
		d.chromaClient = client
		sources = append(sources, &vectorindex.ChromaSource{
			URL:        cfg.VectorStore.ChromaURL,
			Collection: cfg.VectorStore.ChromaCollection,
			Embedder:   d.Embedder,
			Logger:     d.Logger,
		})
		builder = &vectorindex.ChromaBuilder{
			Client:      client,
			Collection:  collection,
			Embedder:    d.Embedder,
			ExpectedDim: expectedDim,
			Source:      cfg.RAG.DatasetSource,
			Logger:      d.Logger,
		}
	}

	d.indexBuilder = builder
	fromDataset := &vectorindex.DatasetSource{
		Path:      cfg.RAG.DatasetPath,
		ChunkSize: cfg.RAG.ChunkSize,
		Builder:   &vectorindex.FallbackBuilder{Primary: builder, Logger: d.Logger},
		Logger:    d.Logger,
	}
	sources = append(sources, fromDataset)

	d.IndexFactory = vectorindex.NewFactory(d.Logger, sources...)
	d.RebuildFactory = vectorindex.NewFactory(d.Logger, fromDataset)
}

// initGenerator builds the external generator when it would be called.
// A generator that cannot be built leaves the template answer in place.
func (d *Dependencies) initGenerator(ctx context.Context, cfg *config.Config) {
	if !cfg.Generator.Enabled || cfg.Generator.StubAnswer != "" {
		return
	}

	gen, err := generator.New(ctx, generator.Config{
		Provider:      cfg.Generator.Provider,
		Model:         cfg.Generator.Model,
		OpenAIAPIKey:  cfg.Generator.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Generator.OpenAIBaseURL,
		GeminiAPIKey:  cfg.Generator.GeminiAPIKey,
	})
	if err != nil {
		d.Logger.Warn("generator unavailable, answers will use the template", zap.Error(err))
		return
	}
	d.Generator = gen
	d.Logger.Info("generator configured", zap.String("generator", gen.Name()))
}

func (d *Dependencies) initPipeline(cfg *config.Config) {
	d.Pipeline = rag.New(d.IndexFactory, d.Generator, rag.Options{
		Threshold:        cfg.RAG.ConfidenceThreshold,
		TopK:             cfg.RAG.TopK,
		Source:           cfg.RAG.DatasetSource,
		SnippetMaxLength: cfg.RAG.SnippetMaxLength,
		GeneratorEnabled: cfg.Generator.Enabled,
		StubAnswer:       cfg.Generator.StubAnswer,
		GeneratorTimeout: cfg.Generator.Timeout,
		RebuildOpener:    d.RebuildFactory,
	}, d.Logger)
}

func (d *Dependencies) initQueryLog() error {
	if d.QueryLogs == nil {
		return nil
	}
	d.QueryLogService = querylog.NewService(d.QueryLogs, d.Logger, querylog.DefaultConfig())
	return d.QueryLogService.Start()
}

// IndexBuilder returns the builder for the configured backend without the
// lexical fallback. Offline ingestion uses it so failures surface.
func (d *Dependencies) IndexBuilder() vectorindex.Builder {
	return d.indexBuilder
}

// SQLDB returns the raw pool, or nil when no database is configured.
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Start warms the index and starts the dataset watcher. A failed warm-up
// is logged; queries refuse until a rebuild succeeds.
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.Pipeline.Warm(ctx); err != nil {
		d.Logger.Warn("index warm-up failed", zap.Error(err))
	}
	if d.Watcher != nil {
		if err := d.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start dataset watcher: %w", err)
		}
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Watcher != nil {
		d.Watcher.Stop()
	}

	if d.QueryLogService != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.QueryLogService.Stop(timeout); err != nil && !errors.Is(err, querylog.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop query log: %w", err))
		}
	}

	if d.Pipeline != nil {
		if err := d.Pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index: %w", err))
		}
	}

	if d.chromaClient != nil {
		if err := d.chromaClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close chroma client: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
