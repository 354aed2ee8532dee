// Package app wires the stores, the content pipeline, the background
// workers and the service facade into one runnable unit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fparisotto/bookmark-hub-sub000/db"
	"github.com/fparisotto/bookmark-hub-sub000/internal/config"
	"github.com/fparisotto/bookmark-hub-sub000/internal/content"
	"github.com/fparisotto/bookmark-hub-sub000/internal/llm"
	"github.com/fparisotto/bookmark-hub-sub000/internal/rag"
	"github.com/fparisotto/bookmark-hub-sub000/internal/readability"
	"github.com/fparisotto/bookmark-hub-sub000/internal/service"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
	"github.com/fparisotto/bookmark-hub-sub000/internal/text"
	"github.com/fparisotto/bookmark-hub-sub000/internal/worker"
)

// App owns the database pool, the workers and the service facade.
type App struct {
	Service *service.Service

	pool    *pgxpool.Pool
	workers []runnable
	logger  *slog.Logger
	wg      sync.WaitGroup
}

type runnable interface {
	Run(ctx context.Context)
}

// New connects to PostgreSQL, runs pending migrations and builds the whole
// object graph. Close releases the pool.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	app, err := build(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

// build assembles the object graph on an existing pool. Split from New so
// tests can inject a testcontainers-backed pool.
func build(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*App, error) {
	tasks, err := store.NewTaskStore(pool, cfg.TaskLeaseWindow, cfg.TaskRetryCeiling, logger)
	if err != nil {
		return nil, fmt.Errorf("creating task store: %w", err)
	}
	bookmarks, err := store.NewBookmarkStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating bookmark store: %w", err)
	}
	chunks, err := store.NewChunkStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}
	sessions, err := store.NewSessionStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	ollama, err := llm.NewClient(cfg.OllamaHost, cfg.GenerationModel, cfg.EmbeddingModel, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}

	var extractor content.Extractor
	if cfg.ReadabilityURL != "" {
		extractor, err = readability.NewClient(cfg.ReadabilityURL)
		if err != nil {
			return nil, fmt.Errorf("creating readability client: %w", err)
		}
	} else {
		extractor = readability.NewLocal()
	}

	static, err := content.NewStaticStore(cfg.StaticRoot)
	if err != nil {
		return nil, fmt.Errorf("creating static store: %w", err)
	}
	processor, err := content.NewProcessor(extractor, bookmarks, static, logger)
	if err != nil {
		return nil, fmt.Errorf("creating content processor: %w", err)
	}
	chunker, err := text.NewChunker(text.DefaultWindowTokens, text.DefaultOverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	submitted := worker.NewSignal()
	tagWake := worker.NewSignal()
	summaryWake := worker.NewSignal()
	embedWake := worker.NewSignal()
	enriched := worker.NewFanout(tagWake, summaryWake, embedWake)

	ingestion, err := worker.NewIngestion(tasks, processor, bookmarks,
		submitted, enriched, cfg.IngestionInterval, cfg.DequeueBatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion worker: %w", err)
	}
	tagger, err := worker.NewTagger(bookmarks, ollama, chunker,
		tagWake, cfg.EnrichmentInterval, cfg.EnrichmentBatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating tag worker: %w", err)
	}
	summarizer, err := worker.NewSummarizer(bookmarks, ollama, chunker,
		summaryWake, cfg.EnrichmentInterval, cfg.EnrichmentBatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating summary worker: %w", err)
	}
	embedder, err := worker.NewEmbeddingWorker(bookmarks, chunks, ollama, chunker,
		embedWake, cfg.EnrichmentInterval, cfg.EnrichmentBatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding worker: %w", err)
	}

	engine, err := rag.NewEngine(sessions, chunks, ollama, ollama,
		cfg.RagMaxChunks, cfg.RagSimilarityThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rag engine: %w", err)
	}

	svc, err := service.New(tasks, bookmarks, sessions, engine, submitted, logger)
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}

	return &App{
		Service: svc,
		pool:    pool,
		workers: []runnable{ingestion, tagger, summarizer, embedder},
		logger:  logger,
	}, nil
}

// Run starts every worker and blocks until ctx is canceled and all workers
// have returned.
func (a *App) Run(ctx context.Context) {
	a.logger.Info("starting workers", "count", len(a.workers))
	for _, w := range a.workers {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			w.Run(ctx)
		}()
	}
	a.wg.Wait()
	a.logger.Info("all workers stopped")
}

// Close releases the database pool. Call after Run has returned.
func (a *App) Close() {
	a.pool.Close()
}
