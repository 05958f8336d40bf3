// Package bootstrap wires configuration, adapters and the retrieval use
// case into a runnable api application.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bisq-support/retrieval/internal/config"
	"github.com/bisq-support/retrieval/internal/core/ports"
	"github.com/bisq-support/retrieval/internal/core/usecase"
	"github.com/bisq-support/retrieval/internal/infrastructure/llm/ollama"
	"github.com/bisq-support/retrieval/internal/infrastructure/queue/nats"
	"github.com/bisq-support/retrieval/internal/infrastructure/repository/postgres"
	"github.com/bisq-support/retrieval/internal/infrastructure/resilience"
	"github.com/bisq-support/retrieval/internal/infrastructure/vector/qdrant"
	"github.com/bisq-support/retrieval/internal/observability/metrics"
	"github.com/bisq-support/retrieval/internal/rewrite"
	"github.com/bisq-support/retrieval/internal/sparse"
)

type App struct {
	Config config.Config

	Retriever   ports.SupportRetriever
	Events      *nats.Events
	HTTPMetrics *metrics.HTTPServerMetrics

	corpus *postgres.CorpusRepository
	engine *sparse.Engine
	logger *slog.Logger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	corpus := postgres.NewCorpusRepository(db)

	events, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init corpus events: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	completer := ollama.NewCompleter(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		ScoreThreshold:     cfg.QdrantScoreThreshold,
		ResilienceExecutor: executor,
	})

	engine := sparse.NewEngine(sparse.Params{
		K1:           cfg.BM25K1,
		B:            cfg.BM25B,
		MaxVocabSize: cfg.MaxVocabSize,
	}, logger)

	docs, err := corpus.LoadDocuments(ctx)
	if err != nil {
		events.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	engine.Reindex(docs)

	synonyms, err := rewrite.LoadSynonyms(cfg.SynonymsPath)
	if err != nil {
		events.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load synonyms: %w", err)
	}
	resolver := rewrite.NewResolver(rewrite.Config{
		Enabled:         cfg.RewriteEnabled,
		Timeout:         cfg.RewriteTimeout,
		MaxTurns:        cfg.RewriteMaxTurns,
		CacheSize:       cfg.RewriteCacheSize,
		CacheTTL:        cfg.RewriteCacheTTL,
		ModelRatePerSec: cfg.RewriteModelRate,
		Synonyms:        synonyms,
	}, completer, logger)

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	retrievalMetrics := metrics.NewRetrievalMetrics("api", httpMetrics.Registry())

	rerankStage := usecase.NewRerankStage(usecase.RerankConfig{
		Enabled: cfg.RerankEnabled,
		TopN:    cfg.RerankTopN,
		TopM:    cfg.RerankTopM,
	}, func() (ports.Reranker, error) {
		return ollama.NewReranker(ollamaClient), nil
	}, logger)

	retriever, err := usecase.NewRetrieveUseCase(
		resolver,
		embedder,
		vectorDB,
		engine,
		rerankStage,
		usecase.StageConfig{
			PrimaryKMajority:   cfg.PrimaryKMajority,
			PrimaryKMinority:   cfg.PrimaryKMinority,
			SecondaryKMajority: cfg.SecondaryKMajority,
			SecondaryKMinority: cfg.SecondaryKMinority,
			FallbackK:          cfg.FallbackK,
			Stage2MinDocs:      cfg.Stage2MinDocs,
			Stage3MinDocs:      cfg.Stage3MinDocs,
			TopK:               cfg.TopK,
			OverfetchFactor:    cfg.OverfetchFactor,
			SemanticWeight:     cfg.SemanticWeight,
			KeywordWeight:      cfg.KeywordWeight,
			MaxQueryChars:      cfg.MaxQueryChars,
		},
		retrievalMetrics,
		logger,
	)
	if err != nil {
		events.Close()
		_ = db.Close()
		return nil, fmt.Errorf("build retrieve use case: %w", err)
	}

	return &App{
		Config:      cfg,
		Retriever:   retriever,
		Events:      events,
		HTTPMetrics: httpMetrics,
		corpus:      corpus,
		engine:      engine,
		logger:      logger,
		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

// WatchCorpusUpdates blocks consuming corpus-updated events, rebuilding
// the keyword index on each one. Intended to run in its own goroutine for
// the lifetime of the api process.
func (a *App) WatchCorpusUpdates(ctx context.Context) error {
	return a.Events.SubscribeCorpusUpdated(ctx, func(handlerCtx context.Context, version string) error {
		docs, err := a.corpus.LoadDocuments(handlerCtx)
		if err != nil {
			return fmt.Errorf("reload corpus for version %s: %w", version, err)
		}
		a.engine.Reindex(docs)
		a.logger.Info("corpus reindexed", "version", version, "documents", len(docs))
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
