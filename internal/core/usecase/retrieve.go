package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/core/ports"
)

// StageConfig parameterizes the multi-stage retrieval policy and fusion.
type StageConfig struct {
	PrimaryKMajority   int // stage 1 k on the majority path
	PrimaryKMinority   int // stage 1 k on the minority path
	SecondaryKMajority int // stage 2 k on the majority path
	SecondaryKMinority int // stage 2 k on the minority path
	FallbackK          int // stage 3 k (majority path only)
	Stage2MinDocs      int // stage 2 runs while distinct docs stay below this
	Stage3MinDocs      int // stage 3 runs while distinct docs stay below this

	TopK            int     // final fused result size
	OverfetchFactor int     // per-signal over-fetch multiplier before fusion
	SemanticWeight  float64 // dense contribution
	KeywordWeight   float64 // sparse contribution
	MaxQueryChars   int
}

func DefaultStageConfig() StageConfig {
	return StageConfig{
		PrimaryKMajority:   6,
		PrimaryKMinority:   4,
		SecondaryKMajority: 4,
		SecondaryKMinority: 2,
		FallbackK:          2,
		Stage2MinDocs:      4,
		Stage3MinDocs:      3,
		TopK:               6,
		OverfetchFactor:    3,
		SemanticWeight:     0.7,
		KeywordWeight:      0.3,
		MaxQueryChars:      1_000_000,
	}
}

// Validate fails fast on configuration errors; invalid stage parameters are
// fatal at startup rather than per-query.
func (c StageConfig) Validate() error {
	for name, k := range map[string]int{
		"primary_k_majority":   c.PrimaryKMajority,
		"primary_k_minority":   c.PrimaryKMinority,
		"secondary_k_majority": c.SecondaryKMajority,
		"secondary_k_minority": c.SecondaryKMinority,
		"fallback_k":           c.FallbackK,
		"top_k":                c.TopK,
		"overfetch_factor":     c.OverfetchFactor,
	} {
		if k <= 0 {
			return domain.WrapError(domain.ErrInvalidConfig, "stage config", fmt.Errorf("%s must be positive, got %d", name, k))
		}
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return domain.WrapError(domain.ErrInvalidConfig, "stage config", fmt.Errorf("semantic_weight %f outside [0,1]", c.SemanticWeight))
	}
	if c.KeywordWeight < 0 || c.KeywordWeight > 1 {
		return domain.WrapError(domain.ErrInvalidConfig, "stage config", fmt.Errorf("keyword_weight %f outside [0,1]", c.KeywordWeight))
	}
	if c.SemanticWeight+c.KeywordWeight <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "stage config", fmt.Errorf("fusion weights must not both be zero"))
	}
	if c.Stage2MinDocs <= 0 || c.Stage3MinDocs <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "stage config", fmt.Errorf("minimum document thresholds must be positive"))
	}
	return nil
}

// stageSpec is one filtered retrieval pass. minDocsBelow == 0 means the
// stage always executes; otherwise it runs only while the accumulated
// distinct-document count is below the threshold.
type stageSpec struct {
	stage        domain.RetrievalStage
	category     domain.ProtocolCategory
	k            int
	minDocsBelow int
}

// stagePlan builds the staged policy for one category affinity. The
// minority path never mixes in majority-category content as a last resort.
func (c StageConfig) stagePlan(affinity domain.ProtocolCategory) []stageSpec {
	if affinity == domain.CategoryBisq1 {
		return []stageSpec{
			{stage: domain.StagePrimary, category: domain.CategoryBisq1, k: c.PrimaryKMinority},
			{stage: domain.StageSecondary, category: domain.CategoryGeneral, k: c.SecondaryKMinority, minDocsBelow: c.Stage2MinDocs},
		}
	}
	return []stageSpec{
		{stage: domain.StagePrimary, category: domain.CategoryBisq2, k: c.PrimaryKMajority},
		{stage: domain.StageSecondary, category: domain.CategoryGeneral, k: c.SecondaryKMajority, minDocsBelow: c.Stage2MinDocs},
		{stage: domain.StageFallback, category: domain.CategoryBisq1, k: c.FallbackK, minDocsBelow: c.Stage3MinDocs},
	}
}

// MetricsRecorder receives retrieval observations. Implementations must be
// safe for concurrent use; a nil recorder disables recording.
type MetricsRecorder interface {
	ObserveStage(stage domain.RetrievalStage, candidates int)
	ObserveRetrieve(category domain.ProtocolCategory, fused int, rewritten bool, duration time.Duration)
}

// RetrieveUseCase is the hybrid retrieval pipeline: query rewriting,
// protocol routing, staged dense+sparse candidate gathering, weighted score
// fusion with deduplication, and optional reranking.
type RetrieveUseCase struct {
	resolver ports.QueryResolver
	router   *ProtocolRouter
	embedder ports.Embedder
	dense    ports.VectorSearcher
	sparse   ports.KeywordSearcher
	rerank   *RerankStage
	cfg      StageConfig
	metrics  MetricsRecorder
	logger   *slog.Logger
}

func NewRetrieveUseCase(
	resolver ports.QueryResolver,
	embedder ports.Embedder,
	dense ports.VectorSearcher,
	sparse ports.KeywordSearcher,
	rerank *RerankStage,
	cfg StageConfig,
	metrics MetricsRecorder,
	logger *slog.Logger,
) (*RetrieveUseCase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		resolver: resolver,
		router:   NewProtocolRouter(),
		embedder: embedder,
		dense:    dense,
		sparse:   sparse,
		rerank:   rerank,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Retrieve runs the pipeline for one question. An empty candidate list is a
// defined empty-context outcome, not an error.
func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	history []domain.ChatTurn,
	hint domain.ProtocolCategory,
) (*ports.RetrievalResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))
	}
	if uc.cfg.MaxQueryChars > 0 && len(query) > uc.cfg.MaxQueryChars {
		query = query[:uc.cfg.MaxQueryChars]
	}

	outcome := uc.resolver.Resolve(ctx, query, history)
	affinity := uc.router.Route(outcome.Query, hint)

	queryVector := uc.embedQuery(ctx, outcome.Query)

	var denseAll, sparseAll []stageCandidate
	distinct := make(map[string]struct{})

	for _, spec := range uc.cfg.stagePlan(affinity) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if spec.minDocsBelow > 0 && len(distinct) >= spec.minDocsBelow {
			continue
		}

		denseDocs, sparseDocs := uc.runStage(ctx, outcome.Query, queryVector, spec)
		for _, doc := range denseDocs {
			denseAll = append(denseAll, stageCandidate{doc: doc, stage: spec.stage})
			distinct[doc.DocumentID] = struct{}{}
		}
		for _, doc := range sparseDocs {
			sparseAll = append(sparseAll, stageCandidate{doc: doc, stage: spec.stage})
			distinct[doc.DocumentID] = struct{}{}
		}
		if uc.metrics != nil {
			uc.metrics.ObserveStage(spec.stage, len(denseDocs)+len(sparseDocs))
		}
	}

	fused := fuseCandidates(denseAll, sparseAll, uc.cfg.SemanticWeight, uc.cfg.KeywordWeight, uc.cfg.TopK)

	if uc.rerank != nil {
		fused = uc.rerank.Apply(ctx, outcome.Query, fused)
	}

	if uc.metrics != nil {
		uc.metrics.ObserveRetrieve(affinity, len(fused), outcome.Rewritten, time.Since(start))
	}
	uc.logger.Debug("retrieval complete",
		"category", affinity,
		"rewritten", outcome.Rewritten,
		"distinct_candidates", len(distinct),
		"fused", len(fused),
	)

	return &ports.RetrievalResult{
		Candidates:    fused,
		ResolvedQuery: outcome.Query,
		Rewritten:     outcome.Rewritten,
		Category:      affinity,
	}, nil
}

// embedQuery degrades to sparse-only retrieval when the embedding backend
// is unavailable.
func (uc *RetrieveUseCase) embedQuery(ctx context.Context, query string) []float32 {
	if uc.embedder == nil {
		return nil
	}
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("query embedding failed, continuing sparse-only", "error", err)
		return nil
	}
	return vector
}

// runStage issues the dense and sparse queries for one stage concurrently.
// A failed side contributes no signal; it never fails the request.
func (uc *RetrieveUseCase) runStage(
	ctx context.Context,
	query string,
	queryVector []float32,
	spec stageSpec,
) ([]domain.RetrievedDocument, []domain.RetrievedDocument) {
	fetchK := spec.k * uc.cfg.OverfetchFactor
	filter := domain.SearchFilter{Category: spec.category}

	var denseDocs, sparseDocs []domain.RetrievedDocument
	g, gctx := errgroup.WithContext(ctx)

	if queryVector != nil && uc.dense != nil {
		g.Go(func() error {
			docs, err := uc.dense.Search(gctx, queryVector, fetchK, filter)
			if err != nil {
				uc.logger.Warn("dense search failed for stage",
					"stage", spec.stage, "category", spec.category, "error", err)
				return gctx.Err()
			}
			denseDocs = docs
			return nil
		})
	}
	g.Go(func() error {
		docs, err := uc.sparse.Search(gctx, query, fetchK, filter)
		if err != nil {
			uc.logger.Warn("sparse search failed for stage",
				"stage", spec.stage, "category", spec.category, "error", err)
			return gctx.Err()
		}
		sparseDocs = docs
		return nil
	})

	// Only cancellation propagates; per-side failures were already absorbed.
	if err := g.Wait(); err != nil {
		return nil, nil
	}
	return denseDocs, sparseDocs
}
