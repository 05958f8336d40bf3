package ports

import (
	"context"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// Embedder builds a vector for the resolved query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher issues similarity queries against the external vector
// backend. Results below the backend's configured score threshold are
// already discarded.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
}

// KeywordSearcher scores a query lexically (BM25) against the in-process
// corpus snapshot.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
}

// QueryResolver disambiguates a follow-up query against prior turns.
// It never fails: on any internal error the outcome carries the original
// query with Rewritten=false.
type QueryResolver interface {
	Resolve(ctx context.Context, query string, history []domain.ChatTurn) domain.RewriteOutcome
}

// CompletionModel is a bounded-timeout text-completion call, used by the
// rewriter's model-assisted track and the optional reranker.
type CompletionModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Reranker reorders a small top-k using higher-fidelity token-level matching.
// It must not introduce documents absent from its input.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.ScoredCandidate, topM int) ([]domain.ScoredCandidate, error)
}

// CorpusSource reads the document corpus. Documents are created by the
// external ingestion pipeline and are read-only here.
type CorpusSource interface {
	LoadDocuments(ctx context.Context) ([]domain.Document, error)
	CorpusVersion(ctx context.Context) (string, error)
}

// CorpusEvents publishes and consumes corpus-changed notifications that
// trigger a wholesale vocabulary rebuild.
type CorpusEvents interface {
	PublishCorpusUpdated(ctx context.Context, version string) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context, string) error) error
}
