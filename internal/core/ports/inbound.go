package ports

import (
	"context"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// RetrievalResult carries the ranked context together with the resolved query,
// so the answer-generation collaborator can show how the question was read.
type RetrievalResult struct {
	Candidates    []domain.ScoredCandidate
	ResolvedQuery string
	Rewritten     bool
	Category      domain.ProtocolCategory
}

// SupportRetriever is the inbound contract of the retrieval core: the single
// logical operation consumed by the answer-generation component. An empty
// candidate list is a defined outcome, not an error.
type SupportRetriever interface {
	Retrieve(ctx context.Context, query string, history []domain.ChatTurn, hint domain.ProtocolCategory) (*RetrievalResult, error)
}

// CorpusIndexer rebuilds the sparse index from a fresh corpus snapshot.
// Readers observe either the fully-old or fully-new snapshot.
type CorpusIndexer interface {
	Reindex(docs []domain.Document)
}
