package domain

// ChatTurn is one prior message of the conversation, newest last.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RetrievalStage names the multi-stage pass that produced a candidate.
type RetrievalStage string

const (
	StagePrimary   RetrievalStage = "primary"
	StageSecondary RetrievalStage = "secondary"
	StageFallback  RetrievalStage = "fallback"
)

// RetrievedDocument is a raw candidate from a single signal (dense or sparse)
// before fusion. Score semantics depend on the signal: cosine similarity in
// [0,1] for dense, unbounded BM25 for sparse.
type RetrievedDocument struct {
	DocumentID string           `json:"document_id"`
	Title      string           `json:"title"`
	Type       DocumentType     `json:"type"`
	Category   ProtocolCategory `json:"category"`
	Text       string           `json:"text"`
	Score      float64          `json:"score"`
}

// ScoredCandidate is one fused, ranked result of a retrieval request.
// Transient: one instance per query per candidate, never persisted.
type ScoredCandidate struct {
	DocumentID  string           `json:"document_id"`
	Title       string           `json:"title"`
	Type        DocumentType     `json:"type"`
	Category    ProtocolCategory `json:"category"`
	Text        string           `json:"text"`
	DenseScore  float64          `json:"dense_score"`
	SparseScore float64          `json:"sparse_score"`
	FusedScore  float64          `json:"fused_score"`
	Stage       RetrievalStage   `json:"stage"`
}

// SearchFilter restricts a single-signal search to one protocol category.
// An empty category means no restriction.
type SearchFilter struct {
	Category ProtocolCategory
}

// RewriteOutcome makes the rewriter's fail-open behavior an explicit value
// instead of a swallowed error: Rewritten reports whether the query changed,
// Reason explains why it did not when a rewrite was attempted.
type RewriteOutcome struct {
	Query     string `json:"query"`
	Rewritten bool   `json:"rewritten"`
	Reason    string `json:"reason,omitempty"`
}
