package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bisq-support/retrieval/internal/core/domain"
	"github.com/bisq-support/retrieval/internal/core/ports"
)

type RerankConfig struct {
	Enabled bool
	TopN    int // fused head handed to the reranker
	TopM    int // reordered head returned
}

func DefaultRerankConfig() RerankConfig {
	return RerankConfig{Enabled: false, TopN: 8, TopM: 5}
}

// RerankerFactory defers model construction so the load cost is only paid
// on first use when the feature is enabled.
type RerankerFactory func() (ports.Reranker, error)

// RerankStage optionally reorders the fused head with a higher-fidelity
// token-level model. Disabled, it passes candidates through untouched. It is
// purely a reordering step: documents absent from its input never appear in
// its output.
type RerankStage struct {
	cfg     RerankConfig
	factory RerankerFactory
	logger  *slog.Logger

	once     sync.Once
	reranker ports.Reranker
	initErr  error
}

func NewRerankStage(cfg RerankConfig, factory RerankerFactory, logger *slog.Logger) *RerankStage {
	if cfg.TopN <= 0 {
		cfg.TopN = 8
	}
	if cfg.TopM <= 0 || cfg.TopM > cfg.TopN {
		cfg.TopM = cfg.TopN
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankStage{cfg: cfg, factory: factory, logger: logger}
}

func (s *RerankStage) Apply(ctx context.Context, query string, fused []domain.ScoredCandidate) []domain.ScoredCandidate {
	if !s.cfg.Enabled || len(fused) == 0 {
		return fused
	}

	s.once.Do(func() {
		if s.factory == nil {
			s.initErr = nil
			return
		}
		s.reranker, s.initErr = s.factory()
	})
	if s.initErr != nil {
		s.logger.Warn("reranker initialization failed, skipping", "error", s.initErr)
		return fused
	}
	if s.reranker == nil {
		return fused
	}

	headLen := s.cfg.TopN
	if headLen > len(fused) {
		headLen = len(fused)
	}
	head := make([]domain.ScoredCandidate, headLen)
	copy(head, fused[:headLen])

	reordered, err := s.reranker.Rerank(ctx, query, head, s.cfg.TopM)
	if err != nil {
		s.logger.Warn("rerank failed, keeping fusion order", "error", err)
		return fused
	}

	sanitized := restrictToInput(head, reordered, s.cfg.TopM)
	if len(sanitized) == 0 {
		return fused
	}
	return sanitized
}

// restrictToInput drops any candidate the reranker invented and any
// duplicate, preserving the reranker's order.
func restrictToInput(input, reordered []domain.ScoredCandidate, topM int) []domain.ScoredCandidate {
	allowed := make(map[string]struct{}, len(input))
	for _, c := range input {
		allowed[c.DocumentID] = struct{}{}
	}

	out := make([]domain.ScoredCandidate, 0, topM)
	for _, c := range reordered {
		if _, ok := allowed[c.DocumentID]; !ok {
			continue
		}
		delete(allowed, c.DocumentID)
		out = append(out, c)
		if len(out) == topM {
			break
		}
	}
	return out
}
