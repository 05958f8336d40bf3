package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

type resolverFake struct {
	outcome domain.RewriteOutcome
}

func (f *resolverFake) Resolve(_ context.Context, query string, _ []domain.ChatTurn) domain.RewriteOutcome {
	if f.outcome.Query != "" {
		return f.outcome
	}
	return domain.RewriteOutcome{Query: query}
}

type embedderFake struct {
	err error
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// categorySearcher returns canned documents per category and records which
// categories were queried, for asserting the staged policy.
type categorySearcher struct {
	byCategory map[domain.ProtocolCategory][]domain.RetrievedDocument
	queried    []domain.ProtocolCategory
	err        error
}

func (f *categorySearcher) search(filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	f.queried = append(f.queried, filter.Category)
	if f.err != nil {
		return nil, f.err
	}
	return f.byCategory[filter.Category], nil
}

type denseFake struct{ categorySearcher }

func (f *denseFake) Search(_ context.Context, _ []float32, _ int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	return f.search(filter)
}

type sparseFake struct{ categorySearcher }

func (f *sparseFake) Search(_ context.Context, _ string, _ int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	return f.search(filter)
}

func docsInCategory(category domain.ProtocolCategory, ids ...string) []domain.RetrievedDocument {
	out := make([]domain.RetrievedDocument, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.RetrievedDocument{
			DocumentID: id,
			Title:      "title-" + id,
			Type:       domain.TypeWikiArticle,
			Category:   category,
			Score:      1.0 - float64(i)*0.05,
		})
	}
	return out
}

func newTestUseCase(t *testing.T, dense *denseFake, sparse *sparseFake) *RetrieveUseCase {
	t.Helper()
	uc, err := NewRetrieveUseCase(&resolverFake{}, &embedderFake{}, dense, sparse, nil, DefaultStageConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewRetrieveUseCase() error = %v", err)
	}
	return uc
}

func queriedCategories(f *categorySearcher) map[domain.ProtocolCategory]bool {
	out := make(map[domain.ProtocolCategory]bool)
	for _, c := range f.queried {
		out[c] = true
	}
	return out
}

func TestStage2SkippedWhenStage1Suffices(t *testing.T) {
	dense := &denseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq2: docsInCategory(domain.CategoryBisq2, "a", "b", "c", "d", "e"),
	}}}
	sparse := &sparseFake{}
	uc := newTestUseCase(t, dense, sparse)

	res, err := uc.Retrieve(context.Background(), "bisq easy reputation", nil, domain.CategoryBisq2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Candidates) == 0 {
		t.Fatalf("expected candidates")
	}
	cats := queriedCategories(&dense.categorySearcher)
	if cats[domain.CategoryGeneral] {
		t.Fatalf("stage 2 must not execute with 5 distinct docs after stage 1")
	}
	if cats[domain.CategoryBisq1] {
		t.Fatalf("stage 3 must not execute")
	}
}

func TestStage2RunsWhenStage1Thin(t *testing.T) {
	dense := &denseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq2:   docsInCategory(domain.CategoryBisq2, "a", "b"),
		domain.CategoryGeneral: docsInCategory(domain.CategoryGeneral, "g1", "g2"),
	}}}
	sparse := &sparseFake{}
	uc := newTestUseCase(t, dense, sparse)

	if _, err := uc.Retrieve(context.Background(), "bisq easy reputation", nil, domain.CategoryBisq2); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	cats := queriedCategories(&dense.categorySearcher)
	if !cats[domain.CategoryGeneral] {
		t.Fatalf("stage 2 must execute with 2 distinct docs after stage 1")
	}
	// 4 distinct after stage 2: stage 3 threshold (3) satisfied, skipped.
	if cats[domain.CategoryBisq1] {
		t.Fatalf("stage 3 must not execute with 4 distinct docs")
	}
}

func TestStage3RunsOnMajorityPathWhenStillThin(t *testing.T) {
	dense := &denseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq2: docsInCategory(domain.CategoryBisq2, "a", "b"),
		domain.CategoryBisq1: docsInCategory(domain.CategoryBisq1, "f1"),
	}}}
	sparse := &sparseFake{}
	uc := newTestUseCase(t, dense, sparse)

	if _, err := uc.Retrieve(context.Background(), "bisq easy reputation", nil, domain.CategoryBisq2); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	cats := queriedCategories(&dense.categorySearcher)
	if !cats[domain.CategoryGeneral] {
		t.Fatalf("stage 2 must execute first")
	}
	if !cats[domain.CategoryBisq1] {
		t.Fatalf("stage 3 must execute on the majority path with 2 distinct docs")
	}
}

func TestStage3NeverRunsOnMinorityPath(t *testing.T) {
	dense := &denseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq1: docsInCategory(domain.CategoryBisq1, "a"),
	}}}
	sparse := &sparseFake{}
	uc := newTestUseCase(t, dense, sparse)

	if _, err := uc.Retrieve(context.Background(), "old bisq multisig", nil, domain.CategoryBisq1); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	cats := queriedCategories(&dense.categorySearcher)
	if !cats[domain.CategoryGeneral] {
		t.Fatalf("stage 2 must still execute on the minority path")
	}
	if cats[domain.CategoryBisq2] {
		t.Fatalf("minority path must never mix in majority-category content")
	}
}

func TestDenseFailureDegradesToSparseOnly(t *testing.T) {
	dense := &denseFake{categorySearcher{err: errors.New("vector backend down")}}
	sparse := &sparseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq2: docsInCategory(domain.CategoryBisq2, "s1", "s2", "s3", "s4"),
	}}}
	uc := newTestUseCase(t, dense, sparse)

	res, err := uc.Retrieve(context.Background(), "bisq easy reputation", nil, domain.CategoryBisq2)
	if err != nil {
		t.Fatalf("Retrieve() must not fail on dense outage, got %v", err)
	}
	if len(res.Candidates) == 0 {
		t.Fatalf("expected sparse-only candidates")
	}
}

func TestEmbedderFailureDegradesToSparseOnly(t *testing.T) {
	sparse := &sparseFake{categorySearcher{byCategory: map[domain.ProtocolCategory][]domain.RetrievedDocument{
		domain.CategoryBisq2: docsInCategory(domain.CategoryBisq2, "s1", "s2", "s3", "s4"),
	}}}
	dense := &denseFake{}
	uc, err := NewRetrieveUseCase(&resolverFake{}, &embedderFake{err: errors.New("embed down")}, dense, sparse, nil, DefaultStageConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewRetrieveUseCase() error = %v", err)
	}

	res, err := uc.Retrieve(context.Background(), "bisq easy reputation", nil, domain.CategoryBisq2)
	if err != nil {
		t.Fatalf("Retrieve() must not fail on embedder outage, got %v", err)
	}
	if len(res.Candidates) == 0 {
		t.Fatalf("expected sparse-only candidates")
	}
	if len(dense.queried) != 0 {
		t.Fatalf("dense search must be skipped without a query vector")
	}
}

func TestEmptyContextIsDefinedOutcome(t *testing.T) {
	uc := newTestUseCase(t, &denseFake{}, &sparseFake{})
	res, err := uc.Retrieve(context.Background(), "completely unmatched", nil, domain.CategoryBisq2)
	if err != nil {
		t.Fatalf("empty context must not be an error, got %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected empty candidate list")
	}
}

func TestEmptyQueryRejected(t *testing.T) {
	uc := newTestUseCase(t, &denseFake{}, &sparseFake{})
	_, err := uc.Retrieve(context.Background(), "   ", nil, domain.CategoryGeneral)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestCancelledContextStopsStages(t *testing.T) {
	uc := newTestUseCase(t, &denseFake{}, &sparseFake{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Retrieve(ctx, "bisq easy reputation", nil, domain.CategoryBisq2); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestStageConfigValidation(t *testing.T) {
	cfg := DefaultStageConfig()
	cfg.TopK = 0
	if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for non-positive k, got %v", err)
	}

	cfg = DefaultStageConfig()
	cfg.SemanticWeight = 1.4
	if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for out-of-range weight, got %v", err)
	}

	cfg = DefaultStageConfig()
	cfg.SemanticWeight = 0
	cfg.KeywordWeight = 0
	if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for zero weights, got %v", err)
	}
}
