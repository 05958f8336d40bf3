package usecase

import (
	"testing"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

func TestMinMaxNormalizeUniformList(t *testing.T) {
	out := minMaxNormalize([]float64{0.4, 0.4, 0.4})
	for i, v := range out {
		if v != 1.0 {
			t.Fatalf("uniform list must normalize to 1.0, got %f at %d", v, i)
		}
	}
}

func TestMinMaxNormalizeBounds(t *testing.T) {
	out := minMaxNormalize([]float64{2.0, 5.0, 8.0})
	if out[0] != 0.0 {
		t.Fatalf("min must map to 0.0, got %f", out[0])
	}
	if out[2] != 1.0 {
		t.Fatalf("max must map to 1.0, got %f", out[2])
	}
	if out[1] <= 0.0 || out[1] >= 1.0 {
		t.Fatalf("middle value must fall inside (0,1), got %f", out[1])
	}
}

func TestMinMaxNormalizeEmpty(t *testing.T) {
	if out := minMaxNormalize(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func denseCand(id, title string, score float64) stageCandidate {
	return stageCandidate{
		doc: domain.RetrievedDocument{
			DocumentID: id, Title: title, Type: domain.TypeWikiArticle,
			Category: domain.CategoryBisq2, Score: score,
		},
		stage: domain.StagePrimary,
	}
}

func TestFuseCombinesWeightedSignals(t *testing.T) {
	dense := []stageCandidate{denseCand("a", "A", 0.9), denseCand("b", "B", 0.1)}
	sparse := []stageCandidate{denseCand("b", "B", 7.0), denseCand("a", "A", 1.0)}

	out := fuseCandidates(dense, sparse, 0.7, 0.3, 10)
	if len(out) != 2 {
		t.Fatalf("expected 2 fused candidates, got %d", len(out))
	}
	// a: dense 1.0 * 0.7 + sparse 0.0 * 0.3 = 0.7
	// b: dense 0.0 * 0.7 + sparse 1.0 * 0.3 = 0.3
	if out[0].DocumentID != "a" {
		t.Fatalf("expected a first, got %s", out[0].DocumentID)
	}
	if out[0].FusedScore < out[1].FusedScore {
		t.Fatalf("fused scores out of order: %f < %f", out[0].FusedScore, out[1].FusedScore)
	}
}

func TestFuseMissingSignalContributesZero(t *testing.T) {
	dense := []stageCandidate{denseCand("a", "A", 0.8)}
	sparse := []stageCandidate{denseCand("b", "B", 3.0)}

	out := fuseCandidates(dense, sparse, 0.7, 0.3, 10)
	if len(out) != 2 {
		t.Fatalf("expected both single-signal candidates, got %d", len(out))
	}
	for _, c := range out {
		switch c.DocumentID {
		case "a":
			if c.FusedScore != 0.7 {
				t.Fatalf("dense-only candidate expected 0.7, got %f", c.FusedScore)
			}
		case "b":
			if c.FusedScore != 0.3 {
				t.Fatalf("sparse-only candidate expected 0.3, got %f", c.FusedScore)
			}
		}
	}
}

func TestFuseDeduplicatesOnTitleAndType(t *testing.T) {
	// Same conceptual item under two ids: wiki chunk and re-ingested copy.
	dense := []stageCandidate{denseCand("id-1", "Reputation", 0.9)}
	sparse := []stageCandidate{denseCand("id-2", "Reputation", 5.0)}

	out := fuseCandidates(dense, sparse, 0.7, 0.3, 10)
	if len(out) != 1 {
		t.Fatalf("expected dedup to one candidate, got %d", len(out))
	}
	// id-1 fuses at 0.7 (dense), id-2 at 0.3 (sparse): keep the higher.
	if out[0].DocumentID != "id-1" {
		t.Fatalf("dedup must keep the higher-fused instance, got %s", out[0].DocumentID)
	}
}

func TestFuseDifferentTypesAreNotDuplicates(t *testing.T) {
	faq := denseCand("id-2", "Reputation", 0.5)
	faq.doc.Type = domain.TypeFAQEntry
	dense := []stageCandidate{denseCand("id-1", "Reputation", 0.9), faq}

	out := fuseCandidates(dense, nil, 0.7, 0.3, 10)
	if len(out) != 2 {
		t.Fatalf("same title with different type must not collapse, got %d", len(out))
	}
}

func TestFuseTieBreakIsFirstSeen(t *testing.T) {
	// Uniform scores normalize to 1.0 on both, so every fused score ties.
	dense := []stageCandidate{denseCand("first", "F", 0.5), denseCand("second", "S", 0.5)}

	out := fuseCandidates(dense, nil, 0.7, 0.3, 10)
	if out[0].DocumentID != "first" || out[1].DocumentID != "second" {
		t.Fatalf("ties must keep first-seen order, got %s, %s", out[0].DocumentID, out[1].DocumentID)
	}
}

func TestFuseTruncatesToK(t *testing.T) {
	dense := []stageCandidate{
		denseCand("a", "A", 0.9), denseCand("b", "B", 0.8), denseCand("c", "C", 0.7),
	}
	out := fuseCandidates(dense, nil, 0.7, 0.3, 2)
	if len(out) != 2 {
		t.Fatalf("expected truncation to k=2, got %d", len(out))
	}
}
