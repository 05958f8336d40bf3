package usecase

import (
	"sort"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// stageCandidate is one raw single-signal candidate tagged with the stage
// that produced it.
type stageCandidate struct {
	doc   domain.RetrievedDocument
	stage domain.RetrievalStage
}

// fusedCandidate pairs a candidate with its first-seen position, which
// breaks score ties deterministically for identical inputs.
type fusedCandidate struct {
	candidate domain.ScoredCandidate
	order     int
}

// fuseCandidates normalizes the dense and sparse candidate lists
// independently, linearly combines them per document, deduplicates on
// (title, type), and returns the top-k ranked result.
func fuseCandidates(dense, sparse []stageCandidate, semanticWeight, keywordWeight float64, k int) []domain.ScoredCandidate {
	denseNorm := minMaxNormalize(scoresOf(dense))
	sparseNorm := minMaxNormalize(scoresOf(sparse))

	byID := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	order := 0

	absorb := func(c stageCandidate, norm float64, isDense bool) {
		f, seen := byID[c.doc.DocumentID]
		if !seen {
			f = &fusedCandidate{
				candidate: domain.ScoredCandidate{
					DocumentID: c.doc.DocumentID,
					Title:      c.doc.Title,
					Type:       c.doc.Type,
					Category:   c.doc.Category,
					Text:       c.doc.Text,
					Stage:      c.stage,
				},
				order: order,
			}
			order++
			byID[c.doc.DocumentID] = f
		}
		// A candidate missing one signal keeps 0 contribution on that side.
		if isDense {
			f.candidate.DenseScore = norm
			f.candidate.FusedScore += semanticWeight * norm
		} else {
			f.candidate.SparseScore = norm
			f.candidate.FusedScore += keywordWeight * norm
		}
	}

	for i, c := range dense {
		absorb(c, denseNorm[i], true)
	}
	for i, c := range sparse {
		absorb(c, sparseNorm[i], false)
	}

	merged := make([]*fusedCandidate, 0, len(byID))
	for _, f := range byID {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].candidate.FusedScore != merged[j].candidate.FusedScore {
			return merged[i].candidate.FusedScore > merged[j].candidate.FusedScore
		}
		return merged[i].order < merged[j].order
	})

	deduped := dedupeByTitleType(merged)
	if k > 0 && len(deduped) > k {
		deduped = deduped[:k]
	}

	out := make([]domain.ScoredCandidate, len(deduped))
	for i, f := range deduped {
		out[i] = f.candidate
	}
	return out
}

// minMaxNormalize maps scores to [0,1]. A uniformly-scored list normalizes
// to all 1.0 so the signal is kept rather than discarded.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	minV, maxV := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
	}

	out := make([]float64, len(scores))
	if maxV == minV {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - minV) / (maxV - minV)
	}
	return out
}

func scoresOf(candidates []stageCandidate) []float64 {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.doc.Score
	}
	return scores
}

type titleTypeKey struct {
	title string
	typ   domain.DocumentType
}

// dedupeByTitleType collapses candidates sharing (title, type), keeping the
// highest-fused instance. The composite key intentionally treats same-titled
// documents of the same type as one conceptual item even when raw ids
// differ. Input must already be sorted by fused score descending.
func dedupeByTitleType(sorted []*fusedCandidate) []*fusedCandidate {
	seen := make(map[titleTypeKey]struct{}, len(sorted))
	out := sorted[:0]
	for _, f := range sorted {
		key := titleTypeKey{title: f.candidate.Title, typ: f.candidate.Type}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
