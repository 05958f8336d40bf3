package sparse

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// Params are the BM25 tuning knobs.
type Params struct {
	K1           float64
	B            float64
	MaxVocabSize int
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75, MaxVocabSize: DefaultMaxVocabSize}
}

// SparseVector maps vocabulary term index to a weight for one piece of text.
type SparseVector map[int]float64

type posting struct {
	doc int
	tf  int
}

type indexedDoc struct {
	doc    domain.Document
	length int
}

// indexSnapshot is one immutable corpus snapshot: vocabulary, documents,
// postings. Rebuilds produce a fresh snapshot that is published wholesale,
// never mutated in place.
type indexSnapshot struct {
	vocab     *Vocabulary
	docs      []indexedDoc
	postings  map[int][]posting
	avgDocLen float64
}

// Engine is the sparse lexical searcher. Search runs against whatever
// snapshot is currently published; Reindex swaps in a new one atomically.
type Engine struct {
	params   Params
	logger   *slog.Logger
	snapshot atomic.Pointer[indexSnapshot]
}

func NewEngine(params Params, logger *slog.Logger) *Engine {
	if params.K1 <= 0 {
		params.K1 = 1.5
	}
	if params.B < 0 || params.B > 1 {
		params.B = 0.75
	}
	if params.MaxVocabSize <= 0 {
		params.MaxVocabSize = DefaultMaxVocabSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{params: params, logger: logger}
}

// Reindex builds a complete snapshot from the corpus and publishes it by
// pointer swap. Readers in flight keep scoring against the old snapshot.
func (e *Engine) Reindex(docs []domain.Document) {
	builder := newVocabularyBuilder(e.params.MaxVocabSize)
	indexed := make([]indexedDoc, 0, len(docs))
	tokenized := make([][]string, 0, len(docs))

	totalLen := 0
	for _, doc := range docs {
		tokens := Tokenize(doc.Title + " " + doc.Body)
		builder.addDocument(tokens)
		indexed = append(indexed, indexedDoc{doc: doc, length: len(tokens)})
		tokenized = append(tokenized, tokens)
		totalLen += len(tokens)
	}

	vocab := builder.build()
	postings := make(map[int][]posting, vocab.Size())
	for docIdx, tokens := range tokenized {
		tf := make(map[int]int, len(tokens))
		for _, tok := range tokens {
			termIdx, _, known := vocab.Lookup(tok)
			if !known {
				continue
			}
			tf[termIdx]++
		}
		for termIdx, count := range tf {
			postings[termIdx] = append(postings[termIdx], posting{doc: docIdx, tf: count})
		}
	}

	avg := 0.0
	if len(indexed) > 0 {
		avg = float64(totalLen) / float64(len(indexed))
	}

	e.snapshot.Store(&indexSnapshot{
		vocab:     vocab,
		docs:      indexed,
		postings:  postings,
		avgDocLen: avg,
	})

	e.logger.Info("sparse index rebuilt",
		"documents", len(indexed),
		"vocabulary", vocab.Size(),
		"vocabulary_capped", vocab.Capped(),
	)
}

// QueryVector builds the sparse term-frequency vector of a query against the
// current vocabulary. Unknown tokens are silently dropped.
func (e *Engine) QueryVector(query string) SparseVector {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil
	}
	return queryVector(Tokenize(query), snap.vocab)
}

func queryVector(tokens []string, vocab *Vocabulary) SparseVector {
	vec := make(SparseVector, len(tokens))
	for _, tok := range tokens {
		termIdx, _, known := vocab.Lookup(tok)
		if !known {
			continue
		}
		vec[termIdx]++
	}
	return vec
}

// Search scores the query against the published snapshot and returns the
// top-k documents matching the filter, ranked by BM25 score.
func (e *Engine) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := e.snapshot.Load()
	if snap == nil || len(snap.docs) == 0 || k <= 0 {
		return nil, nil
	}

	scores := make(map[int]float64)
	for termIdx, qtf := range queryVector(Tokenize(query), snap.vocab) {
		idf := snap.idf(termIdx)
		for _, p := range snap.postings[termIdx] {
			if filter.Category != "" && snap.docs[p.doc].doc.Category != filter.Category {
				continue
			}
			scores[p.doc] += qtf * idf * snap.termWeight(p, e.params)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ranked := make([]int, 0, len(scores))
	for docIdx := range scores {
		ranked = append(ranked, docIdx)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]domain.RetrievedDocument, 0, len(ranked))
	for _, docIdx := range ranked {
		doc := snap.docs[docIdx].doc
		out = append(out, domain.RetrievedDocument{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Type:       doc.Type,
			Category:   doc.Category,
			Text:       doc.Body,
			Score:      scores[docIdx],
		})
	}
	return out, nil
}

// DocumentCount returns the size of the published snapshot.
func (e *Engine) DocumentCount() int {
	snap := e.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(snap.docs)
}

// idf computes ln((N-df+0.5)/(df+0.5)+1). No zero floor is applied: terms
// present in nearly every document keep their small standard contribution.
func (s *indexSnapshot) idf(termIdx int) float64 {
	df := len(s.postings[termIdx])
	n := float64(s.vocab.DocCount())
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
}

// termWeight is the saturated, length-normalized term-frequency factor.
func (s *indexSnapshot) termWeight(p posting, params Params) float64 {
	tf := float64(p.tf)
	norm := 1.0 - params.B
	if s.avgDocLen > 0 {
		norm += params.B * float64(s.docs[p.doc].length) / s.avgDocLen
	}
	return (tf * (params.K1 + 1.0)) / (tf + params.K1*norm)
}
