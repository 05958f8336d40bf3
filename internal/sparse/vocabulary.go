package sparse

// DefaultMaxVocabSize caps the number of distinct tokens tracked per corpus
// snapshot. Tokens first seen after the cap are not added and score as
// unknown at query time.
const DefaultMaxVocabSize = 500_000

type termStat struct {
	index int
	df    int
}

// Vocabulary maps normalized tokens to their index and document frequency.
// It is built once per corpus snapshot and is immutable afterwards, so it is
// safe to share across concurrent queries without locking.
type Vocabulary struct {
	terms    map[string]termStat
	docCount int
	capped   bool
}

// vocabularyBuilder accumulates document-frequency counts during a rebuild.
type vocabularyBuilder struct {
	terms   map[string]termStat
	maxSize int
	capped  bool
	docs    int
}

func newVocabularyBuilder(maxSize int) *vocabularyBuilder {
	if maxSize <= 0 {
		maxSize = DefaultMaxVocabSize
	}
	return &vocabularyBuilder{
		terms:   make(map[string]termStat),
		maxSize: maxSize,
	}
}

// addDocument records one document's distinct tokens. Each distinct token
// bumps its document frequency once.
func (b *vocabularyBuilder) addDocument(tokens []string) {
	b.docs++
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}

		stat, known := b.terms[tok]
		if !known {
			if len(b.terms) >= b.maxSize {
				b.capped = true
				continue
			}
			stat = termStat{index: len(b.terms)}
		}
		stat.df++
		b.terms[tok] = stat
	}
}

func (b *vocabularyBuilder) build() *Vocabulary {
	return &Vocabulary{
		terms:    b.terms,
		docCount: b.docs,
		capped:   b.capped,
	}
}

// Lookup returns the term's stats; ok is false for unknown tokens, which
// callers silently skip during scoring.
func (v *Vocabulary) Lookup(token string) (index int, df int, ok bool) {
	stat, ok := v.terms[token]
	if !ok {
		return 0, 0, false
	}
	return stat.index, stat.df, true
}

// Size returns the number of distinct tracked tokens.
func (v *Vocabulary) Size() int { return len(v.terms) }

// DocCount returns the corpus size the vocabulary was built over.
func (v *Vocabulary) DocCount() int { return v.docCount }

// Capped reports whether the vocabulary hit its size cap during the build.
func (v *Vocabulary) Capped() bool { return v.capped }
