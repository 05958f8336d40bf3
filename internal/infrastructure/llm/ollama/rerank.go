package ollama

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

const maxRerankSnippet = 600

// Reranker asks the generation model to reorder a small candidate head by
// relevance. Output is parsed as a comma-separated list of 1-based
// positions; anything unparseable keeps the incoming order.
type Reranker struct {
	client *Client
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{client: client}
}

func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.ScoredCandidate, topM int) ([]domain.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topM <= 0 || topM > len(candidates) {
		topM = len(candidates)
	}

	prompt := buildRerankPrompt(query, candidates)
	raw, err := (&Completer{client: r.client}).Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	order := parseRankedPositions(raw, len(candidates))
	if len(order) == 0 {
		return nil, fmt.Errorf("rerank response unparseable: %q", firstLine(raw))
	}

	ranked := make([]domain.ScoredCandidate, 0, topM)
	for _, position := range order {
		ranked = append(ranked, candidates[position])
		if len(ranked) == topM {
			break
		}
	}
	return ranked, nil
}

const rerankPromptTemplate = `You rank documentation passages for a Bisq support question.

Question: %s

Passages:
%s
Reply with the passage numbers ordered from most to least relevant,
comma-separated, nothing else. Example: 3,1,2`

func buildRerankPrompt(query string, candidates []domain.ScoredCandidate) string {
	var sb strings.Builder
	for i, candidate := range candidates {
		snippet := candidate.Text
		if len(snippet) > maxRerankSnippet {
			snippet = snippet[:maxRerankSnippet] + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, candidate.Title, snippet)
	}
	return fmt.Sprintf(rerankPromptTemplate, query, sb.String())
}

// parseRankedPositions extracts distinct in-range 0-based indexes from a
// model reply such as "3, 1, 2" or "Ranking: 3,1,2".
func parseRankedPositions(raw string, total int) []int {
	line := firstLine(raw)
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		line = line[idx+1:]
	}

	seen := make(map[int]bool, total)
	var order []int
	for _, field := range strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	}) {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			continue
		}
		position := n - 1
		if position < 0 || position >= total || seen[position] {
			continue
		}
		seen[position] = true
		order = append(order, position)
	}
	return order
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
