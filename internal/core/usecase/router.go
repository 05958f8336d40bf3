package usecase

import (
	"strings"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// ProtocolRouter classifies a query (or an explicit user hint) into the
// protocol-category affinity that biases multi-stage retrieval.
type ProtocolRouter struct{}

func NewProtocolRouter() *ProtocolRouter { return &ProtocolRouter{} }

var bisq1Signals = []string{
	"bisq 1", "bisq1", "old bisq", "legacy", "multisig", "bsq", "dao",
	"arbitration", "security deposit",
}

var bisq2Signals = []string{
	"bisq 2", "bisq2", "bisq easy", "reputation", "mediation",
}

// Route prefers the explicit hint; otherwise it scans the query for
// protocol-specific signals. Unclassifiable queries fall to the general
// affinity, which retrieval treats as the majority path.
func (r *ProtocolRouter) Route(query string, hint domain.ProtocolCategory) domain.ProtocolCategory {
	switch hint {
	case domain.CategoryBisq1, domain.CategoryBisq2:
		return hint
	}

	lower := strings.ToLower(query)
	bisq1Hits := countSignals(lower, bisq1Signals)
	bisq2Hits := countSignals(lower, bisq2Signals)

	switch {
	case bisq1Hits > bisq2Hits:
		return domain.CategoryBisq1
	case bisq2Hits > bisq1Hits:
		return domain.CategoryBisq2
	default:
		return domain.CategoryGeneral
	}
}

func countSignals(lower string, signals []string) int {
	hits := 0
	for _, s := range signals {
		if strings.Contains(lower, s) {
			hits++
		}
	}
	return hits
}
