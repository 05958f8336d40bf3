package domain

import "strings"

type DocumentType string

const (
	TypeWikiArticle DocumentType = "wiki"
	TypeFAQEntry    DocumentType = "faq"
)

// ProtocolCategory is a closed classification of a document's subject-matter
// scope. Free-form category strings from the corpus are parsed into one of
// these variants, with CategoryGeneral as the fallback.
type ProtocolCategory string

const (
	// CategoryBisq2 covers Bisq 2 / Bisq Easy content, the majority of the corpus.
	CategoryBisq2 ProtocolCategory = "bisq2"
	// CategoryBisq1 covers legacy Bisq 1 (multisig/DAO) content.
	CategoryBisq1 ProtocolCategory = "bisq1"
	// CategoryGeneral covers protocol-agnostic content.
	CategoryGeneral ProtocolCategory = "general"
)

func ParseProtocolCategory(raw string) ProtocolCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bisq2", "bisq_easy", "bisq-easy", "bisq easy":
		return CategoryBisq2
	case "bisq1", "bisq_1", "bisq 1", "legacy":
		return CategoryBisq1
	default:
		return CategoryGeneral
	}
}

// Document is an immutable content unit created at corpus-ingestion time.
// The retrieval core never mutates documents.
type Document struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      DocumentType     `json:"type"`
	Category  ProtocolCategory `json:"category"`
	Section   string           `json:"section,omitempty"`
	SourceURL string           `json:"source_url,omitempty"`
}
