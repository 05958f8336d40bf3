package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*CorpusRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CorpusRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestLoadDocumentsMapsRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "title", "body", "doc_type", "category", "section", "source_url"}).
		AddRow("w1", "Trading rules", "Bisq Easy trades are capped...", "wiki", "bisq_easy", "Rules", "https://bisq.wiki/rules").
		AddRow("f1", "What is BSQ?", "BSQ is the DAO token.", "faq", "general", nil, nil)
	mock.ExpectQuery("SELECT id, title, body, doc_type, category").WillReturnRows(rows)

	docs, err := repo.LoadDocuments(context.Background())
	if err != nil {
		t.Fatalf("LoadDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Category != domain.CategoryBisq2 {
		t.Errorf("bisq_easy should map to %s, got %s", domain.CategoryBisq2, docs[0].Category)
	}
	if docs[0].Type != domain.TypeWikiArticle {
		t.Errorf("doc type = %s, want %s", docs[0].Type, domain.TypeWikiArticle)
	}
	if docs[1].Section != "" || docs[1].SourceURL != "" {
		t.Errorf("NULL section/source_url should map to empty strings, got %+v", docs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadDocumentsQueryError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, body").WillReturnError(errors.New("connection refused"))

	if _, err := repo.LoadDocuments(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCorpusVersionCombinesCountAndTimestamp(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	latest := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"count", "max"}).AddRow(42, latest)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(rows)

	version, err := repo.CorpusVersion(context.Background())
	if err != nil {
		t.Fatalf("CorpusVersion() error = %v", err)
	}
	want := fmt.Sprintf("42-%d", latest.UnixNano())
	if version != want {
		t.Fatalf("version = %q, want %q", version, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
