// Package postgres reads the support-document corpus maintained by the
// external ingestion pipeline. This service never writes to it.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const loadDocumentsQuery = `
SELECT id, title, body, doc_type, category, section, source_url
FROM support_documents
ORDER BY id`

func (r *CorpusRepository) LoadDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, loadDocumentsQuery)
	if err != nil {
		return nil, fmt.Errorf("query support documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var docType, category string
		var section, sourceURL sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Body, &docType, &category, &section, &sourceURL); err != nil {
			return nil, fmt.Errorf("scan support document: %w", err)
		}
		doc.Type = domain.DocumentType(docType)
		doc.Category = domain.ParseProtocolCategory(category)
		doc.Section = section.String
		doc.SourceURL = sourceURL.String
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate support documents: %w", err)
	}
	return docs, nil
}

// CorpusVersion is a cheap change detector: the ingestion pipeline bumps
// updated_at on every write, so max(updated_at) plus the row count
// identifies a corpus state without hashing bodies.
func (r *CorpusRepository) CorpusVersion(ctx context.Context) (string, error) {
	const query = `
SELECT COUNT(*), COALESCE(MAX(updated_at), 'epoch'::timestamptz)
FROM support_documents`

	var count int64
	var latest time.Time
	if err := r.db.QueryRowContext(ctx, query).Scan(&count, &latest); err != nil {
		return "", fmt.Errorf("query corpus version: %w", err)
	}
	return fmt.Sprintf("%d-%d", count, latest.UnixNano()), nil
}
