package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/repository"
)

// DocumentRepository implements document.Repository for SQLite
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Get retrieves a user's document of the given kind
func (r *DocumentRepository) Get(ctx context.Context, userID string, kind document.Kind) (*document.Document, error) {
	var doc document.Document
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, kind, body, updated_at FROM documents WHERE user_id = ? AND kind = ?`,
		userID, kind,
	).Scan(&doc.UserID, &doc.Kind, &body, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Body = []byte(body)
	return &doc, nil
}

// Put replaces the stored document
func (r *DocumentRepository) Put(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (user_id, kind, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, doc.UserID, doc.Kind, string(doc.Body), doc.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return repository.ErrInvalidInput
		}
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}
