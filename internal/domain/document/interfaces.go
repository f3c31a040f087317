package document

import "context"

// Repository persists documents keyed by user and kind.
type Repository interface {
	Get(ctx context.Context, userID string, kind Kind) (*Document, error)
	// Put replaces the stored document unconditionally.
	Put(ctx context.Context, doc *Document) error
}
