package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ganot/promptsync/internal/repository"
)

// APIKeyRepository maps bearer tokens to tenants. Only token hashes are stored.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Add registers token for tenantID
func (r *APIKeyRepository) Add(ctx context.Context, token, tenantID, description string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, tenant_id, created_at, description) VALUES (?, ?, ?, ?)`,
		HashToken(token), tenantID, time.Now(), description,
	)
	if err != nil {
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

// ResolveTenant returns the tenant owning token
func (r *APIKeyRepository) ResolveTenant(ctx context.Context, token string) (string, error) {
	hash := HashToken(token)
	var tenantID string
	err := r.db.QueryRowContext(ctx, `SELECT tenant_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&tenantID)
	if err == sql.ErrNoRows || (err == nil && tenantID == "") {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}
	_, _ = r.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, time.Now(), hash)
	return tenantID, nil
}

// HashToken returns the stored form of a bearer token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
