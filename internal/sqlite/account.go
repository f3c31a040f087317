package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/repository"
)

// AccountRepository implements ledger.AccountRepository for SQLite
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Get returns the account, creating an empty one on first access
func (r *AccountRepository) Get(ctx context.Context, userID string, now time.Time) (*ledger.Account, error) {
	if err := r.ensure(ctx, r.db, userID, now); err != nil {
		return nil, err
	}
	return r.get(ctx, r.db, userID)
}

// Apply records entry and moves the balance in a single transaction
func (r *AccountRepository) Apply(ctx context.Context, entry *ledger.Entry) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.ensure(ctx, tx, entry.UserID, entry.CreatedAt); err != nil {
		return 0, err
	}

	var result sql.Result
	if entry.Type == ledger.TxSpend {
		result, err = tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`,
			entry.Amount, entry.CreatedAt, entry.UserID, entry.Amount,
		)
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE user_id = ?`,
			entry.Amount, entry.CreatedAt, entry.UserID,
		)
	}
	if err != nil {
		if isCheckViolation(err) {
			return 0, repository.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, repository.ErrInsufficientCredits
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, entry.UserID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	entry.BalanceAfter = balance

	if err := insertEntry(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// ClaimDaily grants entry.Amount when the last refresh is more than window old
func (r *AccountRepository) ClaimDaily(ctx context.Context, entry *ledger.Entry, now time.Time, window time.Duration) (*ledger.Account, int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.ensure(ctx, tx, entry.UserID, now); err != nil {
		return nil, 0, false, err
	}
	acct, err := r.get(ctx, tx, entry.UserID)
	if err != nil {
		return nil, 0, false, err
	}
	previous := acct.Balance

	if acct.LastRefreshedAt != nil && now.Sub(*acct.LastRefreshedAt) <= window {
		return acct, previous, false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ?, last_refreshed_at = ?, updated_at = ? WHERE user_id = ?`,
		entry.Amount, now, now, entry.UserID,
	)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to grant daily credits: %w", err)
	}

	entry.BalanceAfter = previous + entry.Amount
	if err := insertEntry(ctx, tx, entry); err != nil {
		return nil, 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	acct.Balance = entry.BalanceAfter
	acct.LastRefreshedAt = &now
	acct.UpdatedAt = now
	return acct, previous, true, nil
}

// ListEntries returns the newest entries first
func (r *AccountRepository) ListEntries(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	query := `
		SELECT id, user_id, type, amount, reason, balance_after, created_at
		FROM credit_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Reason, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *AccountRepository) ensure(ctx context.Context, q querier, userID string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, created_at, updated_at) VALUES (?, 0, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) get(ctx context.Context, q querier, userID string) (*ledger.Account, error) {
	var acct ledger.Account
	var lastRefreshed sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT user_id, balance, last_refreshed_at, created_at, updated_at FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&acct.UserID, &acct.Balance, &lastRefreshed, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if lastRefreshed.Valid {
		acct.LastRefreshedAt = &lastRefreshed.Time
	}
	return &acct, nil
}

func insertEntry(ctx context.Context, q querier, e *ledger.Entry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, type, amount, reason, balance_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Type, e.Amount, e.Reason, e.BalanceAfter, e.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}
