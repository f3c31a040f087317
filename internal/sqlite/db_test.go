package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	// Verify all tables were created
	tables := []string{
		"accounts",
		"credit_transactions",
		"documents",
		"api_keys",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	// Running again must be a no-op
	require.NoError(t, db.RunMigrations())
}

// TestForeignKeys verifies that foreign key constraints are enabled
func TestForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled, "foreign keys not enabled")
}

// TestAccountsTable verifies the balance constraint
func TestAccountsTable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO accounts (user_id, balance) VALUES (?, ?)`, "u1", 3)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE accounts SET balance = -1 WHERE user_id = ?`, "u1")
	require.Error(t, err, "negative balance must be rejected")
	require.True(t, isCheckViolation(err))

	// Transactions need an account
	_, err = db.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, type, amount, balance_after) VALUES (?, ?, ?, ?, ?)`,
		"t1", "nobody", "EARN", 1, 1)
	require.Error(t, err)
	require.True(t, isForeignKeyViolation(err))
}
