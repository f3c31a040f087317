package ledger

import (
	"context"
	"time"
)

// AccountRepository provides atomic persistence for credit accounts.
type AccountRepository interface {
	// Get returns the account, creating an empty one on first access.
	// Get returns the account, creating an empty one stamped now on first access.
	Get(ctx context.Context, userID string, now time.Time) (*Account, error)
	// Apply records entry and moves the balance by entry.Type.Delta in one
	// transaction. A spend that would go negative fails with
	// repository.ErrInsufficientCredits and changes nothing.
	Apply(ctx context.Context, entry *Entry) (int64, error)
	// ClaimDaily grants entry.Amount when the account's last refresh is
	// more than window before now, recording entry and the new marker atomically.
	ClaimDaily(ctx context.Context, entry *Entry, now time.Time, window time.Duration) (acct *Account, previous int64, granted bool, err error)
	ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// BalancePublisher pushes confirmed balances to live listeners.
type BalancePublisher interface {
	PublishBalance(userID string, balance int64)
}
