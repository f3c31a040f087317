// Package credit defines the client-facing credit ledger contract: the values
// a UI reads and the remote capability that owns the authoritative balance.
package credit

import "time"

const (
	// DefaultSpendAmount is charged when a caller passes a zero amount.
	DefaultSpendAmount int64 = 1
	// DefaultDailyAmount is granted by each daily refresh.
	DefaultDailyAmount int64 = 10
	// DefaultRefreshWindow is the wall-clock delta between daily grants.
	DefaultRefreshWindow = 24 * time.Hour
	// DefaultPollInterval is the heartbeat for live balance subscriptions.
	DefaultPollInterval = 30 * time.Second
)

// Balance is the last known credit balance for a user.
type Balance struct {
	Value           int64     `json:"value"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	NextRefreshAt   time.Time `json:"next_refresh_at"`
	// Stale is set when the value came from the local cache because the
	// remote ledger could not be reached.
	Stale bool `json:"stale,omitempty"`
}

// Snapshot is what the remote ledger reports for a balance query.
type Snapshot struct {
	Balance         int64     `json:"balance"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// Transaction is the result of a spend or earn call. It is never persisted by
// the client.
type Transaction struct {
	Success       bool   `json:"success"`
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RefreshResult describes the outcome of a daily refresh check.
type RefreshResult struct {
	WasRefreshed    bool      `json:"was_refreshed"`
	NewBalance      int64     `json:"new_balance"`
	PreviousBalance int64     `json:"previous_balance"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	NextRefreshAt   time.Time `json:"next_refresh_at"`
}

// Entry is one line of a user's transaction history.
type Entry struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
