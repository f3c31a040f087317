package ledger

import "time"

// TransactionType is the business reason for a balance change.
type TransactionType string

const (
	TxEarn  TransactionType = "EARN"
	TxSpend TransactionType = "SPEND"
	TxBonus TransactionType = "BONUS"
)

// Delta returns the signed balance change for amount.
func (t TransactionType) Delta(amount int64) int64 {
	if t == TxSpend {
		return -amount
	}
	return amount
}

// Account is the authoritative credit balance for a user.
type Account struct {
	UserID          string     `json:"user_id"`
	Balance         int64      `json:"balance"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Entry is one row of the credit transaction log.
type Entry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	Reason       string          `json:"reason"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransferResult is returned by a successful spend or earn.
type TransferResult struct {
	TransactionID string `json:"transaction_id"`
	Balance       int64  `json:"balance"`
}

// ClaimResult is returned by a daily refresh claim.
type ClaimResult struct {
	Granted         bool      `json:"granted"`
	PreviousBalance int64     `json:"previous_balance"`
	Balance         int64     `json:"balance"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	NextRefreshAt   time.Time `json:"next_refresh_at"`
}
