package rpc

import (
	"encoding/json"
	"time"
)

// UserParams identifies the account a call acts on. An empty UserID means the
// caller's own account.
type UserParams struct {
	UserID string `json:"user_id"`
}

type TransferParams struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type ListTransactionsParams struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

type SaveDocumentParams struct {
	UserID   string          `json:"user_id"`
	Document json.RawMessage `json:"document"`
}

type BalanceResponse struct {
	Success         bool       `json:"success"`
	Balance         int64      `json:"balance"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
}

// SpendResponse reports a spend. An overdraw is Success false with the
// unchanged balance, not an RPC error.
type SpendResponse struct {
	Success       bool   `json:"success"`
	Balance       int64  `json:"balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type EarnResponse struct {
	Success       bool   `json:"success"`
	Balance       int64  `json:"balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

type ClaimDailyResponse struct {
	Success         bool      `json:"success"`
	Granted         bool      `json:"granted"`
	Balance         int64     `json:"balance"`
	PreviousBalance int64     `json:"previous_balance"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	NextRefreshAt   time.Time `json:"next_refresh_at"`
}

type TransactionResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

type SaveDocumentResponse struct {
	Success   bool      `json:"success"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetDocumentResponse carries the stored JSON object, or null when nothing
// has been saved.
type GetDocumentResponse struct {
	Document json.RawMessage `json:"document"`
}
