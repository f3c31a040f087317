package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/promptsync/internal/domain/ledger"
)

type EmptyInput struct{}

type BalanceOutput struct {
	Balance         int64  `json:"balance"`
	LastRefreshedAt string `json:"last_refreshed_at,omitempty"`
}

type TransferInput struct {
	Amount int64  `json:"amount" jsonschema:"number of credits, must be positive"`
	Reason string `json:"reason,omitempty" jsonschema:"why the credits move, recorded in history"`
}

type TransferOutput struct {
	Success       bool   `json:"success"`
	Balance       int64  `json:"balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ClaimOutput struct {
	Granted         bool   `json:"granted"`
	Balance         int64  `json:"balance"`
	PreviousBalance int64  `json:"previous_balance"`
	NextRefreshAt   string `json:"next_refresh_at"`
}

type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return, newest first"`
}

type HistoryEntry struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

type HistoryOutput struct {
	Transactions []HistoryEntry `json:"transactions"`
}

// tools holds the handlers so they can be exercised without a transport.
type tools struct {
	ledger LedgerService
}

func registerTools(server *sdkmcp.Server, svc LedgerService) {
	t := &tools{ledger: svc}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_balance",
		Description: "Get the current credit balance",
	}, t.getBalance)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "spend_credits",
		Description: "Atomically spend credits. Reports success false without changing the balance when funds are insufficient",
	}, t.spend)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "add_credits",
		Description: "Add credits to the balance",
	}, t.earn)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "claim_daily_credits",
		Description: "Claim the daily credit grant. Grants at most once per refresh window",
	}, t.claimDaily)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_transactions",
		Description: "List recent credit transactions, newest first",
	}, t.listTransactions)
}

func (t *tools) getBalance(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyInput) (*sdkmcp.CallToolResult, BalanceOutput, error) {
	acct, err := t.ledger.GetBalance(ctx, tenantFrom(ctx))
	if err != nil {
		return nil, BalanceOutput{}, err
	}
	out := BalanceOutput{Balance: acct.Balance}
	if acct.LastRefreshedAt != nil {
		out.LastRefreshedAt = formatTime(*acct.LastRefreshedAt)
	}
	return nil, out, nil
}

func (t *tools) spend(ctx context.Context, _ *sdkmcp.CallToolRequest, in TransferInput) (*sdkmcp.CallToolResult, TransferOutput, error) {
	userID := tenantFrom(ctx)
	res, err := t.ledger.Spend(ctx, userID, in.Amount, reasonOr(in.Reason, "agent"))
	if errors.Is(err, ledger.ErrInsufficientCredits) {
		acct, getErr := t.ledger.GetBalance(ctx, userID)
		if getErr != nil {
			return nil, TransferOutput{}, getErr
		}
		return nil, TransferOutput{Success: false, Balance: acct.Balance, Error: err.Error()}, nil
	}
	if err != nil {
		return nil, TransferOutput{}, err
	}
	return nil, TransferOutput{Success: true, Balance: res.Balance, TransactionID: res.TransactionID}, nil
}

func (t *tools) earn(ctx context.Context, _ *sdkmcp.CallToolRequest, in TransferInput) (*sdkmcp.CallToolResult, TransferOutput, error) {
	res, err := t.ledger.Earn(ctx, tenantFrom(ctx), in.Amount, reasonOr(in.Reason, "agent"))
	if err != nil {
		return nil, TransferOutput{}, err
	}
	return nil, TransferOutput{Success: true, Balance: res.Balance, TransactionID: res.TransactionID}, nil
}

func (t *tools) claimDaily(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyInput) (*sdkmcp.CallToolResult, ClaimOutput, error) {
	res, err := t.ledger.ClaimDaily(ctx, tenantFrom(ctx))
	if err != nil {
		return nil, ClaimOutput{}, err
	}
	return nil, ClaimOutput{
		Granted:         res.Granted,
		Balance:         res.Balance,
		PreviousBalance: res.PreviousBalance,
		NextRefreshAt:   formatTime(res.NextRefreshAt),
	}, nil
}

func (t *tools) listTransactions(ctx context.Context, _ *sdkmcp.CallToolRequest, in HistoryInput) (*sdkmcp.CallToolResult, HistoryOutput, error) {
	entries, err := t.ledger.ListTransactions(ctx, tenantFrom(ctx), in.Limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("listing transactions: %w", err)
	}
	out := HistoryOutput{Transactions: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		out.Transactions = append(out.Transactions, HistoryEntry{
			ID:           e.ID,
			Type:         string(e.Type),
			Amount:       e.Amount,
			Reason:       e.Reason,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    formatTime(e.CreatedAt),
		})
	}
	return nil, out, nil
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
