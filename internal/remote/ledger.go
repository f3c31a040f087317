package remote

import (
	"context"

	"github.com/ganot/promptsync/internal/domain/credit"
	"github.com/ganot/promptsync/internal/rpc"
)

// Ledger implements credit.RemoteLedger over JSON-RPC and lists history.
type Ledger struct {
	client *Client
}

// NewLedger creates a Ledger on top of client.
func NewLedger(client *Client) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) GetBalance(ctx context.Context, userID string) (credit.Snapshot, error) {
	var resp rpc.BalanceResponse
	if err := l.client.Call(ctx, rpc.MethodGetBalance, rpc.UserParams{UserID: userID}, &resp); err != nil {
		return credit.Snapshot{}, err
	}
	snap := credit.Snapshot{Balance: resp.Balance}
	if resp.LastRefreshedAt != nil {
		snap.LastRefreshedAt = *resp.LastRefreshedAt
	}
	return snap, nil
}

func (l *Ledger) Spend(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	var resp rpc.SpendResponse
	params := rpc.TransferParams{UserID: userID, Amount: amount, Reason: reason}
	if err := l.client.Call(ctx, rpc.MethodSpend, params, &resp); err != nil {
		return credit.Transaction{}, err
	}
	return credit.Transaction{
		Success:       resp.Success,
		NewBalance:    resp.Balance,
		TransactionID: resp.TransactionID,
		Error:         resp.Error,
	}, nil
}

func (l *Ledger) Earn(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	var resp rpc.EarnResponse
	params := rpc.TransferParams{UserID: userID, Amount: amount, Reason: reason}
	if err := l.client.Call(ctx, rpc.MethodEarn, params, &resp); err != nil {
		return credit.Transaction{}, err
	}
	return credit.Transaction{
		Success:       resp.Success,
		NewBalance:    resp.Balance,
		TransactionID: resp.TransactionID,
	}, nil
}

func (l *Ledger) ClaimDaily(ctx context.Context, userID string) (credit.RefreshResult, error) {
	var resp rpc.ClaimDailyResponse
	if err := l.client.Call(ctx, rpc.MethodClaimDaily, rpc.UserParams{UserID: userID}, &resp); err != nil {
		return credit.RefreshResult{}, err
	}
	return credit.RefreshResult{
		WasRefreshed:    resp.Granted,
		NewBalance:      resp.Balance,
		PreviousBalance: resp.PreviousBalance,
		LastRefreshedAt: resp.LastRefreshedAt,
		NextRefreshAt:   resp.NextRefreshAt,
	}, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID string, limit int) ([]credit.Entry, error) {
	var resp rpc.ListTransactionsResponse
	params := rpc.ListTransactionsParams{UserID: userID, Limit: limit}
	if err := l.client.Call(ctx, rpc.MethodListTransactions, params, &resp); err != nil {
		return nil, err
	}
	entries := make([]credit.Entry, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		entries = append(entries, credit.Entry{
			ID:           tx.ID,
			Type:         tx.Type,
			Amount:       tx.Amount,
			Reason:       tx.Reason,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt,
		})
	}
	return entries, nil
}
