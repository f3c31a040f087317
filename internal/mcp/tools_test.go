package mcp

import (
	"context"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/transport"
)

// memLedger is an in-memory LedgerService.
type memLedger struct {
	balance int64
	entries []ledger.Entry
	users   []string
}

func (m *memLedger) GetBalance(_ context.Context, userID string) (*ledger.Account, error) {
	m.users = append(m.users, userID)
	return &ledger.Account{UserID: userID, Balance: m.balance}, nil
}

func (m *memLedger) Spend(_ context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error) {
	m.users = append(m.users, userID)
	if amount > m.balance {
		return nil, ledger.ErrInsufficientCredits
	}
	m.balance -= amount
	m.entries = append(m.entries, ledger.Entry{ID: "tx", Type: ledger.TxSpend, Amount: amount, Reason: reason, BalanceAfter: m.balance})
	return &ledger.TransferResult{TransactionID: "tx", Balance: m.balance}, nil
}

func (m *memLedger) Earn(_ context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidInput
	}
	m.balance += amount
	return &ledger.TransferResult{TransactionID: "tx", Balance: m.balance}, nil
}

func (m *memLedger) ClaimDaily(context.Context, string) (*ledger.ClaimResult, error) {
	next := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	return &ledger.ClaimResult{Granted: true, Balance: m.balance + 10, PreviousBalance: m.balance, NextRefreshAt: next}, nil
}

func (m *memLedger) ListTransactions(context.Context, string, int) ([]ledger.Entry, error) {
	return m.entries, nil
}

func tenantCtx(tenant string) context.Context {
	return transport.WithTenant(context.Background(), tenant)
}

func TestTools_SpendUsesTenant(t *testing.T) {
	mem := &memLedger{balance: 5}
	tl := &tools{ledger: mem}

	_, out, err := tl.spend(tenantCtx("u1"), nil, TransferInput{Amount: 1, Reason: "enhance"})
	require.NoError(t, err)
	require.Equal(t, TransferOutput{Success: true, Balance: 4, TransactionID: "tx"}, out)
	require.Equal(t, []string{"u1"}, mem.users)

	_, out, err = tl.spend(tenantCtx("u1"), nil, TransferInput{Amount: 10})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, int64(4), out.Balance)
}

func TestTools_EarnErrorSurfaces(t *testing.T) {
	tl := &tools{ledger: &memLedger{}}
	_, _, err := tl.earn(tenantCtx("u1"), nil, TransferInput{Amount: 0})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestTools_ClaimAndHistory(t *testing.T) {
	mem := &memLedger{balance: 2, entries: []ledger.Entry{{ID: "a", Type: ledger.TxBonus, Amount: 10}}}
	tl := &tools{ledger: mem}

	_, claim, err := tl.claimDaily(tenantCtx("u1"), nil, EmptyInput{})
	require.NoError(t, err)
	require.True(t, claim.Granted)
	require.Equal(t, "2025-03-02T09:00:00Z", claim.NextRefreshAt)

	_, hist, err := tl.listTransactions(tenantCtx("u1"), nil, HistoryInput{})
	require.NoError(t, err)
	require.Len(t, hist.Transactions, 1)
	require.Equal(t, "BONUS", hist.Transactions[0].Type)
	require.Equal(t, "", hist.Transactions[0].CreatedAt)
}

func TestServer_InMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := NewServer(Config{Ledger: &memLedger{balance: 3}, TransportMode: "stdio", DefaultTenant: "u1"})

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "spend_credits",
		Arguments: map[string]any{"amount": 1, "reason": "test"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, structured["success"])
	require.Equal(t, float64(2), structured["balance"])
}
