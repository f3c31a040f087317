package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/repository"
	"github.com/ganot/promptsync/internal/repository/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(accounts *mocks.AccountRepository, pub ledger.BalancePublisher) *ledger.Service {
	return ledger.NewService(accounts, pub, clock.NewFake(now), ledger.Config{DailyAmount: 10, RefreshWindow: 24 * time.Hour}, nil)
}

func TestLedgerService_Spend(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	pub := &mocks.BalancePublisher{}

	accounts.On("Apply", ctx, mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.UserID == "u1" && e.Type == ledger.TxSpend && e.Amount == 1 && e.Reason == "enhance" && e.ID != "" && e.CreatedAt.Equal(now)
	})).Return(int64(4), nil)
	pub.On("PublishBalance", "u1", int64(4)).Return()

	res, err := newService(accounts, pub).Spend(ctx, "u1", 1, "enhance")
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Balance)
	require.NotEmpty(t, res.TransactionID)
	accounts.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestLedgerService_SpendInsufficient(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	pub := &mocks.BalancePublisher{}

	accounts.On("Apply", ctx, mock.Anything).Return(int64(0), repository.ErrInsufficientCredits)

	_, err := newService(accounts, pub).Spend(ctx, "u1", 10, "enhance")
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	pub.AssertNotCalled(t, "PublishBalance", mock.Anything, mock.Anything)
}

func TestLedgerService_InvalidInput(t *testing.T) {
	svc := newService(&mocks.AccountRepository{}, nil)
	ctx := context.Background()

	_, err := svc.Spend(ctx, "", 1, "x")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = svc.Spend(ctx, "u1", 0, "x")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = svc.Earn(ctx, "u1", -3, "x")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = svc.ClaimDaily(ctx, "")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestLedgerService_ClaimDaily(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	pub := &mocks.BalancePublisher{}

	refreshed := now
	accounts.On("ClaimDaily", ctx, mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.Type == ledger.TxBonus && e.Amount == 10
	}), now, 24*time.Hour).Return(&ledger.Account{UserID: "u1", Balance: 15, LastRefreshedAt: &refreshed}, int64(5), true, nil).Once()
	pub.On("PublishBalance", "u1", int64(15)).Return().Once()

	res, err := newService(accounts, pub).ClaimDaily(ctx, "u1")
	require.NoError(t, err)
	require.True(t, res.Granted)
	require.Equal(t, int64(5), res.PreviousBalance)
	require.Equal(t, int64(15), res.Balance)
	require.Equal(t, now.Add(24*time.Hour), res.NextRefreshAt)
	pub.AssertExpectations(t)
}

func TestLedgerService_ClaimDailyNotDue(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	pub := &mocks.BalancePublisher{}

	refreshed := now.Add(-time.Hour)
	accounts.On("ClaimDaily", ctx, mock.Anything, now, 24*time.Hour).
		Return(&ledger.Account{UserID: "u1", Balance: 15, LastRefreshedAt: &refreshed}, int64(15), false, nil)

	res, err := newService(accounts, pub).ClaimDaily(ctx, "u1")
	require.NoError(t, err)
	require.False(t, res.Granted)
	require.Equal(t, refreshed.Add(24*time.Hour), res.NextRefreshAt)
	pub.AssertNotCalled(t, "PublishBalance", mock.Anything, mock.Anything)
}

func TestLedgerService_GetBalanceUsesServiceClock(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	accounts.On("Get", ctx, "u1", now).Return(&ledger.Account{UserID: "u1", Balance: 3, CreatedAt: now}, nil).Once()

	acct, err := newService(accounts, nil).GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), acct.Balance)
	accounts.AssertExpectations(t)
}

func TestLedgerService_GetBalanceErrors(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	accounts.On("Get", ctx, "missing", now).Return(nil, repository.ErrNotFound)
	accounts.On("Get", ctx, "broken", now).Return(nil, errors.New("disk"))

	svc := newService(accounts, nil)
	_, err := svc.GetBalance(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = svc.GetBalance(ctx, "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestLedgerService_ListTransactionsClampsLimit(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	accounts.On("ListEntries", ctx, "u1", 50).Return([]ledger.Entry{{ID: "a"}}, nil).Once()
	accounts.On("ListEntries", ctx, "u1", 500).Return([]ledger.Entry{}, nil).Once()

	svc := newService(accounts, nil)
	entries, err := svc.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = svc.ListTransactions(ctx, "u1", 10000)
	require.NoError(t, err)
	accounts.AssertExpectations(t)
}

func TestLedgerService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	accounts := &mocks.AccountRepository{}
	m := metrics.NewServer(prometheus.NewRegistry())
	svc := ledger.NewService(accounts, nil, clock.NewFake(now), ledger.Config{Metrics: m}, nil)

	accounts.On("Apply", ctx, mock.MatchedBy(func(e *ledger.Entry) bool { return e.Amount == 1 })).Return(int64(4), nil).Once()
	accounts.On("Apply", ctx, mock.MatchedBy(func(e *ledger.Entry) bool { return e.Amount == 9 })).Return(int64(0), repository.ErrInsufficientCredits).Once()
	accounts.On("ClaimDaily", ctx, mock.Anything, now, 24*time.Hour).Return(&ledger.Account{UserID: "u1", Balance: 4}, int64(4), false, nil).Once()

	_, err := svc.Spend(ctx, "u1", 1, "enhance")
	require.NoError(t, err)
	_, err = svc.Spend(ctx, "u1", 9, "enhance")
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	_, err = svc.ClaimDaily(ctx, "u1")
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.CreditOps.WithLabelValues(string(ledger.TxSpend), metrics.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CreditOps.WithLabelValues(string(ledger.TxSpend), metrics.ResultRejected)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DailyGrants.WithLabelValues("false")))
}
