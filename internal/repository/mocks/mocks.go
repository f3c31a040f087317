package mocks

import (
	"context"
	"time"

	"github.com/ganot/promptsync/internal/domain/credit"
	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/stretchr/testify/mock"
)

// AccountRepository is a mock for ledger.AccountRepository.
type AccountRepository struct {
	mock.Mock
}

func (m *AccountRepository) Get(ctx context.Context, userID string, now time.Time) (*ledger.Account, error) {
	args := m.Called(ctx, userID, now)
	if acct, ok := args.Get(0).(*ledger.Account); ok {
		return acct, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AccountRepository) Apply(ctx context.Context, entry *ledger.Entry) (int64, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AccountRepository) ClaimDaily(ctx context.Context, entry *ledger.Entry, now time.Time, window time.Duration) (*ledger.Account, int64, bool, error) {
	args := m.Called(ctx, entry, now, window)
	acct, _ := args.Get(0).(*ledger.Account)
	return acct, args.Get(1).(int64), args.Bool(2), args.Error(3)
}

func (m *AccountRepository) ListEntries(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	args := m.Called(ctx, userID, limit)
	if list, ok := args.Get(0).([]ledger.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// BalancePublisher is a mock for ledger.BalancePublisher.
type BalancePublisher struct {
	mock.Mock
}

func (m *BalancePublisher) PublishBalance(userID string, balance int64) {
	m.Called(userID, balance)
}

// DocumentRepository is a mock for document.Repository.
type DocumentRepository struct {
	mock.Mock
}

func (m *DocumentRepository) Get(ctx context.Context, userID string, kind document.Kind) (*document.Document, error) {
	args := m.Called(ctx, userID, kind)
	if doc, ok := args.Get(0).(*document.Document); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DocumentRepository) Put(ctx context.Context, doc *document.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

// RemoteLedger is a mock for credit.RemoteLedger.
type RemoteLedger struct {
	mock.Mock
}

func (m *RemoteLedger) GetBalance(ctx context.Context, userID string) (credit.Snapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(credit.Snapshot), args.Error(1)
}

func (m *RemoteLedger) Spend(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	args := m.Called(ctx, userID, amount, reason)
	return args.Get(0).(credit.Transaction), args.Error(1)
}

func (m *RemoteLedger) Earn(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	args := m.Called(ctx, userID, amount, reason)
	return args.Get(0).(credit.Transaction), args.Error(1)
}

func (m *RemoteLedger) ClaimDaily(ctx context.Context, userID string) (credit.RefreshResult, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(credit.RefreshResult), args.Error(1)
}
