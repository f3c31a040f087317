// Package ledger is the reference implementation of the authoritative credit
// ledger that clients reach over RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultDailyAmount   int64 = 10
	defaultRefreshWindow       = 24 * time.Hour
	defaultHistoryLimit        = 50
	maxHistoryLimit            = 500
)

// Config holds ledger policy.
type Config struct {
	DailyAmount   int64
	RefreshWindow time.Duration
	// Metrics records operation outcomes. Nil disables it.
	Metrics *metrics.Metrics
}

// Service handles ledger business logic.
type Service struct {
	accounts  AccountRepository
	publisher BalancePublisher
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a new ledger service. publisher may be nil.
func NewService(accounts AccountRepository, publisher BalancePublisher, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.DailyAmount <= 0 {
		cfg.DailyAmount = defaultDailyAmount
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = defaultRefreshWindow
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		accounts:  accounts,
		publisher: publisher,
		clock:     clock.OrDefault(clk),
		cfg:       cfg,
		logger:    logger,
	}
}

// RefreshWindow returns the configured daily refresh window.
func (s *Service) RefreshWindow() time.Duration {
	return s.cfg.RefreshWindow
}

// GetBalance returns the user's account.
func (s *Service) GetBalance(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	acct, err := s.accounts.Get(ctx, userID, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return acct, nil
}

// Spend atomically deducts amount. It fails with ErrInsufficientCredits and
// no side effects when the balance is too low.
func (s *Service) Spend(ctx context.Context, userID string, amount int64, reason string) (*TransferResult, error) {
	return s.apply(ctx, userID, TxSpend, amount, reason)
}

// Earn atomically adds amount.
func (s *Service) Earn(ctx context.Context, userID string, amount int64, reason string) (*TransferResult, error) {
	return s.apply(ctx, userID, TxEarn, amount, reason)
}

func (s *Service) apply(ctx context.Context, userID string, typ TransactionType, amount int64, reason string) (*TransferResult, error) {
	if userID == "" || amount <= 0 {
		return nil, ErrInvalidInput
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: s.clock.Now(),
	}
	balance, err := s.accounts.Apply(ctx, entry)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			s.cfg.Metrics.CreditOp(string(typ), metrics.ResultRejected)
			return nil, ErrInsufficientCredits
		}
		s.cfg.Metrics.CreditOp(string(typ), metrics.ResultError)
		return nil, fmt.Errorf("applying %s: %w", typ, err)
	}
	s.cfg.Metrics.CreditOp(string(typ), metrics.ResultOK)

	s.logger.Debug("ledger entry applied", "user_id", userID, "type", typ, "amount", amount, "balance", balance)
	s.publish(userID, balance)
	return &TransferResult{TransactionID: entry.ID, Balance: balance}, nil
}

// ClaimDaily grants the daily amount once per refresh window. The marker lives
// in the account row, so clearing client storage or switching devices cannot
// produce a second grant.
func (s *Service) ClaimDaily(ctx context.Context, userID string) (*ClaimResult, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	now := s.clock.Now()
	entry := &Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      TxBonus,
		Amount:    s.cfg.DailyAmount,
		Reason:    "daily refresh",
		CreatedAt: now,
	}
	acct, previous, granted, err := s.accounts.ClaimDaily(ctx, entry, now, s.cfg.RefreshWindow)
	if err != nil {
		return nil, fmt.Errorf("claiming daily credits: %w", err)
	}
	s.cfg.Metrics.DailyCheck(granted)

	result := &ClaimResult{
		Granted:         granted,
		PreviousBalance: previous,
		Balance:         acct.Balance,
	}
	if acct.LastRefreshedAt != nil {
		result.LastRefreshedAt = *acct.LastRefreshedAt
		result.NextRefreshAt = acct.LastRefreshedAt.Add(s.cfg.RefreshWindow)
	}
	if granted {
		s.logger.Info("daily credits granted", "user_id", userID, "amount", s.cfg.DailyAmount, "balance", acct.Balance)
		s.publish(userID, acct.Balance)
	}
	return result, nil
}

// ListTransactions returns the most recent entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	entries, err := s.accounts.ListEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return entries, nil
}

func (s *Service) publish(userID string, balance int64) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBalance(userID, balance)
}
