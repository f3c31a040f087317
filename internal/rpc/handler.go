// Package rpc maps JSON-RPC methods onto the ledger and document services.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/transport"
)

// Method names.
const (
	MethodGetBalance       = "get_user_balance"
	MethodSpend            = "spend_credits"
	MethodEarn             = "add_credits"
	MethodClaimDaily       = "claim_daily_credits"
	MethodListTransactions = "list_transactions"
	MethodSaveDraft        = "save_draft"
	MethodGetDraft         = "get_draft"
	MethodSaveSession      = "save_session"
	MethodGetSession       = "get_session"
)

// LedgerService defines ledger operations needed by RPC.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (*ledger.Account, error)
	Spend(ctx context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error)
	Earn(ctx context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error)
	ClaimDaily(ctx context.Context, userID string) (*ledger.ClaimResult, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)
}

// DocumentService defines document operations needed by RPC.
type DocumentService interface {
	Save(ctx context.Context, userID string, kind document.Kind, body json.RawMessage) (*document.Document, error)
	Get(ctx context.Context, userID string, kind document.Kind) (*document.Document, error)
}

// Handler dispatches RPC methods.
type Handler struct {
	ledger LedgerService
	docs   DocumentService
}

// NewHandler creates a new RPC handler.
func NewHandler(ledgerSvc LedgerService, docs DocumentService) *Handler {
	return &Handler{ledger: ledgerSvc, docs: docs}
}

// Handle dispatches a request from tenantID.
func (h *Handler) Handle(ctx context.Context, tenantID, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodGetBalance:
		var req UserParams
		userID, err := decodeFor(tenantID, params, &req, &req.UserID)
		if err != nil {
			return nil, err
		}
		acct, err := h.ledger.GetBalance(ctx, userID)
		if err != nil {
			return nil, mapError(err)
		}
		return BalanceResponse{Success: true, Balance: acct.Balance, LastRefreshedAt: acct.LastRefreshedAt}, nil

	case MethodSpend:
		var req TransferParams
		userID, err := decodeFor(tenantID, params, &req, &req.UserID)
		if err != nil {
			return nil, err
		}
		res, err := h.ledger.Spend(ctx, userID, req.Amount, req.Reason)
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			acct, getErr := h.ledger.GetBalance(ctx, userID)
			if getErr != nil {
				return nil, mapError(getErr)
			}
			return SpendResponse{Success: false, Balance: acct.Balance, Error: err.Error()}, nil
		}
		if err != nil {
			return nil, mapError(err)
		}
		return SpendResponse{Success: true, Balance: res.Balance, TransactionID: res.TransactionID}, nil

	case MethodEarn:
		var req TransferParams
		userID, err := decodeFor(tenantID, params, &req, &req.UserID)
		if err != nil {
			return nil, err
		}
		res, err := h.ledger.Earn(ctx, userID, req.Amount, req.Reason)
		if err != nil {
			return nil, mapError(err)
		}
		return EarnResponse{
			Success:       true,
			Balance:       res.Balance,
			TransactionID: res.TransactionID,
			Message:       fmt.Sprintf("added %d credits", req.Amount),
		}, nil

	case MethodClaimDaily:
		var req UserParams
		userID, err := decodeFor(tenantID, params, &req, &req.UserID)
		if err != nil {
			return nil, err
		}
		res, err := h.ledger.ClaimDaily(ctx, userID)
		if err != nil {
			return nil, mapError(err)
		}
		return ClaimDailyResponse{
			Success:         true,
			Granted:         res.Granted,
			Balance:         res.Balance,
			PreviousBalance: res.PreviousBalance,
			LastRefreshedAt: res.LastRefreshedAt,
			NextRefreshAt:   res.NextRefreshAt,
		}, nil

	case MethodListTransactions:
		var req ListTransactionsParams
		userID, err := decodeFor(tenantID, params, &req, &req.UserID)
		if err != nil {
			return nil, err
		}
		entries, err := h.ledger.ListTransactions(ctx, userID, req.Limit)
		if err != nil {
			return nil, mapError(err)
		}
		resp := ListTransactionsResponse{Transactions: make([]TransactionResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Transactions = append(resp.Transactions, TransactionResponse{
				ID:           e.ID,
				Type:         string(e.Type),
				Amount:       e.Amount,
				Reason:       e.Reason,
				BalanceAfter: e.BalanceAfter,
				CreatedAt:    e.CreatedAt,
			})
		}
		return resp, nil

	case MethodSaveDraft:
		return h.saveDocument(ctx, tenantID, document.KindDraft, params)
	case MethodGetDraft:
		return h.getDocument(ctx, tenantID, document.KindDraft, params)
	case MethodSaveSession:
		return h.saveDocument(ctx, tenantID, document.KindSession, params)
	case MethodGetSession:
		return h.getDocument(ctx, tenantID, document.KindSession, params)

	default:
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownMethod, method)
	}
}

func (h *Handler) saveDocument(ctx context.Context, tenantID string, kind document.Kind, params json.RawMessage) (any, error) {
	var req SaveDocumentParams
	userID, err := decodeFor(tenantID, params, &req, &req.UserID)
	if err != nil {
		return nil, err
	}
	doc, err := h.docs.Save(ctx, userID, kind, req.Document)
	if err != nil {
		return nil, mapError(err)
	}
	return SaveDocumentResponse{Success: true, UpdatedAt: doc.UpdatedAt}, nil
}

func (h *Handler) getDocument(ctx context.Context, tenantID string, kind document.Kind, params json.RawMessage) (any, error) {
	var req UserParams
	userID, err := decodeFor(tenantID, params, &req, &req.UserID)
	if err != nil {
		return nil, err
	}
	doc, err := h.docs.Get(ctx, userID, kind)
	if errors.Is(err, document.ErrNotFound) {
		return GetDocumentResponse{Document: json.RawMessage("null")}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return GetDocumentResponse{Document: doc.Body}, nil
}

// decodeFor decodes params into out and resolves the target user. Callers may
// only act on their own account.
func decodeFor(tenantID string, params json.RawMessage, out any, userID *string) (string, error) {
	if len(params) > 0 {
		if err := json.Unmarshal(params, out); err != nil {
			return "", fmt.Errorf("%w: %v", transport.ErrBadParams, err)
		}
	}
	if *userID == "" {
		return tenantID, nil
	}
	if *userID != tenantID {
		return "", &APIError{
			Code:         CodeForbidden,
			Message:      "user_id does not match the authenticated account",
			RecoveryHint: "Omit user_id or pass your own",
		}
	}
	return *userID, nil
}
