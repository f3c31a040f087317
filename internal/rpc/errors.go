package rpc

import (
	"errors"
	"fmt"

	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/domain/ledger"
)

// APIError is a domain error with a stable code for clients.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) CodeValue() string {
	return e.Code
}

func (e *APIError) MessageValue() string {
	return e.Message
}

func (e *APIError) DetailsValue() any {
	return e.Details
}

func (e *APIError) RecoveryHintValue() string {
	return e.RecoveryHint
}

// Error codes.
const (
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "ACCOUNT_NOT_FOUND"
)

// MapError maps domain errors to API error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, document.ErrInvalidInput):
		return &APIError{Code: CodeInvalidInput, Message: err.Error(), RecoveryHint: "Pass a user_id and a positive amount"}
	case errors.Is(err, ledger.ErrAccountNotFound):
		return &APIError{Code: CodeNotFound, Message: "account not found"}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
