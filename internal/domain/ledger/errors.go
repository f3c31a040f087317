package ledger

import "errors"

var (
	// ErrInsufficientCredits indicates a spend larger than the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidInput indicates a missing user or a non-positive amount.
	ErrInvalidInput = errors.New("invalid ledger input")
	// ErrAccountNotFound indicates the account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")
)
