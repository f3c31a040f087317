package credit

import "errors"

var (
	// ErrMissingUserID indicates an operation was attempted without a user.
	ErrMissingUserID = errors.New("user id is required")
	// ErrInvalidAmount indicates a negative or zero credit amount.
	ErrInvalidAmount = errors.New("credit amount must be positive")
	// ErrNoCachedBalance indicates the remote was unreachable and nothing was cached.
	ErrNoCachedBalance = errors.New("balance unavailable and no cached value")
	// ErrClientClosed indicates the client has been cleaned up.
	ErrClientClosed = errors.New("credit client closed")
)
