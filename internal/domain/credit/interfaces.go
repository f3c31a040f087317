package credit

import "context"

// RemoteLedger is the authoritative ledger. Every method maps to one atomic
// server-side operation.
//
// Spend and Earn return a non-nil error only when the call itself failed
// (transport, server fault). A policy rejection such as insufficient credits
// is reported as a Transaction with Success false.
type RemoteLedger interface {
	GetBalance(ctx context.Context, userID string) (Snapshot, error)
	Spend(ctx context.Context, userID string, amount int64, reason string) (Transaction, error)
	Earn(ctx context.Context, userID string, amount int64, reason string) (Transaction, error)
	// ClaimDaily grants the server-configured daily amount at most once per
	// refresh window, using a marker held by the server.
	ClaimDaily(ctx context.Context, userID string) (RefreshResult, error)
}
