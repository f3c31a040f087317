// Package mcp exposes the credit ledger as Model Context Protocol tools so
// agents can check and spend credits on a user's behalf.
package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/promptsync/internal/domain/ledger"
)

const serverInstructions = `promptsync credit ledger.
Call get_balance before spending. spend_credits is atomic: when it reports
success false the balance was not changed and the dependent action must not
proceed. claim_daily_credits is safe to call repeatedly; it grants at most
once per refresh window.`

// LedgerService defines ledger operations needed by MCP.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (*ledger.Account, error)
	Spend(ctx context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error)
	Earn(ctx context.Context, userID string, amount int64, reason string) (*ledger.TransferResult, error)
	ClaimDaily(ctx context.Context, userID string) (*ledger.ClaimResult, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)
}

// Config contains server configuration.
type Config struct {
	Ledger        LedgerService
	Resolver      TenantResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	// DefaultTenant is used when auth is off.
	DefaultTenant string
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "promptsync",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	// Stdio is local only and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		tenant := cfg.DefaultTenant
		if tenant == "" {
			tenant = "default"
		}
		server.AddReceivingMiddleware(fixedTenantMiddleware(tenant))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Ledger)

	return server
}
