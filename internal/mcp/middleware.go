package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/promptsync/internal/transport"
)

// TenantResolver resolves a tenant ID from a bearer token. It is the same
// resolver the JSON-RPC routes use.
type TenantResolver = transport.TenantResolver

// tenantFrom returns the tenant the tools act for. The tenant is also the
// ledger user id.
func tenantFrom(ctx context.Context) string {
	tenantID, _ := transport.TenantFromContext(ctx)
	return tenantID
}

// protocolMethod reports whether method is MCP plumbing that needs no tenant.
func protocolMethod(method string) bool {
	return method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/")
}

// authMiddleware resolves the bearer token on every request that reaches a
// tool.
func authMiddleware(resolver TenantResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if protocolMethod(method) {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", transport.ErrUnauthorized)
			}

			token := strings.TrimSpace(strings.TrimPrefix(extra.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", transport.ErrUnauthorized)
			}

			tenantID, err := resolver.ResolveTenant(ctx, token)
			if err != nil || tenantID == "" {
				return nil, fmt.Errorf("%w: invalid bearer token", transport.ErrUnauthorized)
			}

			return next(transport.WithTenant(ctx, tenantID), method, req)
		}
	}
}

// fixedTenantMiddleware acts for one tenant. Used for stdio and when auth is
// off.
func fixedTenantMiddleware(tenantID string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(transport.WithTenant(ctx, tenantID), method, req)
		}
	}
}
