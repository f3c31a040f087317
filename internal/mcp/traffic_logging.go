package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxLoggedPayload caps each logged params/result body.
const maxLoggedPayload = 2048

// trafficLoggingMiddleware logs each MCP exchange at debug level, naming the
// tool for tools/call so ledger activity can be followed in the log.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			params := safeParams(req)
			attrs := []any{"direction", direction, "method", method, "tenant_id", tenantFrom(ctx)}
			if call, ok := params.(*sdkmcp.CallToolParamsRaw); ok && call != nil {
				attrs = append(attrs, "tool", call.Name)
			}
			logger.Debug("mcp traffic", append(attrs, "stage", "request", "params", formatPayload(params))...)

			result, err := next(ctx, method, req)
			if !strings.HasPrefix(method, "notifications/") {
				respAttrs := append(attrs, "stage", "response", "result", formatPayload(result))
				if err != nil {
					respAttrs = append(respAttrs, "error", err)
				}
				logger.Debug("mcp traffic", respAttrs...)
			}

			return result, err
		}
	}
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	if len(data) > maxLoggedPayload {
		return string(data[:maxLoggedPayload]) + "...(truncated)"
	}
	return string(data)
}
