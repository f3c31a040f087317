// Package remote is the client side of the JSON-RPC backend: it implements
// the credit ledger, transaction history and document stores the sync
// clients depend on.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ganot/promptsync/internal/transport"
)

// DefaultTimeout bounds a single RPC when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client calls the backend over JSON-RPC.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
	nextID  atomic.Int64
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		logger:  logger,
	}
}

// Call invokes method with params and decodes the result into out. Server
// side errors are returned as *transport.Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := c.nextID.Add(1)
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}
	body, err := json.Marshal(transport.Request{JSONRPC: "2.0", Method: method, Params: rawParams, ID: id})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("rpc call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calling %s: %s: %s", method, resp.Status, strings.TrimSpace(string(msg)))
	}

	var rpcResp transport.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}
