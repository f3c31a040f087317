// Package testserver runs the full backend in-process for end-to-end tests.
package testserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/remote"
	"github.com/ganot/promptsync/internal/rpc"
	"github.com/ganot/promptsync/internal/sqlite"
	"github.com/ganot/promptsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// TestServer is a running backend with one registered API key.
type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Clock    *clock.Fake
	Hub      *transport.Hub
	Ledger   *ledger.Service
	Metrics  *metrics.Metrics
	Token    string
	TenantID string

	keys *sqlite.APIKeyRepository
}

// New starts a backend on an in-memory database. The ledger runs on a fake
// clock starting at a fixed instant.
func New(t *testing.T, token, tenantID string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := metrics.NewServer(prometheus.NewRegistry())
	hub := transport.NewHub(nil, m)

	accounts := sqlite.NewAccountRepository(db)
	documents := sqlite.NewDocumentRepository(db)
	keys := sqlite.NewAPIKeyRepository(db)

	ledgerSvc := ledger.NewService(accounts, hub, clk, ledger.Config{Metrics: m}, nil)
	docSvc := document.NewService(documents, clk, m, nil)

	handler := rpc.NewHandler(ledgerSvc, docSvc)
	server := httptest.NewServer(transport.NewServer(handler, transport.Options{
		Auth:    transport.AuthMiddleware(keys),
		Hub:     hub,
		Metrics: m,
	}))

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Clock:    clk,
		Hub:      hub,
		Ledger:   ledgerSvc,
		Metrics:  m,
		Token:    token,
		TenantID: tenantID,
		keys:     keys,
	}

	require.NoError(t, ts.AddAPIKey(token, tenantID))

	t.Cleanup(func() {
		hub.Close()
		server.Close()
		_ = db.Close()
	})

	return ts
}

// AddAPIKey registers another token.
func (ts *TestServer) AddAPIKey(token, tenantID string) error {
	return ts.keys.Add(context.Background(), token, tenantID, "test")
}

// RemoteConfig returns client settings pointing at this server.
func (ts *TestServer) RemoteConfig() remote.Config {
	return remote.Config{
		BaseURL: ts.Server.URL,
		Token:   ts.Token,
		Timeout: 5 * time.Second,
	}
}

// Client returns a JSON-RPC client authenticated as the server's tenant.
func (ts *TestServer) Client() *remote.Client {
	return remote.NewClient(ts.RemoteConfig(), nil)
}
