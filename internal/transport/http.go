package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ganot/promptsync/internal/metrics"
)

// Handler dispatches JSON-RPC methods on behalf of an authenticated tenant.
type Handler interface {
	Handle(ctx context.Context, tenantID, method string, params json.RawMessage) (any, error)
}

// Options wires optional server features.
type Options struct {
	// Auth resolves the tenant for /rpc and /ws routes. Required.
	Auth func(http.Handler) http.Handler
	// Limiter throttles authenticated routes per tenant.
	Limiter *TenantLimiter
	// Hub serves live balance events on /ws/balance.
	Hub *Hub
	// MetricsHandler is mounted on /metrics.
	MetricsHandler http.Handler
	// Mount attaches extra authenticated-or-not routes, e.g. an MCP endpoint.
	Mount   func(r chi.Router)
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	handler Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(handler Handler, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{handler: handler, metrics: opts.Metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.With(middleware.Timeout(30*time.Second)).Post("/rpc", srv.handleRPC)
		if opts.Hub != nil {
			r.Get("/ws/balance", opts.Hub.ServeHTTP)
		}
	})

	if opts.Mount != nil {
		opts.Mount(r)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		WriteError(w, nil, ErrInvalidReq, "invalid request", nil)
		return
	}

	tenantID, ok := TenantFromContext(r.Context())
	if !ok || tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	result, err := s.handler.Handle(r.Context(), tenantID, req.Method, req.Params)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		rpcErr := ErrorFor(err)
		if rpcErr.Code == ErrInternal {
			s.logger.Error("rpc failed", "method", req.Method, "tenant_id", tenantID,
				"request_id", middleware.GetReqID(r.Context()), "error", err)
			s.metrics.RPC(req.Method, metrics.ResultError)
		} else {
			s.metrics.RPC(req.Method, metrics.ResultRejected)
		}
		WriteError(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	s.metrics.RPC(req.Method, metrics.ResultOK)
	WriteResult(w, req.ID, result)
}
