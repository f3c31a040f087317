package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/config"
	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/domain/ledger"
	"github.com/ganot/promptsync/internal/mcp"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/rpc"
	"github.com/ganot/promptsync/internal/sqlite"
	"github.com/ganot/promptsync/internal/transport"
	"github.com/go-chi/chi/v5"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

func main() {
	addKey := flag.String("add-key", "", "register `token` for -tenant and exit")
	tenant := flag.String("tenant", "", "tenant for -add-key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		logFile, err := openCappedLog(cfg.Log.Path, maxLogBytes, keepLogBytes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer logFile.Close()
			logWriter = logFile
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureParentDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	keys := sqlite.NewAPIKeyRepository(db)
	if *addKey != "" {
		if *tenant == "" {
			logger.Error("-add-key requires -tenant")
			os.Exit(1)
		}
		if err := keys.Add(context.Background(), *addKey, *tenant, "cli"); err != nil {
			logger.Error("failed to add api key", "error", err)
			os.Exit(1)
		}
		logger.Info("api key added", "tenant_id", *tenant)
		return
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewServer(registry)

	hub := transport.NewHub(logger, m)
	defer hub.Close()

	ledgerSvc := ledger.NewService(sqlite.NewAccountRepository(db), hub, clock.New(), ledger.Config{
		DailyAmount:   cfg.Credits.DailyAmount,
		RefreshWindow: cfg.Credits.RefreshWindow,
		Metrics:       m,
	}, logger)
	docSvc := document.NewService(sqlite.NewDocumentRepository(db), clock.New(), m, logger)

	mcpServer := mcp.NewServer(mcp.Config{
		Ledger:        ledgerSvc,
		Resolver:      keys,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		DefaultTenant: cfg.Auth.DefaultTenant,
		Version:       version,
		Logger:        logger,
	})

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(logger, mcpServer)
		return
	}

	auth := transport.AuthMiddleware(keys)
	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled, all requests act as the default tenant", "tenant_id", cfg.Auth.DefaultTenant)
		auth = transport.StaticTenant(cfg.Auth.DefaultTenant)
	}
	var limiter *transport.TenantLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = transport.NewTenantLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := transport.NewServer(rpc.NewHandler(ledgerSvc, docSvc), transport.Options{
		Auth:           auth,
		Limiter:        limiter,
		Hub:            hub,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Mount: func(r chi.Router) {
			r.Handle("/mcp", mcpHandler)
			r.Handle("/mcp/*", mcpHandler)
		},
		Metrics: m,
		Logger:  logger,
	})

	runHTTPMode(logger, router, cfg.Server.Host, cfg.Server.Port)
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(logger *slog.Logger, handler http.Handler, host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
