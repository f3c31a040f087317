package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ganot/promptsync/internal/config"
	"github.com/ganot/promptsync/internal/credits"
	"github.com/ganot/promptsync/internal/docsync"
	"github.com/ganot/promptsync/internal/localcache"
	"github.com/ganot/promptsync/internal/remote"
	"github.com/ganot/promptsync/internal/sqlite"
	"github.com/spf13/cobra"
)

// app is the client stack for one command invocation.
type app struct {
	cfg     config.Config
	userID  string
	out     *OutputFormatter
	logger  *slog.Logger
	cacheDB *sqlite.DB
	cache   localcache.Store
	rpc     *remote.Client
	ledger  *remote.Ledger
	push    *remote.PushSource
	credits *credits.Client
}

func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("PROMPTSYNC_CONFIG_PATH")
	}
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}

	userID := opts.UserID
	if userID == "" {
		userID = cfg.Remote.UserID
	}
	if userID == "" {
		return nil, NewExitError(ExitCommandError, "no user: pass --user or set remote.user_id")
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cacheDB, err := openCacheDB(cfg.Cache.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open cache", err)
	}
	cache, err := localcache.NewSQLiteStore(cacheDB)
	if err != nil {
		_ = cacheDB.Close()
		return nil, WrapExitError(ExitCommandError, "open cache", err)
	}

	remoteCfg := remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout,
	}
	rpcClient := remote.NewClient(remoteCfg, logger)
	ledgerClient := remote.NewLedger(rpcClient)

	a := &app{
		cfg:     cfg,
		userID:  userID,
		logger:  logger,
		cacheDB: cacheDB,
		cache:   cache,
		rpc:     rpcClient,
		ledger:  ledgerClient,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
		},
	}

	creditOpts := credits.Options{
		Remote:        ledgerClient,
		Cache:         cache,
		Logger:        logger,
		PollInterval:  cfg.Credits.PollInterval,
		RefreshWindow: cfg.Credits.RefreshWindow,
	}
	if cfg.Remote.Push {
		a.push = remote.NewPushSource(remoteCfg, logger)
		creditOpts.Source = a.push
	}
	a.credits = credits.New(creditOpts)
	return a, nil
}

func (a *app) Close() {
	a.credits.Cleanup()
	if a.push != nil {
		a.push.Wait()
	}
	_ = a.cacheDB.Close()
}

func (a *app) draftSyncer() (*docsync.Syncer[docsync.Draft], error) {
	return docsync.NewDraftSyncer(a.rpc.Drafts(), docsync.Deps{
		Cache:    a.cache,
		Logger:   a.logger,
		Debounce: a.cfg.Sync.DraftDebounce,
	})
}

func (a *app) sessionSyncer() (*docsync.Syncer[docsync.Session], error) {
	return docsync.NewSessionSyncer(a.rpc.Sessions(), docsync.Deps{
		Cache:    a.cache,
		Logger:   a.logger,
		Debounce: a.cfg.Sync.SessionDebounce,
	})
}

func openCacheDB(path string) (*sqlite.DB, error) {
	if path != ":memory:" && path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	if path == "" {
		path = ":memory:"
	}
	return sqlite.New(path)
}

// remoteError turns a failed remote call into a command error.
func remoteError(op string, err error) error {
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", op), err)
}
