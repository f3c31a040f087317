package credits

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/domain/credit"
	"github.com/ganot/promptsync/internal/metrics"
)

// BalanceSource delivers balance updates for one user until stopped.
// Watch must return without calling update; updates arrive asynchronously
// (or from a fake clock's Advance in tests).
type BalanceSource interface {
	Watch(userID string, update func(balance int64)) (stop func())
}

// BalanceFetcher reads the current balance for a user.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, userID string) (int64, error)
}

// PollingSource is a heartbeat BalanceSource: it re-fetches the balance on a
// fixed interval. It gives eventual convergence, not sub-interval freshness.
type PollingSource struct {
	fetcher  BalanceFetcher
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPollingSource creates a PollingSource. A non-positive interval falls back
// to the default heartbeat.
func NewPollingSource(fetcher BalanceFetcher, clk clock.Clock, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *PollingSource {
	if interval <= 0 {
		interval = credit.DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PollingSource{
		fetcher:  fetcher,
		clock:    clock.OrDefault(clk),
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Watch starts polling for userID. The first fetch happens one interval after
// the call.
func (p *PollingSource) Watch(userID string, update func(int64)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	w := &pollWatch{source: p, userID: userID, update: update, ctx: ctx, cancel: cancel}
	w.schedule()
	return w.stop
}

type pollWatch struct {
	source *PollingSource
	userID string
	update func(int64)
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func (w *pollWatch) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer = w.source.clock.AfterFunc(w.source.interval, w.tick)
}

func (w *pollWatch) tick() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	balance, err := w.source.fetcher.FetchBalance(w.ctx, w.userID)

	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	if err != nil {
		w.source.metrics.BalancePoll(metrics.ResultError)
		w.source.logger.Debug("balance poll failed", "user_id", w.userID, "error", err)
	} else {
		w.source.metrics.BalancePoll(metrics.ResultOK)
		w.update(balance)
	}
	w.schedule()
}

func (w *pollWatch) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
}
