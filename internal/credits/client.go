// Package credits is the client side of the credit ledger: cached balance
// reads, atomic spend/earn, the daily refresh check, and live balance
// subscriptions.
//
// Writes are remote-first. The client never deducts optimistically; the
// cached balance only changes after the remote ledger confirms.
package credits

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/domain/credit"
	"github.com/ganot/promptsync/internal/localcache"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/syncstatus"
	"golang.org/x/sync/singleflight"
)

// Options configures a Client.
type Options struct {
	Remote credit.RemoteLedger
	Cache  localcache.Store
	// Source overrides the default polling heartbeat, e.g. with a push
	// channel.
	Source  BalanceSource
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	PollInterval  time.Duration
	RefreshWindow time.Duration
}

// Client is a CreditLedgerClient bound to one remote ledger and local cache.
type Client struct {
	remote        credit.RemoteLedger
	cache         localcache.Store
	source        BalanceSource
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
	refreshWindow time.Duration
	bus           *syncstatus.Bus
	fetches       singleflight.Group

	mu       sync.Mutex
	channels map[string]*channel
	nextID   uint64
	closed   bool
}

// channel is the shared subscription state for one user. The source runs for
// as long as listeners is non-empty.
type channel struct {
	listeners map[uint64]func(int64)
	stop      func()
}

// New creates a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache := opts.Cache
	if cache == nil {
		cache = localcache.NewMemoryStore()
	}
	window := opts.RefreshWindow
	if window <= 0 {
		window = credit.DefaultRefreshWindow
	}

	c := &Client{
		remote:        opts.Remote,
		cache:         cache,
		clock:         clock.OrDefault(opts.Clock),
		logger:        logger,
		metrics:       opts.Metrics,
		refreshWindow: window,
		bus:           syncstatus.NewBus("credits", logger),
		channels:      make(map[string]*channel),
	}
	c.source = opts.Source
	if c.source == nil {
		c.source = NewPollingSource(c, c.clock, opts.PollInterval, logger, opts.Metrics)
	}
	return c
}

// Consistency reports that credit writes are never applied optimistically.
func (c *Client) Consistency() syncstatus.Consistency {
	return syncstatus.AtomicRemoteFirst
}

// SyncStatus returns the status of the most recent remote write.
func (c *Client) SyncStatus() syncstatus.Status {
	return c.bus.Status()
}

// OnSyncStatusChange registers fn for remote write transitions.
func (c *Client) OnSyncStatusChange(fn func(syncstatus.Status)) func() {
	return c.bus.Subscribe(fn)
}

// GetBalance reads the balance from the remote ledger. When the remote is
// unreachable it serves the cached value marked Stale instead of failing.
func (c *Client) GetBalance(ctx context.Context, userID string) (credit.Balance, error) {
	if userID == "" {
		return credit.Balance{}, credit.ErrMissingUserID
	}

	snap, err := c.fetch(ctx, userID)
	if err != nil {
		cached, ok := c.readCachedBalance(userID)
		if !ok {
			return credit.Balance{}, fmt.Errorf("%w: %v", credit.ErrNoCachedBalance, err)
		}
		c.logger.Warn("serving cached balance", "user_id", userID, "cached_at", cached.CachedAt, "error", err)
		return c.balanceFrom(cached.Value, cached.LastRefreshedAt, true), nil
	}
	return c.balanceFrom(snap.Balance, snap.LastRefreshedAt, false), nil
}

// FetchBalance returns the remote balance and refreshes the cache. It backs
// the polling heartbeat.
func (c *Client) FetchBalance(ctx context.Context, userID string) (int64, error) {
	snap, err := c.fetch(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snap.Balance, nil
}

// CachedBalance returns the last balance written to the local cache, for
// instant paint before the first remote read.
func (c *Client) CachedBalance(userID string) (credit.Balance, bool) {
	cached, ok := c.readCachedBalance(userID)
	if !ok {
		return credit.Balance{}, false
	}
	return c.balanceFrom(cached.Value, cached.LastRefreshedAt, true), true
}

// Spend deducts amount credits as one atomic remote operation. A zero amount
// spends DefaultSpendAmount.
//
// A remote failure returns an unsuccessful Transaction together with the
// error, and leaves the cached balance untouched. A policy rejection (for
// example insufficient credits) returns the remote's Transaction with a nil
// error. Subscribers are notified synchronously on success.
func (c *Client) Spend(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	if userID == "" {
		return credit.Transaction{}, credit.ErrMissingUserID
	}
	if amount == 0 {
		amount = credit.DefaultSpendAmount
	}
	if amount < 0 {
		return credit.Transaction{}, credit.ErrInvalidAmount
	}
	return c.write(userID, "spend", func() (credit.Transaction, error) {
		return c.remote.Spend(ctx, userID, amount, reason)
	})
}

// Earn adds amount credits as one atomic remote operation.
func (c *Client) Earn(ctx context.Context, userID string, amount int64, reason string) (credit.Transaction, error) {
	if userID == "" {
		return credit.Transaction{}, credit.ErrMissingUserID
	}
	if amount <= 0 {
		return credit.Transaction{}, credit.ErrInvalidAmount
	}
	return c.write(userID, "earn", func() (credit.Transaction, error) {
		return c.remote.Earn(ctx, userID, amount, reason)
	})
}

func (c *Client) write(userID, op string, call func() (credit.Transaction, error)) (credit.Transaction, error) {
	c.bus.Syncing()

	tx, err := call()
	if err != nil {
		c.metrics.CreditOp(op, metrics.ResultError)
		c.bus.Failed(err)
		c.logger.Error("credit write failed", "op", op, "user_id", userID, "error", err)
		return credit.Transaction{Success: false, Error: err.Error()}, fmt.Errorf("%s credits: %w", op, err)
	}

	c.bus.Synced(c.clock.Now())
	if !tx.Success {
		c.metrics.CreditOp(op, metrics.ResultRejected)
		c.logger.Info("credit write rejected", "op", op, "user_id", userID, "reason", tx.Error)
		return tx, nil
	}

	c.metrics.CreditOp(op, metrics.ResultOK)
	c.writeCachedBalance(userID, tx.NewBalance, time.Time{})
	c.notify(userID, tx.NewBalance)
	return tx, nil
}

// CheckAndRefreshDaily asks the remote ledger to grant the daily credits. The
// remote holds the refresh marker and compares wall-clock deltas, so repeated
// calls within one window grant at most once.
func (c *Client) CheckAndRefreshDaily(ctx context.Context, userID string) (credit.RefreshResult, error) {
	if userID == "" {
		return credit.RefreshResult{}, credit.ErrMissingUserID
	}

	c.bus.Syncing()
	res, err := c.remote.ClaimDaily(ctx, userID)
	if err != nil {
		c.bus.Failed(err)
		c.logger.Error("daily refresh failed", "user_id", userID, "error", err)
		return credit.RefreshResult{}, fmt.Errorf("claiming daily credits: %w", err)
	}
	c.bus.Synced(c.clock.Now())
	c.metrics.DailyCheck(res.WasRefreshed)

	if res.NextRefreshAt.IsZero() && !res.LastRefreshedAt.IsZero() {
		res.NextRefreshAt = res.LastRefreshedAt.Add(c.refreshWindow)
	}
	c.writeRefreshMarker(userID, res.LastRefreshedAt, res.NextRefreshAt)
	c.writeCachedBalance(userID, res.NewBalance, res.LastRefreshedAt)

	if res.WasRefreshed {
		c.logger.Info("daily credits granted", "user_id", userID, "balance", res.NewBalance)
		c.notify(userID, res.NewBalance)
	}
	return res, nil
}

// Subscribe registers fn to receive balance updates for userID. Subscribers
// for the same user share one balance source; the source stops when the last
// subscriber unsubscribes. The returned function is idempotent.
func (c *Client) Subscribe(userID string, fn func(balance int64)) (func(), error) {
	if userID == "" {
		return nil, credit.ErrMissingUserID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, credit.ErrClientClosed
	}

	ch, ok := c.channels[userID]
	if !ok {
		ch = &channel{listeners: make(map[uint64]func(int64))}
		c.channels[userID] = ch
		ch.stop = c.source.Watch(userID, func(balance int64) {
			c.onSourceUpdate(userID, ch, balance)
		})
		c.metrics.ChannelOpened()
	}
	c.nextID++
	id := c.nextID
	ch.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(userID, ch, id) })
	}, nil
}

// Subscribers returns the number of live subscribers for userID.
func (c *Client) Subscribers(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[userID]; ok {
		return len(ch.listeners)
	}
	return 0
}

func (c *Client) unsubscribe(userID string, ch *channel, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels[userID] != ch {
		return
	}
	delete(ch.listeners, id)
	if len(ch.listeners) > 0 {
		return
	}
	delete(c.channels, userID)
	ch.stop()
	c.metrics.ChannelClosed()
}

func (c *Client) onSourceUpdate(userID string, ch *channel, balance int64) {
	c.mu.Lock()
	live := c.channels[userID] == ch
	c.mu.Unlock()
	if !live {
		return
	}
	c.writeCachedBalance(userID, balance, time.Time{})
	c.notify(userID, balance)
}

func (c *Client) notify(userID string, balance int64) {
	c.mu.Lock()
	ch, ok := c.channels[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	listeners := make([]func(int64), 0, len(ch.listeners))
	for _, fn := range ch.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		c.deliver(userID, fn, balance)
	}
}

func (c *Client) deliver(userID string, fn func(int64), balance int64) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("balance subscriber panicked", "user_id", userID, "error", fmt.Sprint(r))
		}
	}()
	fn(balance)
}

// Cleanup stops every balance source, drops all subscribers, and resets the
// sync status. The client rejects new subscriptions afterwards.
func (c *Client) Cleanup() {
	c.mu.Lock()
	c.closed = true
	channels := c.channels
	c.channels = make(map[string]*channel)
	c.mu.Unlock()

	for _, ch := range channels {
		ch.stop()
		c.metrics.ChannelClosed()
	}
	c.bus.Reset()
}

func (c *Client) fetch(ctx context.Context, userID string) (credit.Snapshot, error) {
	v, err, _ := c.fetches.Do(userID, func() (any, error) {
		snap, err := c.remote.GetBalance(ctx, userID)
		if err != nil {
			return credit.Snapshot{}, err
		}
		c.writeCachedBalance(userID, snap.Balance, snap.LastRefreshedAt)
		return snap, nil
	})
	if err != nil {
		return credit.Snapshot{}, fmt.Errorf("fetching balance: %w", err)
	}
	return v.(credit.Snapshot), nil
}

func (c *Client) balanceFrom(value int64, lastRefreshedAt time.Time, stale bool) credit.Balance {
	next := c.clock.Now()
	if !lastRefreshedAt.IsZero() {
		next = lastRefreshedAt.Add(c.refreshWindow)
	}
	return credit.Balance{
		Value:           value,
		LastRefreshedAt: lastRefreshedAt,
		NextRefreshAt:   next,
		Stale:           stale,
	}
}
