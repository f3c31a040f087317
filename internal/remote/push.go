package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ganot/promptsync/internal/transport"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// PushSource is a BalanceSource fed by the server's websocket channel. It
// reconnects with exponential backoff until stopped.
type PushSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewPushSource creates a PushSource for the server at baseURL.
func NewPushSource(cfg Config, logger *slog.Logger) *PushSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	return &PushSource{
		url:    base + "/ws/balance",
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: DefaultTimeout},
		logger: logger,
	}
}

// Watch streams balance events for userID. It returns immediately; update is
// called from a background goroutine. The returned stop does not wait for
// that goroutine; use Wait for that.
func (p *PushSource) Watch(userID string, update func(int64)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, userID, update)
	}()
	return cancel
}

// Wait blocks until every stopped watch has exited.
func (p *PushSource) Wait() {
	p.wg.Wait()
}

func (p *PushSource) run(ctx context.Context, userID string, update func(int64)) {
	delay := minReconnectDelay
	for {
		connected := p.stream(ctx, userID, update)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = minReconnectDelay
		}
		p.logger.Debug("balance stream disconnected, reconnecting", "user_id", userID, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// stream runs one connection. It reports whether the dial succeeded.
func (p *PushSource) stream(ctx context.Context, userID string, update func(int64)) bool {
	conn, _, err := p.dialer.DialContext(ctx, p.url, p.header)
	if err != nil {
		p.logger.Debug("balance stream dial failed", "error", err)
		return false
	}
	defer conn.Close()

	// Unblock ReadMessage when stopped.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true
		}
		var ev transport.BalanceEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			p.logger.Warn("ignoring malformed balance event", "error", err)
			continue
		}
		if ev.Type != transport.EventBalance || ev.UserID != userID || ev.Balance < 0 {
			continue
		}
		if ctx.Err() != nil {
			return true
		}
		update(ev.Balance)
	}
}
