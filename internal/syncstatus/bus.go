// Package syncstatus broadcasts the remote-write lifecycle of a sync client to
// any number of observers.
package syncstatus

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is the coarse phase of a client's remote synchronization.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Status is the value delivered to subscribers on every transition.
type Status struct {
	State        State      `json:"state"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Consistency tags how a client treats remote writes.
type Consistency string

const (
	// AtomicRemoteFirst clients never change local state before the remote
	// confirms the write.
	AtomicRemoteFirst Consistency = "atomic_remote_first"
	// LocalFirstEventuallyConsistent clients commit locally and reconcile
	// with the remote later.
	LocalFirstEventuallyConsistent Consistency = "local_first_eventually_consistent"
)

// Bus is an in-memory observer set for one logical channel.
type Bus struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	status Status
	subs   map[uint64]func(Status)
	nextID uint64
}

// NewBus creates a bus in the idle state. name identifies the channel in logs.
func NewBus(name string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		name:   name,
		logger: logger,
		status: Status{State: StateIdle},
		subs:   make(map[uint64]func(Status)),
	}
}

// Status returns the most recently published status.
func (b *Bus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Subscribe registers fn for future transitions. The returned function removes
// it and is safe to call more than once.
func (b *Bus) Subscribe(fn func(Status)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// Publish records s as current and delivers it to every subscriber.
func (b *Bus) Publish(s Status) {
	b.mu.Lock()
	if s.LastSyncedAt == nil && b.status.LastSyncedAt != nil {
		s.LastSyncedAt = b.status.LastSyncedAt
	}
	b.status = s
	subs := make([]func(Status), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		b.deliver(fn, s)
	}
}

// Syncing publishes StateSyncing.
func (b *Bus) Syncing() {
	b.Publish(Status{State: StateSyncing})
}

// Synced publishes StateSynced at the given time.
func (b *Bus) Synced(at time.Time) {
	b.Publish(Status{State: StateSynced, LastSyncedAt: &at})
}

// Failed publishes StateError carrying err's message.
func (b *Bus) Failed(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b.Publish(Status{State: StateError, Error: msg})
}

// Reset drops all subscribers and returns the bus to idle.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[uint64]func(Status))
	b.status = Status{State: StateIdle}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) deliver(fn func(Status), s Status) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sync status subscriber panicked", "channel", b.name, "error", fmt.Sprint(r))
		}
	}()
	fn(s)
}
