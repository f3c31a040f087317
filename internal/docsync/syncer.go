// Package docsync keeps a small JSON document local-first: every save lands
// in the local cache synchronously, and a debounced write pushes only the
// latest state to the remote copy. Conflicts resolve last-write-wins on the
// whole document.
package docsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/localcache"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/syncstatus"
)

// ErrRemoteFirst is returned when a Syncer is configured for a remote-first
// consistency model it cannot provide.
var ErrRemoteFirst = errors.New("docsync only supports local-first documents")

// Remote is the server copy of one encoded document. Fetch returns nil, nil
// when nothing has been stored.
type Remote interface {
	Fetch(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, raw []byte) error
}

// Options configures a Syncer.
type Options struct {
	// Name labels logs, metrics and the status channel.
	Name     string
	Format   Format
	Debounce time.Duration
	// Consistency defaults to LocalFirstEventuallyConsistent; any other value
	// is rejected.
	Consistency syncstatus.Consistency

	Remote  Remote
	Cache   localcache.Store
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Syncer is a debounced local-first sync client for documents of type T.
type Syncer[T any] struct {
	name     string
	format   Format
	debounce time.Duration
	remote   Remote
	cache    localcache.Store
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	bus      *syncstatus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	// writeMu serializes remote writes. sentSeq is the save sequence of the
	// newest write attempted; older writes arriving later are dropped so the
	// remote never regresses behind a newer local save.
	writeMu  sync.Mutex
	sentSeq  uint64
	inflight sync.WaitGroup

	mu         sync.Mutex
	timer      clock.Timer
	gen        uint64
	seq        uint64
	pending    *Document[T]
	pendingSeq uint64
	closed     bool
}

// New creates a Syncer.
func New[T any](opts Options) (*Syncer[T], error) {
	if opts.Consistency != "" && opts.Consistency != syncstatus.LocalFirstEventuallyConsistent {
		return nil, fmt.Errorf("%w: got %s", ErrRemoteFirst, opts.Consistency)
	}
	if opts.Format.Key == "" || opts.Format.Stamp == "" {
		return nil, errors.New("docsync: format key and stamp are required")
	}
	if opts.Remote == nil {
		return nil, errors.New("docsync: remote is required")
	}
	if opts.Debounce <= 0 {
		return nil, errors.New("docsync: debounce must be positive")
	}
	name := opts.Name
	if name == "" {
		name = opts.Format.Key
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("document", name)
	cache := opts.Cache
	if cache == nil {
		cache = localcache.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer[T]{
		name:     name,
		format:   opts.Format,
		debounce: opts.Debounce,
		remote:   opts.Remote,
		cache:    cache,
		clock:    clock.OrDefault(opts.Clock),
		logger:   logger,
		metrics:  opts.Metrics,
		bus:      syncstatus.NewBus(name, logger),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Consistency reports the model this client follows.
func (s *Syncer[T]) Consistency() syncstatus.Consistency {
	return syncstatus.LocalFirstEventuallyConsistent
}

// Save commits payload locally and (re)starts the debounce timer. It never
// fails: local write errors are logged, and remote errors surface only through
// the sync status.
func (s *Syncer[T]) Save(payload T) {
	doc := Document[T]{Payload: payload, LastUpdatedAt: s.clock.Now()}
	s.writeLocal(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	s.pending = &doc
	s.pendingSeq = s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
}

// Local returns the locally cached document, if any.
func (s *Syncer[T]) Local() (*Document[T], bool) {
	doc, ok := s.readLocal()
	if !ok {
		return nil, false
	}
	return &doc, true
}

// Load reconciles the local and remote copies and returns the winner, or nil
// when neither exists. It never fails; an unreachable remote leaves the local
// copy in charge.
func (s *Syncer[T]) Load(ctx context.Context) *Document[T] {
	local, hasLocal := s.readLocal()

	raw, err := s.remote.Fetch(ctx)
	if err != nil {
		s.logger.Warn("remote fetch failed, using local copy", "error", err)
		s.bus.Failed(err)
		if !hasLocal {
			return nil
		}
		return &local
	}

	var remote Document[T]
	hasRemote := false
	if raw != nil {
		remote, hasRemote = Decode[T](s.format, raw)
		if !hasRemote {
			s.logger.Warn("ignoring malformed remote copy")
		}
	}

	switch {
	case !hasLocal && !hasRemote:
		return nil
	case !hasRemote:
		_ = s.push(ctx, local, s.currentSeq())
		return &local
	case !hasLocal, remote.LastUpdatedAt.After(local.LastUpdatedAt):
		s.writeLocal(remote)
		s.bus.Synced(s.clock.Now())
		return &remote
	case local.LastUpdatedAt.After(remote.LastUpdatedAt):
		_ = s.push(ctx, local, s.currentSeq())
		return &local
	default:
		s.bus.Synced(s.clock.Now())
		return &local
	}
}

// Flush sends any pending debounced write now and waits for in-flight writes
// to finish.
func (s *Syncer[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	doc, seq := s.pending, s.pendingSeq
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	var err error
	if doc != nil {
		err = s.push(ctx, *doc, seq)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current sync status.
func (s *Syncer[T]) Status() syncstatus.Status {
	return s.bus.Status()
}

// OnStatusChange registers fn for status transitions.
func (s *Syncer[T]) OnStatusChange(fn func(syncstatus.Status)) func() {
	return s.bus.Subscribe(fn)
}

// Cleanup drops the pending write, cancels in-flight writes and clears status
// subscribers. The local copy is kept.
func (s *Syncer[T]) Cleanup() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.inflight.Wait()
	s.bus.Reset()
}

func (s *Syncer[T]) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	doc, seq := *s.pending, s.pendingSeq
	s.pending = nil
	s.timer = nil
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		_ = s.push(s.ctx, doc, seq)
	}()
}

// push writes doc to the remote unless a newer save has already been sent.
func (s *Syncer[T]) push(ctx context.Context, doc Document[T], seq uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if seq < s.sentSeq {
		s.logger.Debug("dropping superseded remote write", "seq", seq, "sent_seq", s.sentSeq)
		return nil
	}
	s.sentSeq = seq

	s.bus.Syncing()
	raw, err := Encode(s.format, doc)
	if err == nil {
		err = s.remote.Store(ctx, raw)
	}
	if err != nil {
		s.metrics.DocumentWrite(s.name, metrics.ResultError)
		s.logger.Warn("remote write failed", "error", err)
		s.bus.Failed(err)
		return err
	}
	s.metrics.DocumentWrite(s.name, metrics.ResultOK)
	s.bus.Synced(s.clock.Now())
	return nil
}

// currentSeq is the sequence of the newest save, which the local copy holds.
func (s *Syncer[T]) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Syncer[T]) readLocal() (Document[T], bool) {
	raw, ok, err := s.cache.Get(s.format.Key)
	if err != nil {
		s.logger.Warn("local read failed", "error", err)
		return Document[T]{}, false
	}
	if !ok {
		return Document[T]{}, false
	}
	doc, ok := Decode[T](s.format, []byte(raw))
	if !ok {
		s.logger.Warn("ignoring malformed local copy")
	}
	return doc, ok
}

func (s *Syncer[T]) writeLocal(doc Document[T]) {
	raw, err := Encode(s.format, doc)
	if err == nil {
		err = s.cache.Set(s.format.Key, string(raw))
	}
	if err != nil {
		s.logger.Warn("local write failed", "error", err)
	}
}
