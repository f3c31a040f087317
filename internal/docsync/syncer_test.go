package docsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/docsync"
	"github.com/ganot/promptsync/internal/localcache"
	"github.com/ganot/promptsync/internal/syncstatus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu       sync.Mutex
	stored   []byte
	writes   [][]byte
	fetchErr error
	storeErr error
	fetches  int
}

func (r *fakeRemote) Fetch(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.stored, nil
}

func (r *fakeRemote) Store(ctx context.Context, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return r.storeErr
	}
	r.stored = append([]byte(nil), raw...)
	r.writes = append(r.writes, r.stored)
	return nil
}

func (r *fakeRemote) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func (r *fakeRemote) lastWrite(t *testing.T) docsync.Document[docsync.Draft] {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.writes)
	doc, ok := docsync.Decode[docsync.Draft](docsync.DraftFormat, r.writes[len(r.writes)-1])
	require.True(t, ok)
	return doc
}

type draftEnv struct {
	clock  *clock.Fake
	cache  *localcache.MemoryStore
	remote *fakeRemote
	syncer *docsync.Syncer[docsync.Draft]
}

func newDraftEnv(t *testing.T) *draftEnv {
	t.Helper()
	env := &draftEnv{
		clock:  clock.NewFake(epoch),
		cache:  localcache.NewMemoryStore(),
		remote: &fakeRemote{},
	}
	s, err := docsync.NewDraftSyncer(env.remote, docsync.Deps{Cache: env.cache, Clock: env.clock})
	require.NoError(t, err)
	env.syncer = s
	t.Cleanup(s.Cleanup)
	return env
}

func (e *draftEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.syncer.Flush(ctx))
}

func encodeDraft(t *testing.T, content string, at time.Time) []byte {
	t.Helper()
	raw, err := docsync.Encode(docsync.DraftFormat, docsync.Document[docsync.Draft]{
		Payload:       docsync.Draft{Content: content, Mode: "enhance"},
		LastUpdatedAt: at,
	})
	require.NoError(t, err)
	return raw
}

func TestSyncer_DebounceCoalescesBurst(t *testing.T) {
	env := newDraftEnv(t)

	env.syncer.Save(docsync.Draft{Content: "h", Mode: "enhance"})
	env.clock.Advance(100 * time.Millisecond)
	env.syncer.Save(docsync.Draft{Content: "he", Mode: "enhance"})
	env.clock.Advance(100 * time.Millisecond)
	env.syncer.Save(docsync.Draft{Content: "hey", Mode: "enhance"})

	env.clock.Advance(499 * time.Millisecond)
	require.Equal(t, 0, env.remote.writeCount())
	require.Equal(t, 1, env.clock.Pending())

	env.clock.Advance(time.Millisecond)
	env.flush(t)
	require.Equal(t, 1, env.remote.writeCount())
	require.Equal(t, "hey", env.remote.lastWrite(t).Payload.Content)
}

func TestSyncer_HelloWorldScenario(t *testing.T) {
	env := newDraftEnv(t)

	env.syncer.Save(docsync.Draft{Content: "hello", Mode: "enhance"})
	env.clock.Advance(100 * time.Millisecond)
	env.syncer.Save(docsync.Draft{Content: "hello world", Mode: "enhance"})
	env.clock.Advance(docsync.DraftDebounce)
	env.flush(t)

	require.Equal(t, 1, env.remote.writeCount())
	got := env.remote.lastWrite(t)
	require.Equal(t, "hello world", got.Payload.Content)
	require.True(t, got.LastUpdatedAt.Equal(epoch.Add(100*time.Millisecond)))
}

func TestSyncer_SaveIsLocalFirst(t *testing.T) {
	env := newDraftEnv(t)

	env.syncer.Save(docsync.Draft{Content: "draft", Mode: "chat"})

	local, ok := env.syncer.Local()
	require.True(t, ok)
	require.Equal(t, "draft", local.Payload.Content)
	require.Equal(t, 0, env.remote.writeCount())

	raw, ok, err := env.cache.Get("prompt_draft")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"content":"draft","mode":"chat","last_updated":"2025-03-01T12:00:00Z"}`, raw)
}

func TestSyncer_FlushSendsPendingImmediately(t *testing.T) {
	env := newDraftEnv(t)

	env.syncer.Save(docsync.Draft{Content: "now", Mode: "enhance"})
	env.flush(t)

	require.Equal(t, 1, env.remote.writeCount())
	require.Equal(t, 0, env.clock.Pending())

	// The cancelled debounce must not send a second copy.
	env.clock.Advance(time.Second)
	env.flush(t)
	require.Equal(t, 1, env.remote.writeCount())
}

func TestSyncer_LoadFallsBackToLocalWhenRemoteFails(t *testing.T) {
	env := newDraftEnv(t)
	env.remote.fetchErr = errors.New("offline")

	require.Nil(t, env.syncer.Load(context.Background()))

	require.NoError(t, env.cache.Set("prompt_draft", string(encodeDraft(t, "cached", epoch))))
	doc := env.syncer.Load(context.Background())
	require.NotNil(t, doc)
	require.Equal(t, "cached", doc.Payload.Content)
	require.Equal(t, syncstatus.StateError, env.syncer.Status().State)
}

func TestSyncer_LoadAdoptsRemoteWhenLocalAbsent(t *testing.T) {
	env := newDraftEnv(t)
	env.remote.stored = encodeDraft(t, "from server", epoch)

	doc := env.syncer.Load(context.Background())
	require.NotNil(t, doc)
	require.Equal(t, "from server", doc.Payload.Content)

	local, ok := env.syncer.Local()
	require.True(t, ok)
	require.Equal(t, "from server", local.Payload.Content)
	require.Equal(t, syncstatus.StateSynced, env.syncer.Status().State)
}

func TestSyncer_LoadLastWriteWins(t *testing.T) {
	t1 := epoch
	t2 := epoch.Add(time.Minute)

	cases := []struct {
		name        string
		localAt     time.Time
		remoteAt    time.Time
		wantContent string
		wantWrites  int
	}{
		{name: "remote newer", localAt: t1, remoteAt: t2, wantContent: "remote", wantWrites: 0},
		{name: "local newer", localAt: t2, remoteAt: t1, wantContent: "local", wantWrites: 1},
		{name: "same instant", localAt: t1, remoteAt: t1, wantContent: "local", wantWrites: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newDraftEnv(t)
			require.NoError(t, env.cache.Set("prompt_draft", string(encodeDraft(t, "local", tc.localAt))))
			env.remote.stored = encodeDraft(t, "remote", tc.remoteAt)

			doc := env.syncer.Load(context.Background())
			require.NotNil(t, doc)
			require.Equal(t, tc.wantContent, doc.Payload.Content)
			require.Equal(t, tc.wantWrites, env.remote.writeCount())

			if tc.name == "same instant" {
				return
			}
			local, ok := env.syncer.Local()
			require.True(t, ok)
			remote, ok := docsync.Decode[docsync.Draft](docsync.DraftFormat, env.remote.stored)
			require.True(t, ok)
			if diff := cmp.Diff(*local, remote); diff != "" {
				t.Fatalf("local and remote diverged (-local +remote):\n%s", diff)
			}
		})
	}
}

func TestSyncer_LoadPushesLocalWhenRemoteAbsent(t *testing.T) {
	env := newDraftEnv(t)
	require.NoError(t, env.cache.Set("prompt_draft", string(encodeDraft(t, "only here", epoch))))

	doc := env.syncer.Load(context.Background())
	require.NotNil(t, doc)
	require.Equal(t, 1, env.remote.writeCount())
	require.Equal(t, "only here", env.remote.lastWrite(t).Payload.Content)
}

func TestSyncer_MalformedLocalIsAbsent(t *testing.T) {
	env := newDraftEnv(t)
	require.NoError(t, env.cache.Set("prompt_draft", `{"content":"x"}`))
	_, ok := env.syncer.Local()
	require.False(t, ok)

	require.NoError(t, env.cache.Set("prompt_draft", `not json`))
	require.Nil(t, env.syncer.Load(context.Background()))
}

func TestSyncer_RemoteFailureKeepsLocal(t *testing.T) {
	env := newDraftEnv(t)
	env.remote.storeErr = errors.New("503")

	var states []syncstatus.State
	var mu sync.Mutex
	env.syncer.OnStatusChange(func(s syncstatus.Status) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	})

	env.syncer.Save(docsync.Draft{Content: "keep me", Mode: "enhance"})
	env.clock.Advance(docsync.DraftDebounce)
	env.flush(t)

	status := env.syncer.Status()
	require.Equal(t, syncstatus.StateError, status.State)
	require.Equal(t, "503", status.Error)

	local, ok := env.syncer.Local()
	require.True(t, ok)
	require.Equal(t, "keep me", local.Payload.Content)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []syncstatus.State{syncstatus.StateSyncing, syncstatus.StateError}, states)

	// The next edit retries naturally.
	env.remote.mu.Lock()
	env.remote.storeErr = nil
	env.remote.mu.Unlock()
	env.syncer.Save(docsync.Draft{Content: "keep me too", Mode: "enhance"})
	env.clock.Advance(docsync.DraftDebounce)
	env.flush(t)
	require.Equal(t, syncstatus.StateSynced, env.syncer.Status().State)
}

func TestSyncer_CleanupDropsPendingWrite(t *testing.T) {
	env := newDraftEnv(t)
	env.syncer.Save(docsync.Draft{Content: "unsent", Mode: "enhance"})
	env.syncer.Cleanup()

	env.clock.Advance(time.Second)
	require.Equal(t, 0, env.remote.writeCount())

	_, ok := env.syncer.Local()
	require.True(t, ok)
}

func TestSyncer_RejectsRemoteFirst(t *testing.T) {
	_, err := docsync.New[docsync.Draft](docsync.Options{
		Format:      docsync.DraftFormat,
		Debounce:    time.Second,
		Consistency: syncstatus.AtomicRemoteFirst,
		Remote:      &fakeRemote{},
	})
	require.ErrorIs(t, err, docsync.ErrRemoteFirst)
}

func TestSessionSyncer_UsesLongerDebounce(t *testing.T) {
	clk := clock.NewFake(epoch)
	remote := &fakeRemote{}
	s, err := docsync.NewSessionSyncer(remote, docsync.Deps{Clock: clk})
	require.NoError(t, err)
	defer s.Cleanup()

	s.Save(docsync.Session{LastMode: "chat", SidebarCollapsed: true})
	clk.Advance(docsync.DraftDebounce)
	require.Equal(t, 1, clk.Pending())

	clk.Advance(docsync.SessionDebounce - docsync.DraftDebounce)
	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, 1, remote.writeCount())

	got, ok := docsync.Decode[docsync.Session](docsync.SessionFormat, remote.stored)
	require.True(t, ok)
	require.Equal(t, docsync.Session{LastMode: "chat", SidebarCollapsed: true}, got.Payload)
}

func TestDraftSyncer_DebounceOverride(t *testing.T) {
	clk := clock.NewFake(epoch)
	remote := &fakeRemote{}
	s, err := docsync.NewDraftSyncer(remote, docsync.Deps{Clock: clk, Debounce: 2 * time.Second})
	require.NoError(t, err)
	defer s.Cleanup()

	s.Save(docsync.Draft{Content: "slow", Mode: "enhance"})
	clk.Advance(docsync.DraftDebounce)
	require.Equal(t, 1, clk.Pending())
	require.Zero(t, remote.writeCount())

	clk.Advance(2*time.Second - docsync.DraftDebounce)
	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, 1, remote.writeCount())
}

// gatedRemote holds the first Store until release is closed.
type gatedRemote struct {
	*fakeRemote
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{fakeRemote: &fakeRemote{}, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRemote) Store(ctx context.Context, raw []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeRemote.Store(ctx, raw)
}

func TestSyncer_FlushWinsOverQueuedOlderWrite(t *testing.T) {
	for i := 0; i < 20; i++ {
		clk := clock.NewFake(epoch)
		remote := newGatedRemote()
		s, err := docsync.NewDraftSyncer(remote, docsync.Deps{Clock: clk})
		require.NoError(t, err)

		s.Save(docsync.Draft{Content: "A", Mode: "enhance"})
		clk.Advance(docsync.DraftDebounce)
		<-remote.entered

		// B's write is queued behind A's.
		s.Save(docsync.Draft{Content: "B", Mode: "enhance"})
		clk.Advance(docsync.DraftDebounce)

		s.Save(docsync.Draft{Content: "C", Mode: "enhance"})
		flushed := make(chan error, 1)
		go func() { flushed <- s.Flush(context.Background()) }()
		close(remote.release)
		require.NoError(t, <-flushed)

		require.Equal(t, "C", remote.lastWrite(t).Payload.Content)
		local, ok := s.Local()
		require.True(t, ok)
		require.Equal(t, "C", local.Payload.Content)

		remote.mu.Lock()
		var prev time.Time
		for _, raw := range remote.writes {
			doc, ok := docsync.Decode[docsync.Draft](docsync.DraftFormat, raw)
			require.True(t, ok)
			require.False(t, doc.LastUpdatedAt.Before(prev), "remote regressed to an older draft")
			prev = doc.LastUpdatedAt
		}
		remote.mu.Unlock()

		require.Equal(t, syncstatus.StateSynced, s.Status().State)
		s.Cleanup()
	}
}
