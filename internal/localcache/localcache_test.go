package localcache

import (
	"testing"
	"time"

	"github.com/ganot/promptsync/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type draftShape struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_SetGetRemove(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set("k", "v1"))
	require.NoError(t, store.Set("k", "v2"))

	v, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	updatedAt, ok, err := store.UpdatedAt("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.WithinDuration(t, time.Now(), updatedAt, time.Minute)

	require.NoError(t, store.Remove("k"))
	require.NoError(t, store.Remove("k"))
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_SetGetRemove(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set("k", "v"))

	v, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	require.NoError(t, store.Remove("k"))
	_, ok, _ = store.Get("k")
	require.False(t, ok)
}

func TestDecode_ShapeValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "valid", raw: `{"content":"hi","mode":"enhance"}`, ok: true},
		{name: "extra fields allowed", raw: `{"content":"","mode":"chat","x":1}`, ok: true},
		{name: "missing mode", raw: `{"content":"hi"}`, ok: false},
		{name: "null content", raw: `{"content":null,"mode":"chat"}`, ok: false},
		{name: "wrong type", raw: `{"content":5,"mode":"chat"}`, ok: false},
		{name: "array", raw: `["content","mode"]`, ok: false},
		{name: "not json", raw: `hello`, ok: false},
		{name: "json null", raw: `null`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Decode[draftShape]([]byte(tt.raw), "content", "mode")
			require.Equal(t, tt.ok, ok)
		})
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	require.NoError(t, Save(store, "draft", draftShape{Content: "hello", Mode: "enhance"}))
	got, ok := Load[draftShape](store, "draft", "content", "mode")
	require.True(t, ok)
	require.Equal(t, "hello", got.Content)

	require.NoError(t, store.Set("draft", "{corrupt"))
	_, ok = Load[draftShape](store, "draft", "content", "mode")
	require.False(t, ok)
}
