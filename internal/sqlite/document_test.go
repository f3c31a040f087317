package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/promptsync/internal/domain/document"
	"github.com/ganot/promptsync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_PutReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(NewTestDB(t))

	_, err := repo.Get(ctx, "u1", document.KindDraft)
	require.ErrorIs(t, err, repository.ErrNotFound)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Put(ctx, &document.Document{
		UserID: "u1", Kind: document.KindDraft, Body: []byte(`{"content":"a"}`), UpdatedAt: t0,
	}))
	// Older stamps still win on the server; resolution happens client-side
	require.NoError(t, repo.Put(ctx, &document.Document{
		UserID: "u1", Kind: document.KindDraft, Body: []byte(`{"content":"b"}`), UpdatedAt: t0.Add(-time.Hour),
	}))

	doc, err := repo.Get(ctx, "u1", document.KindDraft)
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"b"}`, string(doc.Body))
	require.True(t, doc.UpdatedAt.Equal(t0.Add(-time.Hour)))

	_, err = repo.Get(ctx, "u1", document.KindSession)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentRepository_RejectsUnknownKind(t *testing.T) {
	repo := NewDocumentRepository(NewTestDB(t))
	err := repo.Put(context.Background(), &document.Document{
		UserID: "u1", Kind: document.Kind("notes"), Body: []byte(`{}`), UpdatedAt: time.Now(),
	})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestAPIKeyRepository_ResolveTenant(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(NewTestDB(t))

	require.NoError(t, repo.Add(ctx, "secret", "u1", "test key"))

	tenant, err := repo.ResolveTenant(ctx, "secret")
	require.NoError(t, err)
	require.Equal(t, "u1", tenant)

	_, err = repo.ResolveTenant(ctx, "wrong")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
