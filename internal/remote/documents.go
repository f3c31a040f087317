package remote

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/ganot/promptsync/internal/rpc"
)

// DocumentStore is the server copy of one synced document for the
// authenticated user.
type DocumentStore struct {
	client    *Client
	saveCall  string
	fetchCall string
}

// Drafts returns the server draft store.
func (c *Client) Drafts() *DocumentStore {
	return &DocumentStore{client: c, saveCall: rpc.MethodSaveDraft, fetchCall: rpc.MethodGetDraft}
}

// Sessions returns the server session store.
func (c *Client) Sessions() *DocumentStore {
	return &DocumentStore{client: c, saveCall: rpc.MethodSaveSession, fetchCall: rpc.MethodGetSession}
}

// Fetch returns the stored document, or nil when none exists.
func (d *DocumentStore) Fetch(ctx context.Context) ([]byte, error) {
	var resp rpc.GetDocumentResponse
	if err := d.client.Call(ctx, d.fetchCall, rpc.UserParams{}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Document) == 0 || bytes.Equal(resp.Document, []byte("null")) {
		return nil, nil
	}
	return resp.Document, nil
}

// Store replaces the server copy.
func (d *DocumentStore) Store(ctx context.Context, raw []byte) error {
	return d.client.Call(ctx, d.saveCall, rpc.SaveDocumentParams{Document: json.RawMessage(raw)}, nil)
}
