// Package document stores the small per-user JSON documents (editor draft,
// UI session) that clients sync local-first.
package document

import (
	"encoding/json"
	"time"
)

// Kind names a synced document.
type Kind string

const (
	KindDraft   Kind = "draft"
	KindSession Kind = "session"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindDraft || k == KindSession
}

// StampField is the top-level JSON field carrying the document's last write
// time.
func (k Kind) StampField() string {
	if k == KindSession {
		return "last_active"
	}
	return "last_updated"
}

// Document is the server copy of a synced document. Body is the JSON object
// exactly as the client sent it.
type Document struct {
	UserID    string          `json:"user_id"`
	Kind      Kind            `json:"kind"`
	Body      json.RawMessage `json:"body"`
	UpdatedAt time.Time       `json:"updated_at"`
}
