package docsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ganot/promptsync/internal/localcache"
)

// Document is one copy of a synced document.
type Document[T any] struct {
	Payload       T
	LastUpdatedAt time.Time
}

// Format describes how a document is laid out on disk and on the wire: a
// single JSON object holding the payload's fields plus a timestamp field.
type Format struct {
	// Key is the local cache key.
	Key string
	// Stamp is the top-level field holding LastUpdatedAt.
	Stamp string
	// Required lists payload fields that must be present for a stored value
	// to be trusted.
	Required []string
}

// Encode renders doc as a flat JSON object.
func Encode[T any](f Format, doc Document[T]) ([]byte, error) {
	data, err := json.Marshal(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f.Key, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("encoding %s: payload is not a JSON object", f.Key)
	}
	stamp, err := json.Marshal(doc.LastUpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f.Key, err)
	}
	fields[f.Stamp] = stamp
	return json.Marshal(fields)
}

// Decode parses raw written by Encode. Values with the wrong shape are
// reported as absent.
func Decode[T any](f Format, raw []byte) (Document[T], bool) {
	var zero Document[T]
	required := append([]string{f.Stamp}, f.Required...)
	fields, ok := localcache.Decode[map[string]json.RawMessage](raw, required...)
	if !ok {
		return zero, false
	}
	var stamp time.Time
	if err := json.Unmarshal(fields[f.Stamp], &stamp); err != nil {
		return zero, false
	}
	payload, ok := localcache.Decode[T](raw)
	if !ok {
		return zero, false
	}
	return Document[T]{Payload: payload, LastUpdatedAt: stamp}, true
}
