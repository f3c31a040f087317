package localcache

import (
	"encoding/json"
	"fmt"
)

// Decode parses raw as a JSON object of type T. It reports false when raw is
// not an object, lacks any of the required top-level fields, or does not fit
// T. Callers treat a false result as "no cached value".
func Decode[T any](raw []byte, required ...string) (T, bool) {
	var zero T

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return zero, false
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return zero, false
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Load reads key from s and decodes it with Decode. Read errors and malformed
// values are both reported as absent.
func Load[T any](s Store, key string, required ...string) (T, bool) {
	var zero T
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return zero, false
	}
	return Decode[T]([]byte(raw), required...)
}

// Save encodes v as JSON and writes it under key.
func Save(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache key %q: %w", key, err)
	}
	return s.Set(key, string(data))
}
