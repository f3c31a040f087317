package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/metrics"
	"github.com/ganot/promptsync/internal/repository"
)

// Service handles document storage.
type Service struct {
	repo    Repository
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a new document service. m may be nil.
func NewService(repo Repository, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, clock: clock.OrDefault(clk), metrics: m, logger: logger}
}

// Save stores body as the user's document of the given kind. The server keeps
// whatever it receives last; conflict resolution is the client's job.
func (s *Service) Save(ctx context.Context, userID string, kind Kind, body json.RawMessage) (*Document, error) {
	if userID == "" || !kind.Valid() {
		return nil, ErrInvalidInput
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidInput)
	}

	doc := &Document{
		UserID:    userID,
		Kind:      kind,
		Body:      body,
		UpdatedAt: s.stamp(fields[kind.StampField()]),
	}
	if err := s.repo.Put(ctx, doc); err != nil {
		s.metrics.DocumentWrite(string(kind), metrics.ResultError)
		return nil, fmt.Errorf("storing %s: %w", kind, err)
	}
	s.metrics.DocumentWrite(string(kind), metrics.ResultOK)
	s.logger.Debug("document stored", "user_id", userID, "kind", kind)
	return doc, nil
}

// Get returns the user's document of the given kind.
func (s *Service) Get(ctx context.Context, userID string, kind Kind) (*Document, error) {
	if userID == "" || !kind.Valid() {
		return nil, ErrInvalidInput
	}
	doc, err := s.repo.Get(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading %s: %w", kind, err)
	}
	return doc, nil
}

// stamp uses the client's own timestamp when it parses, falling back to the
// server clock.
func (s *Service) stamp(raw json.RawMessage) time.Time {
	var t time.Time
	if len(raw) > 0 && json.Unmarshal(raw, &t) == nil && !t.IsZero() {
		return t.UTC()
	}
	return s.clock.Now().UTC()
}
