package docsync

import (
	"log/slog"
	"time"

	"github.com/ganot/promptsync/internal/clock"
	"github.com/ganot/promptsync/internal/localcache"
	"github.com/ganot/promptsync/internal/metrics"
)

const (
	DraftDebounce   = 500 * time.Millisecond
	SessionDebounce = 1000 * time.Millisecond
)

// Cache layouts. Keys and field names are a persisted format.
var (
	DraftFormat = Format{
		Key:      "prompt_draft",
		Stamp:    "last_updated",
		Required: []string{"content", "mode"},
	}
	SessionFormat = Format{
		Key:      "user_session",
		Stamp:    "last_active",
		Required: []string{"last_mode", "sidebar_collapsed"},
	}
)

// Draft is the prompt editor's unsent input.
type Draft struct {
	Content  string         `json:"content"`
	Mode     string         `json:"mode"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session holds UI preferences that follow the user between visits.
type Session struct {
	LastMode         string         `json:"last_mode"`
	SidebarCollapsed bool           `json:"sidebar_collapsed"`
	Preferences      map[string]any `json:"preferences,omitempty"`
}

// Deps are the collaborators shared by the draft and session syncers.
type Deps struct {
	Cache   localcache.Store
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Debounce overrides the document's default quiet period when positive.
	Debounce time.Duration
}

func (d Deps) debounce(def time.Duration) time.Duration {
	if d.Debounce > 0 {
		return d.Debounce
	}
	return def
}

// NewDraftSyncer creates the editor draft syncer.
func NewDraftSyncer(remote Remote, deps Deps) (*Syncer[Draft], error) {
	return New[Draft](Options{
		Name:     "draft",
		Format:   DraftFormat,
		Debounce: deps.debounce(DraftDebounce),
		Remote:   remote,
		Cache:    deps.Cache,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
}

// NewSessionSyncer creates the UI session syncer.
func NewSessionSyncer(remote Remote, deps Deps) (*Syncer[Session], error) {
	return New[Session](Options{
		Name:     "session",
		Format:   SessionFormat,
		Debounce: deps.debounce(SessionDebounce),
		Remote:   remote,
		Cache:    deps.Cache,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
}
