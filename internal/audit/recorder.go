package audit

import (
	"context"
	"sync"
	"time"
)

// recordTimeout bounds a single audit write so a slow disk never stalls a command.
const recordTimeout = 2 * time.Second

// Logger is the subset of logging used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes audit entries on behalf of the extension registry,
// dispatcher and lifecycle manager.
//
// Audit failures are logged and swallowed: losing an audit row must never
// fail the operation being audited.
type Recorder struct {
	mu     sync.RWMutex
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a Recorder that tags every entry with source.
// A nil repo produces a Recorder that only discards.
func NewRecorder(repo Repository, source string) *Recorder {
	return &Recorder{repo: repo, source: source, logger: noopLogger{}}
}

// SetLogger sets the logger used to report failed writes.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetRepository swaps the backing repository. The recorder is created
// before storage opens; a nil repo makes Record discard again.
func (r *Recorder) SetRepository(repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo = repo
}

// Record stores one audit entry.
//
// Parameters:
//   - ctx: Parent context; a short timeout is applied on top
//   - action: One of the Action constants
//   - entityType: One of the Entity constants
//   - entityID: Extension or command name
//   - userID: Invoking user; empty falls back to the context's actor
//   - details: Optional structured details (outcome, error)
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID, userID string, details map[string]any) {
	if r == nil {
		return
	}
	r.mu.RLock()
	repo := r.repo
	r.mu.RUnlock()
	if repo == nil {
		return
	}

	if userID == "" {
		userID = ActorFrom(ctx)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := repo.Create(ctx, &AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     r.source,
		Details:    details,
	})
	if err != nil {
		r.logger.Warn("audit write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}
