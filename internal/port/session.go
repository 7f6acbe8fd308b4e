package port

import (
	"context"

	"bookrag/internal/domain"
)

// SessionStore owns per-conversation retrieval state.
type SessionStore interface {
	// Resolve loads the session for id (creating a fresh one when the id is
	// empty, unknown or expired), applies the mode transition implied by
	// adHocText and refreshes LastActive, atomically per id.
	Resolve(ctx context.Context, id string, adHocText string) (domain.Session, error)

	// Get returns the live session for id, if any.
	Get(ctx context.Context, id string) (domain.Session, bool, error)

	Delete(ctx context.Context, id string) error

	// Sweep evicts expired sessions and returns how many were removed.
	Sweep(ctx context.Context) (int, error)

	Len(ctx context.Context) (int, error)

	Close() error
}
