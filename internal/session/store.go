// Package session provides per-user narrative session storage.
package session

import (
	"context"
	"time"

	"github.com/ashureev/kiroku/internal/domain"
)

// Patch is a shallow merge into an existing session. Nil fields are
// left untouched.
type Patch struct {
	Stage              *domain.Stage
	LastRecord         *string
	IntroCooldownUntil *time.Time
}

// Store is the interface for persisting narrative sessions. Get never
// returns nil: a default session is created on first access. Update is
// an atomic read-modify-write under a per-store lock, which is what
// serializes concurrent events for the same user.
type Store interface {
	// Get retrieves the session for a user, creating a default one if
	// absent. The returned session is a copy.
	Get(ctx context.Context, userID string) (*domain.Session, error)

	// Update applies fn to the session under the store lock and
	// persists the result. Returns a copy of the updated session.
	Update(ctx context.Context, userID string, fn func(*domain.Session)) (*domain.Session, error)

	// Patch shallow-merges the non-nil fields into the session.
	Patch(ctx context.Context, userID string, p Patch) error

	// Reset deletes the session entirely; the next access recreates
	// the defaults.
	Reset(ctx context.Context, userID string) error

	// AddBookmark inserts a code at the front of the bookmark list,
	// enforcing the capacity/no-duplicate/most-recent-first invariant.
	AddBookmark(ctx context.Context, userID, code string) error

	// RemoveBookmark deletes a code from the bookmark list.
	RemoveBookmark(ctx context.Context, userID, code string) error

	// ClearBookmarks empties the bookmark list.
	ClearBookmarks(ctx context.Context, userID string) error

	// ListBookmarks returns the bookmark list, most recent first.
	ListBookmarks(ctx context.Context, userID string) ([]string, error)

	// Close releases any backing resources.
	Close() error
}

func applyPatch(s *domain.Session, p Patch) {
	if p.Stage != nil {
		s.Stage = *p.Stage
	}
	if p.LastRecord != nil {
		s.LastRecord = *p.LastRecord
	}
	if p.IntroCooldownUntil != nil {
		s.IntroCooldownUntil = *p.IntroCooldownUntil
	}
}
