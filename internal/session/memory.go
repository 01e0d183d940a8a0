package session

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/kiroku/internal/domain"
)

// MemoryStore keeps sessions in a process-local map. State is volatile
// by design: it lives exactly as long as the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryStore) getLocked(userID string) *domain.Session {
	s, ok := m.sessions[userID]
	if !ok {
		s = domain.NewSession(userID)
		m.sessions[userID] = s
	}
	return s
}

// Get retrieves the session for a user, creating a default one if absent.
func (m *MemoryStore) Get(_ context.Context, userID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(userID).Clone(), nil
}

// Update applies fn to the session under the store lock.
func (m *MemoryStore) Update(_ context.Context, userID string, fn func(*domain.Session)) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getLocked(userID)
	fn(s)
	s.UpdatedAt = time.Now()
	return s.Clone(), nil
}

// Patch shallow-merges the non-nil fields into the session.
func (m *MemoryStore) Patch(ctx context.Context, userID string, p Patch) error {
	_, err := m.Update(ctx, userID, func(s *domain.Session) {
		applyPatch(s, p)
	})
	return err
}

// Reset deletes the session entirely.
func (m *MemoryStore) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// AddBookmark inserts a code at the front of the bookmark list.
func (m *MemoryStore) AddBookmark(ctx context.Context, userID, code string) error {
	_, err := m.Update(ctx, userID, func(s *domain.Session) {
		s.AddBookmark(code)
	})
	return err
}

// RemoveBookmark deletes a code from the bookmark list.
func (m *MemoryStore) RemoveBookmark(ctx context.Context, userID, code string) error {
	_, err := m.Update(ctx, userID, func(s *domain.Session) {
		s.RemoveBookmark(code)
	})
	return err
}

// ClearBookmarks empties the bookmark list.
func (m *MemoryStore) ClearBookmarks(ctx context.Context, userID string) error {
	_, err := m.Update(ctx, userID, func(s *domain.Session) {
		s.ClearBookmarks()
	})
	return err
}

// ListBookmarks returns the bookmark list, most recent first.
func (m *MemoryStore) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	s, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Bookmarks, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
