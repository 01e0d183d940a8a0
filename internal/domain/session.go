package domain

import (
	"slices"
	"time"
)

// BookmarkCapacity bounds the per-user bookmark list.
const BookmarkCapacity = 10

// Session holds the narrative state for one user. Sessions are created
// lazily on first contact and live for the process lifetime unless the
// user resets. The store owns all mutation; callers receive copies.
type Session struct {
	UserID             string
	Stage              Stage
	LastRecord         string
	Milestones         map[Milestone]bool
	Bookmarks          []string // most recent first, no duplicates
	IntroCooldownUntil time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSession returns a fresh session at the initial stage.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:     userID,
		Stage:      StageInit,
		Milestones: make(map[Milestone]bool),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so store callers can read without aliasing
// the stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.Milestones = make(map[Milestone]bool, len(s.Milestones))
	for k, v := range s.Milestones {
		c.Milestones[k] = v
	}
	c.Bookmarks = slices.Clone(s.Bookmarks)
	return &c
}

// SetMilestone marks a puzzle as solved. Milestones are monotonic:
// setting never clears, only reset deletes the session.
func (s *Session) SetMilestone(m Milestone) {
	if s.Milestones == nil {
		s.Milestones = make(map[Milestone]bool)
	}
	s.Milestones[m] = true
}

// HasMilestone reports whether the milestone is collected.
func (s *Session) HasMilestone(m Milestone) bool {
	return s.Milestones[m]
}

// AllStopsCollected reports whether every stop code has been found.
func (s *Session) AllStopsCollected() bool {
	for _, m := range Milestones {
		if !s.Milestones[m] {
			return false
		}
	}
	return true
}

// AddBookmark inserts code at the front of the bookmark list.
// Re-adding an existing code moves it to the front; the list never
// exceeds BookmarkCapacity and never holds duplicates.
func (s *Session) AddBookmark(code string) {
	s.removeBookmark(code)
	s.Bookmarks = append([]string{code}, s.Bookmarks...)
	if len(s.Bookmarks) > BookmarkCapacity {
		s.Bookmarks = s.Bookmarks[:BookmarkCapacity]
	}
}

// RemoveBookmark deletes code from the list and reports whether it was
// present.
func (s *Session) RemoveBookmark(code string) bool {
	return s.removeBookmark(code)
}

func (s *Session) removeBookmark(code string) bool {
	i := slices.Index(s.Bookmarks, code)
	if i < 0 {
		return false
	}
	s.Bookmarks = slices.Delete(s.Bookmarks, i, i+1)
	return true
}

// ClearBookmarks empties the bookmark list.
func (s *Session) ClearBookmarks() {
	s.Bookmarks = nil
}
