package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/ashureev/kiroku/internal/domain"
)

func TestGetCreatesDefault(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s == nil {
		t.Fatal("Get returned nil session")
	}
	if s.Stage != domain.StageInit {
		t.Errorf("default stage = %q, want %q", s.Stage, domain.StageInit)
	}
	if s.UserID != "u1" {
		t.Errorf("user id = %q, want u1", s.UserID)
	}
}

func TestPatchMergesPartially(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stage := domain.StageA1
	record := "fragment one"
	if err := store.Patch(ctx, "u1", Patch{Stage: &stage, LastRecord: &record}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}

	newStage := domain.StageB0
	if err := store.Patch(ctx, "u1", Patch{Stage: &newStage}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}

	s, _ := store.Get(ctx, "u1")
	if s.Stage != domain.StageB0 {
		t.Errorf("stage = %q, want %q", s.Stage, domain.StageB0)
	}
	if s.LastRecord != "fragment one" {
		t.Errorf("LastRecord = %q, patch with nil field must preserve it", s.LastRecord)
	}
}

func TestBookmarkInvariants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Overfill well past capacity.
	for i := 0; i < 15; i++ {
		code := fmt.Sprintf("KBN-%03d-F01", i)
		if err := store.AddBookmark(ctx, "u1", code); err != nil {
			t.Fatalf("AddBookmark failed: %v", err)
		}
	}

	list, err := store.ListBookmarks(ctx, "u1")
	if err != nil {
		t.Fatalf("ListBookmarks failed: %v", err)
	}
	if len(list) != domain.BookmarkCapacity {
		t.Fatalf("len = %d, want %d", len(list), domain.BookmarkCapacity)
	}
	if list[0] != "KBN-014-F01" {
		t.Errorf("most recent first: got %q at front", list[0])
	}

	seen := make(map[string]bool)
	for _, code := range list {
		if seen[code] {
			t.Errorf("duplicate bookmark %q", code)
		}
		seen[code] = true
	}

	// Re-adding moves to front without growing the list.
	if err := store.AddBookmark(ctx, "u1", "KBN-010-F01"); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}
	list, _ = store.ListBookmarks(ctx, "u1")
	if len(list) != domain.BookmarkCapacity {
		t.Errorf("re-add grew list to %d", len(list))
	}
	if list[0] != "KBN-010-F01" {
		t.Errorf("re-added code not at front: %q", list[0])
	}

	// Removal and idempotent repeat.
	if err := store.RemoveBookmark(ctx, "u1", "KBN-010-F01"); err != nil {
		t.Fatalf("RemoveBookmark failed: %v", err)
	}
	if err := store.RemoveBookmark(ctx, "u1", "KBN-010-F01"); err != nil {
		t.Fatalf("repeated RemoveBookmark failed: %v", err)
	}
	list, _ = store.ListBookmarks(ctx, "u1")
	for _, code := range list {
		if code == "KBN-010-F01" {
			t.Error("removed bookmark still listed")
		}
	}

	if err := store.ClearBookmarks(ctx, "u1"); err != nil {
		t.Fatalf("ClearBookmarks failed: %v", err)
	}
	list, _ = store.ListBookmarks(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("clear left %d bookmarks", len(list))
	}
}

func TestMilestonesMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Update(ctx, "u1", func(s *domain.Session) {
		s.SetMilestone(domain.MilestoneStop1)
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Later transitions never clear a collected milestone.
	stage := domain.StageStopped
	if err := store.Patch(ctx, "u1", Patch{Stage: &stage}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	_, err = store.Update(ctx, "u1", func(s *domain.Session) {
		s.Stage = domain.StageIntro
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	s, _ := store.Get(ctx, "u1")
	if !s.HasMilestone(domain.MilestoneStop1) {
		t.Error("milestone cleared by unrelated transitions")
	}

	// Explicit reset is the only way back.
	if err := store.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s, _ = store.Get(ctx, "u1")
	if s.HasMilestone(domain.MilestoneStop1) {
		t.Error("reset did not clear milestones")
	}
	if s.Stage != domain.StageInit {
		t.Errorf("stage after reset = %q, want %q", s.Stage, domain.StageInit)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s1, _ := store.Get(ctx, "u1")
	s1.Stage = domain.StageCleared
	s1.AddBookmark("KBN-001-F01")

	s2, _ := store.Get(ctx, "u1")
	if s2.Stage != domain.StageInit {
		t.Error("mutating a Get result leaked into the store")
	}
	if len(s2.Bookmarks) != 0 {
		t.Error("mutating a Get result's bookmarks leaked into the store")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				_, _ = store.Update(ctx, "u1", func(s *domain.Session) {
					s.AddBookmark(fmt.Sprintf("KBN-%03d-F%02d", n, j%5))
				})
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	list, _ := store.ListBookmarks(ctx, "u1")
	if len(list) > domain.BookmarkCapacity {
		t.Errorf("capacity violated under concurrency: %d", len(list))
	}
}
