package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/kiroku/internal/domain"
)

// recordingSender captures pushed message texts per user.
type recordingSender struct {
	mu     sync.Mutex
	pushed []string
}

func (r *recordingSender) Reply(_ context.Context, _ string, msgs []domain.Message) error {
	return r.Push(context.Background(), "", msgs)
}

func (r *recordingSender) Push(_ context.Context, _ string, msgs []domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.pushed = append(r.pushed, m.Text)
	}
	return nil
}

func (r *recordingSender) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.pushed))
	copy(out, r.pushed)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDeliverSequenceOrdering(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 10*time.Millisecond, time.Minute)

	q.DeliverSequence("u1", []domain.Message{
		domain.Text("one"), domain.Text("two"), domain.Text("three"),
	})

	waitFor(t, func() bool { return len(sender.snapshot()) == 3 })
	got := sender.snapshot()
	want := []string{"one", "two", "three"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", got, want)
		}
	}
}

func TestNewSequenceCancelsPrevious(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 30*time.Millisecond, time.Minute)

	q.DeliverSequence("u1", []domain.Message{
		domain.Text("old-0"), domain.Text("old-1"), domain.Text("old-2"), domain.Text("old-3"),
	})
	// Replace before the delayed steps fire.
	q.DeliverSequence("u1", []domain.Message{
		domain.Text("new-0"), domain.Text("new-1"),
	})

	waitFor(t, func() bool {
		for _, text := range sender.snapshot() {
			if text == "new-1" {
				return true
			}
		}
		return false
	})
	// Give any stale timer a chance to misfire.
	time.Sleep(150 * time.Millisecond)

	sawNew := false
	for _, text := range sender.snapshot() {
		if text == "new-1" {
			sawNew = true
		}
		if sawNew && (text == "old-1" || text == "old-2" || text == "old-3") {
			t.Fatalf("stale step %q delivered after new sequence: %v", text, sender.snapshot())
		}
	}
}

func TestCancelPendingStopsAllSteps(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 20*time.Millisecond, time.Minute)

	q.DeliverSequence("u1", []domain.Message{
		domain.Text("first"), domain.Text("second"), domain.Text("third"),
	})
	q.CancelPending("u1")

	time.Sleep(120 * time.Millisecond)
	for _, text := range sender.snapshot() {
		if text == "second" || text == "third" {
			t.Fatalf("cancelled step %q was delivered", text)
		}
	}
}

func TestDeliverFollowUpDelaysFirstStep(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 25*time.Millisecond, time.Minute)

	q.DeliverFollowUp("u1", []domain.Message{domain.Text("later")})

	if got := sender.snapshot(); len(got) != 0 {
		t.Fatalf("follow-up delivered immediately: %v", got)
	}
	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })
}

func TestConcurrentDeliversLeaveOneTail(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 40*time.Millisecond, time.Minute)

	var wg sync.WaitGroup
	for _, prefix := range []string{"a", "b"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			q.DeliverSequence("u1", []domain.Message{
				domain.Text(p + "-0"), domain.Text(p + "-1"), domain.Text(p + "-2"),
			})
		}(prefix)
	}
	wg.Wait()

	waitFor(t, func() bool {
		for _, text := range sender.snapshot() {
			if text == "a-2" || text == "b-2" {
				return true
			}
		}
		return false
	})
	time.Sleep(100 * time.Millisecond)

	// Whichever call armed last wins; the loser's delayed steps must
	// all be gone, so exactly one final step arrives.
	tails := 0
	for _, text := range sender.snapshot() {
		if text == "a-2" || text == "b-2" {
			tails++
		}
	}
	if tails != 1 {
		t.Fatalf("%d sequence tails delivered, want exactly 1: %v", tails, sender.snapshot())
	}
}

func TestPendingEvicted(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, 5*time.Millisecond, time.Minute)

	pendingLen := func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending)
	}

	// Fully delivered sequences leave no entry behind.
	q.DeliverSequence("u1", []domain.Message{domain.Text("one"), domain.Text("two")})
	waitFor(t, func() bool { return len(sender.snapshot()) == 2 })
	waitFor(t, func() bool { return pendingLen() == 0 })

	// Cancellation drops the entry immediately.
	q.DeliverSequence("u1", []domain.Message{domain.Text("x"), domain.Text("y")})
	q.CancelPending("u1")
	if got := pendingLen(); got != 0 {
		t.Errorf("pending entries after cancel = %d, want 0", got)
	}
}

func TestSweepCooldowns(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, time.Millisecond, 20*time.Second)
	current := time.Now()
	q.now = func() time.Time { return current }

	q.MarkIntroTriggered("u1")
	q.MarkIntroTriggered("u2")
	if removed := q.SweepCooldowns(); removed != 0 {
		t.Errorf("Sweep removed %d active cooldowns", removed)
	}

	current = current.Add(21 * time.Second)
	q.MarkIntroTriggered("u3")
	if removed := q.SweepCooldowns(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if q.CanTriggerIntro("u3") {
		t.Error("active cooldown evicted by sweep")
	}
}

func TestIntroCooldown(t *testing.T) {
	sender := &recordingSender{}
	q := NewSequencer(sender, time.Millisecond, 20*time.Second)

	current := time.Now()
	q.now = func() time.Time { return current }

	if !q.CanTriggerIntro("u1") {
		t.Fatal("fresh user should be able to trigger intro")
	}
	q.MarkIntroTriggered("u1")
	if q.CanTriggerIntro("u1") {
		t.Error("intro retriggered inside cooldown window")
	}

	current = current.Add(19 * time.Second)
	if q.CanTriggerIntro("u1") {
		t.Error("cooldown expired early")
	}

	current = current.Add(2 * time.Second)
	if !q.CanTriggerIntro("u1") {
		t.Error("cooldown did not expire")
	}

	// Cooldowns are per user.
	if !q.CanTriggerIntro("u2") {
		t.Error("cooldown leaked across users")
	}
}

func TestDeduperReplay(t *testing.T) {
	d := NewDeduper(60 * time.Second)
	current := time.Now()
	d.now = func() time.Time { return current }

	if d.Seen("ev-1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.Seen("ev-1") {
		t.Fatal("replay inside window not detected")
	}
	if d.Seen("ev-2") {
		t.Error("unrelated id reported as duplicate")
	}
	if d.Seen("") {
		t.Error("empty id must never dedup")
	}

	current = current.Add(61 * time.Second)
	if d.Seen("ev-1") {
		t.Error("id still deduped after retention window")
	}
}

func TestDeduperSweep(t *testing.T) {
	d := NewDeduper(60 * time.Second)
	current := time.Now()
	d.now = func() time.Time { return current }

	d.Seen("ev-1")
	d.Seen("ev-2")
	current = current.Add(61 * time.Second)
	d.Seen("ev-3")

	if removed := d.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if !d.Seen("ev-3") {
		t.Error("fresh id evicted by sweep")
	}
}
