// Package dispatch schedules delayed outbound message sequences and
// deduplicates inbound events.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/kiroku/internal/domain"
	"github.com/ashureev/kiroku/internal/line"
)

// Sequencer delivers ordered message sequences to a user with a fixed
// inter-message delay. At most one sequence is active per user:
// starting a new one cancels every not-yet-fired step of the previous
// one. Deliveries are fire-and-forget relative to the caller.
type Sequencer struct {
	sender    line.Sender
	stepDelay time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	nextGen    uint64
	pending    map[string]*pendingSet
	introUntil map[string]time.Time
}

// pendingSet tracks the scheduled steps of one user's active sequence.
// The generation guards against a timer that fired after CancelPending
// stopped accepting it; generations are unique per sequence, never
// reused, so a stale timer can never match a later set. The entry is
// dropped once every step has fired.
type pendingSet struct {
	gen       uint64
	remaining int
	timers    []*time.Timer
}

// NewSequencer creates a sequencer. stepDelay is the gap between
// consecutive steps; introCooldown gates intro-class sequences.
func NewSequencer(sender line.Sender, stepDelay, introCooldown time.Duration) *Sequencer {
	return &Sequencer{
		sender:     sender,
		stepDelay:  stepDelay,
		cooldown:   introCooldown,
		now:        time.Now,
		pending:    make(map[string]*pendingSet),
		introUntil: make(map[string]time.Time),
	}
}

// DeliverSequence sends msgs[0] immediately and each later step after
// i*stepDelay. Any previously scheduled steps for the user are
// cancelled first.
func (q *Sequencer) DeliverSequence(userID string, msgs []domain.Message) {
	q.deliver(userID, msgs, 0)
}

// DeliverFollowUp schedules every message with a delay, the first step
// landing one stepDelay from now. Used when the immediate part of a
// turn already went out on the reply token.
func (q *Sequencer) DeliverFollowUp(userID string, msgs []domain.Message) {
	q.deliver(userID, msgs, 1)
}

// deliver cancels the previous sequence and arms the new one inside a
// single critical section, so two concurrent calls for one user cannot
// both leave timers armed.
func (q *Sequencer) deliver(userID string, msgs []domain.Message, offset int) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cancelLocked(userID)

	q.nextGen++
	gen := q.nextGen
	set := &pendingSet{gen: gen}

	for i, m := range msgs {
		delay := time.Duration(i+offset) * q.stepDelay
		if delay <= 0 {
			go q.push(userID, m)
			continue
		}
		msg := m
		set.remaining++
		set.timers = append(set.timers, time.AfterFunc(delay, func() {
			q.mu.Lock()
			cur, ok := q.pending[userID]
			stale := !ok || cur.gen != gen
			if !stale {
				cur.remaining--
				if cur.remaining == 0 {
					delete(q.pending, userID)
				}
			}
			q.mu.Unlock()
			if stale {
				return
			}
			q.push(userID, msg)
		}))
	}
	if set.remaining > 0 {
		q.pending[userID] = set
	}
}

// CancelPending revokes every scheduled-but-undelivered step for the
// user.
func (q *Sequencer) CancelPending(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelLocked(userID)
}

func (q *Sequencer) cancelLocked(userID string) {
	set, ok := q.pending[userID]
	if !ok {
		return
	}
	for _, t := range set.timers {
		t.Stop()
	}
	delete(q.pending, userID)
}

func (q *Sequencer) push(userID string, msg domain.Message) {
	if err := q.sender.Push(context.Background(), userID, []domain.Message{msg}); err != nil {
		slog.Error("Scheduled push failed", "user_id", userID, "error", err)
	}
}

// CanTriggerIntro reports whether the intro cooldown has expired for
// the user. The cooldown absorbs duplicate follow deliveries and rapid
// re-sends of the trigger keyword.
func (q *Sequencer) CanTriggerIntro(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.now().Before(q.introUntil[userID])
}

// MarkIntroTriggered starts the intro cooldown window for the user and
// returns the time at which it expires.
func (q *Sequencer) MarkIntroTriggered(userID string) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	until := q.now().Add(q.cooldown)
	q.introUntil[userID] = until
	return until
}

// SweepCooldowns drops expired cooldown entries and returns how many
// were removed. Without this the per-user map grows for the process
// lifetime.
func (q *Sequencer) SweepCooldowns() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	removed := 0
	for userID, until := range q.introUntil {
		if !now.Before(until) {
			delete(q.introUntil, userID)
			removed++
		}
	}
	return removed
}
