package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deduper remembers inbound event identifiers for a retention window,
// guarding against at-least-once delivery from the upstream transport.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduper creates a dedup cache with the given retention window.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records the identifier and reports whether it was already seen
// within the retention window. The check and the record are one atomic
// step, so two concurrent duplicates cannot both pass.
func (d *Deduper) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Sweep drops identifiers older than the retention window and returns
// how many were removed.
func (d *Deduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

// StartSweepWorker runs a background goroutine that periodically
// evicts expired dedup entries and intro cooldowns until ctx is
// cancelled.
func StartSweepWorker(ctx context.Context, d *Deduper, q *Sequencer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Sweep worker started", "interval", interval, "ttl", d.ttl)

		for {
			select {
			case <-ticker.C:
				if removed := d.Sweep(); removed > 0 {
					slog.Debug("Dedup sweep removed entries", "count", removed)
				}
				if removed := q.SweepCooldowns(); removed > 0 {
					slog.Debug("Cooldown sweep removed entries", "count", removed)
				}
			case <-ctx.Done():
				slog.Info("Sweep worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
