// Package engine implements the narrative state machine: it consumes
// normalized inbound events, decides transitions against the per-user
// session, and emits immediate and scheduled outbound messages.
package engine

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/ashureev/kiroku/internal/codes"
	"github.com/ashureev/kiroku/internal/dispatch"
	"github.com/ashureev/kiroku/internal/domain"
	"github.com/ashureev/kiroku/internal/line"
	"github.com/ashureev/kiroku/internal/session"
	"github.com/ashureev/kiroku/internal/textnorm"
)

// puzzleStep binds a stage to the code that advances it.
type puzzleStep struct {
	stage     domain.Stage
	code      string
	milestone domain.Milestone
	next      domain.Stage
}

var puzzleSteps = []puzzleStep{
	{domain.StageA1, codePuzzle1, domain.MilestoneStop1, domain.StageB0},
	{domain.StageB0, codePuzzle2, domain.MilestoneStop2, domain.StageC0},
	{domain.StageC0, codePuzzle3, domain.MilestoneStop3, domain.StageFinalReady},
}

// Engine orchestrates the conversation. It is safe for concurrent use;
// per-user consistency comes from the session store's atomic Update.
type Engine struct {
	sessions session.Store
	table    *codes.Table
	seq      *dispatch.Sequencer
	dedup    *dispatch.Deduper
	sender   line.Sender
	profiles line.ProfileProvider
	pick     func(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandomPick replaces the random branch selector, making reveal
// variant selection deterministic in tests.
func WithRandomPick(fn func(n int) int) Option {
	return func(e *Engine) { e.pick = fn }
}

// New creates the engine with its collaborators.
func New(sessions session.Store, table *codes.Table, seq *dispatch.Sequencer, dedup *dispatch.Deduper, sender line.Sender, profiles line.ProfileProvider, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		table:    table,
		seq:      seq,
		dedup:    dedup,
		sender:   sender,
		profiles: profiles,
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent processes one inbound event. All failures are handled
// internally: collaborator errors are logged and substituted with safe
// defaults, and unrecognized input yields the default menu.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.Event) {
	if ev.UserID == "" {
		slog.Debug("Event without user id skipped", "event_id", ev.ID)
		return
	}
	if e.dedup.Seen(ev.ID) {
		slog.Debug("Duplicate event skipped", "event_id", ev.ID, "user_id", ev.UserID)
		return
	}

	switch ev.Type {
	case domain.EventFollow:
		e.handleFollow(ctx, ev)
	case domain.EventMessage:
		if ev.IsText {
			e.handleMessage(ctx, ev)
		}
	default:
		slog.Debug("Unhandled event type", "type", ev.Type, "user_id", ev.UserID)
	}
}

func (e *Engine) handleFollow(ctx context.Context, ev domain.Event) {
	if !e.seq.CanTriggerIntro(ev.UserID) {
		e.send(ctx, ev, domain.Text(introInProgressText))
		return
	}
	e.startIntro(ctx, ev)
}

func (e *Engine) handleMessage(ctx context.Context, ev domain.Event) {
	raw := ev.Text
	loose := textnorm.NormalizeLoose(raw)

	// Bookmark commands carry a code inside surrounding text, so they
	// must be recognized before the bare code lookup.
	if bm, ok := classifyBookmark(raw); ok {
		e.handleBookmark(ctx, ev, bm)
		return
	}

	// Puzzle codes take priority over every keyword interpretation:
	// answers must work even when they collide with command substrings.
	if rec := e.table.ResolveInput(raw); rec != nil {
		e.handleCode(ctx, ev, rec)
		return
	}

	switch classifyKeyword(raw, loose) {
	case intentStart:
		e.handleStart(ctx, ev)
	case intentAcceptFate:
		e.handleAcceptFate(ctx, ev)
	case intentAccept:
		e.handleAccept(ctx, ev)
	case intentRewrite:
		e.handleRewrite(ctx, ev)
	case intentSeeTruth:
		e.handleSeeTruth(ctx, ev)
	case intentAbandon:
		e.handleAbandon(ctx, ev)
	case intentEpilogue:
		e.handleEpilogue(ctx, ev)
	case intentDecline:
		e.handleDecline(ctx, ev)
	case intentHint:
		e.handleHint(ctx, ev)
	case intentLog:
		e.handleLog(ctx, ev)
	case intentProgress:
		e.handleProgress(ctx, ev)
	case intentReset:
		e.handleReset(ctx, ev)
	default:
		e.send(ctx, ev, domain.Text(menuText))
	}
}

// --- narrative transitions ---

func (e *Engine) handleStart(ctx context.Context, ev domain.Event) {
	if !e.seq.CanTriggerIntro(ev.UserID) {
		e.send(ctx, ev, domain.Text(introInProgressText))
		return
	}
	e.startIntro(ctx, ev)
}

func (e *Engine) startIntro(ctx context.Context, ev domain.Event) {
	until := e.seq.MarkIntroTriggered(ev.UserID)
	name := e.displayName(ctx, ev.UserID)

	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		s.Stage = domain.StageIntro
		s.IntroCooldownUntil = until
	}); err != nil {
		slog.Error("Intro transition failed", "user_id", ev.UserID, "error", err)
		return
	}

	steps := introSequence(name)
	if ev.ReplyToken != "" {
		e.send(ctx, ev, steps[0])
		e.seq.DeliverFollowUp(ev.UserID, steps[1:])
		return
	}
	e.seq.DeliverSequence(ev.UserID, steps)
}

func (e *Engine) handleAccept(ctx context.Context, ev domain.Event) {
	name := e.displayName(ctx, ev.UserID)

	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		s.Stage = domain.StageDeathShown
		s.LastRecord = deathRecord
	}); err != nil {
		slog.Error("Accept transition failed", "user_id", ev.UserID, "error", err)
		return
	}

	e.send(ctx, ev, domain.Text(thanksText(name)))
	e.seq.DeliverFollowUp(ev.UserID, []domain.Message{
		domain.Text(deathRecord),
		domain.TextWithChoices(deathChoiceText, deathChoices...),
	})
}

func (e *Engine) handleAcceptFate(ctx context.Context, ev domain.Event) {
	applied := false
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		if s.Stage != domain.StageDeathShown {
			return
		}
		s.Stage = domain.StageAccepted
		applied = true
	}); err != nil {
		slog.Error("Accept-fate transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !applied {
		e.send(ctx, ev, domain.Text(menuText))
		return
	}
	e.seq.CancelPending(ev.UserID)
	e.send(ctx, ev, domain.Text(acceptFateText))
}

func (e *Engine) handleRewrite(ctx context.Context, ev domain.Event) {
	applied := false
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		if s.Stage != domain.StageDeathShown {
			return
		}
		s.Stage = domain.StageA1
		s.LastRecord = record1
		applied = true
	}); err != nil {
		slog.Error("Rewrite transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !applied {
		e.send(ctx, ev, domain.Text(menuText))
		return
	}
	e.send(ctx, ev,
		domain.Text(rewriteAckText),
		domain.TextWithChoices(record1, puzzleChoices...),
	)
}

func (e *Engine) handleCode(ctx context.Context, ev domain.Event, rec *domain.Record) {
	recKey := textnorm.NormalizeStrict(rec.Code).MatchKey

	var applied *puzzleStep
	finaleReady := false
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		for i := range puzzleSteps {
			step := &puzzleSteps[i]
			if s.Stage != step.stage || recKey != step.code {
				continue
			}
			s.SetMilestone(step.milestone)
			switch {
			case step.next == domain.StageFinalReady:
				// The finale opens only once every stop is in.
				if s.AllStopsCollected() {
					s.Stage = domain.StageFinalReady
					s.LastRecord = finaleIntroText
					finaleReady = true
				}
			case step.milestone == domain.MilestoneStop1:
				s.Stage = step.next
				s.LastRecord = record2
			case step.milestone == domain.MilestoneStop2:
				s.Stage = step.next
				s.LastRecord = record3
			default:
				s.Stage = step.next
			}
			applied = step
			break
		}
		if applied == nil {
			// Not the expected answer: treat as a record review.
			s.LastRecord = recordViewText(rec)
		}
	}); err != nil {
		slog.Error("Code transition failed", "user_id", ev.UserID, "error", err, "code", rec.Code)
		return
	}

	switch {
	case applied == nil:
		e.send(ctx, ev, domain.Text(recordViewText(rec)))
	case applied.milestone == domain.MilestoneStop1:
		e.send(ctx, ev,
			domain.Text(stop1ConfirmText),
			domain.TextWithChoices(record2, puzzleChoices...),
		)
	case applied.milestone == domain.MilestoneStop2:
		e.send(ctx, ev,
			domain.Text(stop2ConfirmText),
			domain.TextWithChoices(record3, puzzleChoices...),
		)
	case finaleReady:
		e.send(ctx, ev, domain.Text(stop3ConfirmText))
		e.seq.DeliverFollowUp(ev.UserID, []domain.Message{
			domain.Text(finaleIntroText),
			domain.TextWithChoices(finaleChoiceText, finaleChoices...),
		})
	default:
		e.send(ctx, ev, domain.Text(partialAckText))
	}
}

func (e *Engine) handleSeeTruth(ctx context.Context, ev domain.Event) {
	variants := []string{revealVariantA, revealVariantB}
	reveal := variants[e.pick(len(variants))]

	applied := false
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		if s.Stage != domain.StageFinalReady {
			return
		}
		s.Stage = domain.StageFinalShown
		s.LastRecord = reveal
		applied = true
	}); err != nil {
		slog.Error("Reveal transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !applied {
		e.send(ctx, ev, domain.Text(menuText))
		return
	}

	e.send(ctx, ev, domain.Text(revealAckText))
	e.seq.DeliverFollowUp(ev.UserID, []domain.Message{
		domain.Text(reveal),
		domain.TextWithChoices(finaleThanksText, epilogueChoices...),
	})
}

func (e *Engine) handleAbandon(ctx context.Context, ev domain.Event) {
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		s.Stage = domain.StageStopped
	}); err != nil {
		slog.Error("Abandon transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	e.seq.CancelPending(ev.UserID)
	e.send(ctx, ev, domain.Text(abandonText))
}

func (e *Engine) handleEpilogue(ctx context.Context, ev domain.Event) {
	applied := false
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		if s.Stage != domain.StageFinalShown {
			return
		}
		s.Stage = domain.StageCleared
		s.LastRecord = epilogueText
		applied = true
	}); err != nil {
		slog.Error("Epilogue transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !applied {
		e.send(ctx, ev, domain.Text(menuText))
		return
	}
	e.seq.CancelPending(ev.UserID)
	e.send(ctx, ev, domain.Text(epilogueText))
}

func (e *Engine) handleDecline(ctx context.Context, ev domain.Event) {
	if _, err := e.sessions.Update(ctx, ev.UserID, func(s *domain.Session) {
		s.Stage = domain.StageStopped
	}); err != nil {
		slog.Error("Decline transition failed", "user_id", ev.UserID, "error", err)
		return
	}
	e.seq.CancelPending(ev.UserID)
	e.send(ctx, ev, domain.Text(declineText))
}

// --- auxiliary commands (no stage change) ---

func (e *Engine) handleHint(ctx context.Context, ev domain.Event) {
	s, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		slog.Error("Session lookup failed", "user_id", ev.UserID, "error", err)
		return
	}
	e.send(ctx, ev, domain.Text(hintText(s.Stage, e.table)))
}

func (e *Engine) handleLog(ctx context.Context, ev domain.Event) {
	s, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		slog.Error("Session lookup failed", "user_id", ev.UserID, "error", err)
		return
	}
	if s.LastRecord == "" {
		e.send(ctx, ev, domain.Text(logEmptyText))
		return
	}
	e.send(ctx, ev, domain.Text(s.LastRecord))
}

func (e *Engine) handleProgress(ctx context.Context, ev domain.Event) {
	s, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		slog.Error("Session lookup failed", "user_id", ev.UserID, "error", err)
		return
	}
	e.send(ctx, ev, domain.Text(progressText(s)))
}

func (e *Engine) handleReset(ctx context.Context, ev domain.Event) {
	e.seq.CancelPending(ev.UserID)
	if err := e.sessions.Reset(ctx, ev.UserID); err != nil {
		slog.Error("Session reset failed", "user_id", ev.UserID, "error", err)
		return
	}
	e.send(ctx, ev, domain.Text(resetDoneText))
}

func (e *Engine) handleBookmark(ctx context.Context, ev domain.Event, bm intent) {
	switch bm {
	case intentBookmarkAdd:
		code, ok := codes.ExtractCode(ev.Text)
		if !ok {
			e.send(ctx, ev, domain.Text(bookmarkNoCodeText))
			return
		}
		if err := e.sessions.AddBookmark(ctx, ev.UserID, code); err != nil {
			slog.Error("Bookmark add failed", "user_id", ev.UserID, "error", err)
			return
		}
		e.send(ctx, ev, domain.Text(bookmarkAddedText(code)))

	case intentBookmarkRemove:
		code, ok := codes.ExtractCode(ev.Text)
		if !ok {
			e.send(ctx, ev, domain.Text(bookmarkNoCodeText))
			return
		}
		if err := e.sessions.RemoveBookmark(ctx, ev.UserID, code); err != nil {
			slog.Error("Bookmark remove failed", "user_id", ev.UserID, "error", err)
			return
		}
		e.send(ctx, ev, domain.Text(bookmarkRemovedText(code)))

	case intentBookmarkClear:
		if err := e.sessions.ClearBookmarks(ctx, ev.UserID); err != nil {
			slog.Error("Bookmark clear failed", "user_id", ev.UserID, "error", err)
			return
		}
		e.send(ctx, ev, domain.Text(bookmarkClearedText))

	case intentBookmarkList:
		list, err := e.sessions.ListBookmarks(ctx, ev.UserID)
		if err != nil {
			slog.Error("Bookmark list failed", "user_id", ev.UserID, "error", err)
			return
		}
		if len(list) == 0 {
			e.send(ctx, ev, domain.Text(bookmarkEmptyText))
			return
		}
		e.send(ctx, ev, domain.Text(bookmarkListText(list)))
	}
}

// --- helpers ---

// send delivers on the event's reply token when present, otherwise
// pushes. Delivery failures are logged and dropped, never propagated.
func (e *Engine) send(ctx context.Context, ev domain.Event, msgs ...domain.Message) {
	var err error
	if ev.ReplyToken != "" {
		err = e.sender.Reply(ctx, ev.ReplyToken, msgs)
	} else {
		err = e.sender.Push(ctx, ev.UserID, msgs)
	}
	if err != nil {
		slog.Error("Outbound delivery failed", "user_id", ev.UserID, "error", err)
	}
}

// displayName resolves the user's display name, falling back to the
// fixed placeholder so a profile failure never aborts delivery.
func (e *Engine) displayName(ctx context.Context, userID string) string {
	if e.profiles == nil {
		return FallbackDisplayName
	}
	name, err := e.profiles.DisplayName(ctx, userID)
	if err != nil || name == "" {
		if err != nil {
			slog.Warn("Profile lookup failed, using placeholder", "user_id", userID, "error", err)
		}
		return FallbackDisplayName
	}
	return name
}
