// Package domain contains core domain types for the kiroku engine.
package domain

// Stage is the narrative progress marker for a user. Exactly one stage
// is active per user at any time; it drives which inputs are meaningful.
type Stage string

const (
	StageInit       Stage = "init"
	StageIntro      Stage = "intro"
	StageDeathShown Stage = "death_shown"
	StageAccepted   Stage = "accepted"
	StageStopped    Stage = "stopped"
	StageA1         Stage = "A1"
	StageB0         Stage = "B0"
	StageC0         Stage = "C0"
	StageFinalReady Stage = "final_ready"
	StageFinalShown Stage = "final_shown"
	StageCleared    Stage = "cleared"
)

// Milestone names a one-way boolean recording a puzzle solved.
type Milestone string

const (
	MilestoneStop1 Milestone = "stop1"
	MilestoneStop2 Milestone = "stop2"
	MilestoneStop3 Milestone = "stop3"
)

// Milestones lists every milestone in display order.
var Milestones = []Milestone{MilestoneStop1, MilestoneStop2, MilestoneStop3}
