// Package progression holds the run state machine: progress accumulation,
// level rollover and explicit level advances. It performs no I/O.
package progression

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/cosmic-journey/internal/domain/model"
)

// Outcome describes what a transition did to a run.
type Outcome string

const (
	OutcomeProgressed Outcome = "progressed"
	OutcomeLevelUp    Outcome = "level_up"
	OutcomeFinished   Outcome = "finished"
)

// Option configures Rules.
type Option func(*Rules)

// WithLegacyOnePercentRollover makes a progress of exactly 1 complete the
// level, as older clients expect.
func WithLegacyOnePercentRollover(enabled bool) Option {
	return func(r *Rules) { r.legacyOnePercent = enabled }
}

// WithMaxLevel caps the level. Completing the last level finishes the run.
// Zero disables the cap.
func WithMaxLevel(level int) Option {
	return func(r *Rules) {
		if level >= 0 {
			r.maxLevel = level
		}
	}
}

// Rules applies transitions to runs.
type Rules struct {
	legacyOnePercent bool
	maxLevel         int
}

// New creates Rules with the given options.
func New(opts ...Option) *Rules {
	r := &Rules{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxLevel returns the configured cap, 0 when unlimited.
func (r *Rules) MaxLevel() int { return r.maxLevel }

// ValidateIncrement rejects negative and non-finite increments.
func ValidateIncrement(increment float64) error {
	if math.IsNaN(increment) || math.IsInf(increment, 0) {
		return fmt.Errorf("%w: increment must be a finite number", model.ErrInvalidInput)
	}
	if increment < 0 {
		return fmt.Errorf("%w: increment must be >= 0, got %v", model.ErrInvalidInput, increment)
	}
	return nil
}

// Clamp limits progress to [0, 100].
func Clamp(progress float64) float64 {
	return math.Max(0, math.Min(model.MaxProgress, progress))
}

// ApplyProgress returns run with increment added. Reaching 100 completes the
// level: level goes up by one and progress resets to 0 in the same step.
func (r *Rules) ApplyProgress(run model.Run, increment float64, now time.Time) (model.Run, Outcome, error) {
	if err := ValidateIncrement(increment); err != nil {
		return run, "", err
	}
	if run.Finished() {
		return run, "", fmt.Errorf("%w: run %s is finished", model.ErrInvalidState, run.ID)
	}

	next := Clamp(run.Progress + increment)
	if next >= model.MaxProgress || (r.legacyOnePercent && next == 1) {
		out, outcome := r.completeLevel(run, now)
		return out, outcome, nil
	}
	run.Progress = next
	return run, OutcomeProgressed, nil
}

// AdvanceLevel moves a run whose progress reached 100 to the next level.
func (r *Rules) AdvanceLevel(run model.Run, now time.Time) (model.Run, Outcome, error) {
	if run.Finished() {
		return run, "", fmt.Errorf("%w: run %s is finished", model.ErrInvalidState, run.ID)
	}
	if run.Progress < model.MaxProgress {
		return run, "", fmt.Errorf("%w: level %d is at %v%%, must reach 100%% first",
			model.ErrInvalidState, run.Level, run.Progress)
	}
	out, outcome := r.completeLevel(run, now)
	return out, outcome, nil
}

func (r *Rules) completeLevel(run model.Run, now time.Time) (model.Run, Outcome) {
	if r.maxLevel > 0 && run.Level >= r.maxLevel {
		run.Level = r.maxLevel
		run.Progress = model.MaxProgress
		finished := now
		run.FinishedAt = &finished
		return run, OutcomeFinished
	}
	run.Level++
	run.Progress = 0
	return run, OutcomeLevelUp
}
