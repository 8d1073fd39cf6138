// Package model contains domain models passed between layers.
package model

import "time"

// Initial state of every run.
const (
	InitialLevel    = 1
	InitialProgress = 0.0
	MaxProgress     = 100.0
)

// Run is one player's progression attempt.
type Run struct {
	ID         string     `json:"id"`
	User       string     `json:"user"`
	Level      int        `json:"level"`
	Progress   float64    `json:"progress"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Created    time.Time  `json:"created"`
	Updated    time.Time  `json:"updated"`
	// Revision increments on every write; updates are conditioned on it.
	Revision int64 `json:"revision"`
}

// NewRun returns the initial state of a run owned by user.
func NewRun(user string, now time.Time) Run {
	return Run{
		User:      user,
		Level:     InitialLevel,
		Progress:  InitialProgress,
		StartedAt: now,
	}
}

// Finished reports whether the run has a finish timestamp.
func (r Run) Finished() bool { return r.FinishedAt != nil }

// OwnedBy reports whether user owns the run.
func (r Run) OwnedBy(user string) bool { return r.User == user }
