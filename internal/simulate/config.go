// Package simulate drives a running Cosmic Journey server with concurrent
// players and verifies run state and leaderboard ordering afterwards.
package simulate

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrVerification     = errors.New("verification failed")
)

// Config holds configuration for a simulation.
type Config struct {
	BaseURL        string        // Base URL of the service
	JWTSecret      string        // Secret the server verifies session tokens with
	Players        int           // Number of simulated players, one run each
	Steps          int           // Progress submissions per player
	DuplicateRatio float64       // Fraction of submissions resent with the same request id
	Workers        int           // Players driven concurrently
	Timeout        time.Duration // HTTP request timeout
	PerPage        int           // Leaderboard page size used for verification
	LegacyRollover bool          // Mirrors the server's progression.legacy_one_percent_rollover
	MaxLevel       int           // Mirrors the server's progression.max_level
	OutputFile     string        // Where player plans are saved, "" to skip
	Verbose        bool          // Log every submission
}

// Step is one planned progress submission.
type Step struct {
	RequestID string  `json:"requestId"`
	Increment float64 `json:"increment"`
	Resend    bool    `json:"resend"`
}

// Plan is everything one player will submit.
type Plan struct {
	UserID string `json:"userId"`
	Steps  []Step `json:"steps"`
}

// Outcome is the state a player's run should end in.
type Outcome struct {
	UserID   string
	RunID    string
	Level    int
	Progress float64
}

// Stats holds simulation statistics.
type Stats struct {
	Players            int
	RunsCreated        int
	Submitted          int
	Resent             int
	Failed             int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
