package model

import (
	"fmt"
	"strings"
	"time"
)

// TimeWindow is a recency filter applied to leaderboard queries.
type TimeWindow string

const (
	WindowAll     TimeWindow = "all"
	WindowDaily   TimeWindow = "daily"
	WindowWeekly  TimeWindow = "weekly"
	WindowMonthly TimeWindow = "monthly"
)

// ParseTimeWindow parses a timeFrame query value; empty means all.
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch w := TimeWindow(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowDaily, WindowWeekly, WindowMonthly:
		return w, nil
	default:
		return "", fmt.Errorf("%w: unknown time frame %q", ErrInvalidInput, s)
	}
}

// LeaderboardEntry is a ranked, time-annotated projection of a Run.
type LeaderboardEntry struct {
	ID               string     `json:"id"`
	User             string     `json:"user"`
	Username         string     `json:"username"`
	Level            int        `json:"level"`
	Progress         float64    `json:"progress"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	Created          time.Time  `json:"created"`
	ElapsedMillis    int64      `json:"timeDifference"`
	ElapsedFormatted string     `json:"timeFormatted"`
	Rank             int        `json:"rank"`
}

// LeaderboardPage is one page of ranked entries.
type LeaderboardPage struct {
	Page       int                `json:"page"`
	PerPage    int                `json:"perPage"`
	TotalPages int                `json:"totalPages"`
	TotalItems int                `json:"totalItems"`
	Items      []LeaderboardEntry `json:"items"`
}
