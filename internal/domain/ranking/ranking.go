// Package ranking turns stored runs into a ranked leaderboard page.
//
// The store orders runs coarsely by level and progress. This package adds
// elapsed play time, which the store cannot compute, re-sorts the page with
// it as the final tie-break and assigns contiguous ranks.
package ranking

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/cosmic-journey/internal/domain/model"
)

// Page size bounds used when the caller does not configure them.
const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// WindowStart returns the lower bound on creation time for w. The second
// result is false for WindowAll, which has no bound.
func WindowStart(w model.TimeWindow, now time.Time) (time.Time, bool) {
	switch w {
	case model.WindowDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case model.WindowWeekly:
		return now.AddDate(0, 0, -7), true
	case model.WindowMonthly:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}

// ElapsedMillis is finishedAt (or now while still playing) minus startedAt.
// A start in the future counts as zero.
func ElapsedMillis(startedAt time.Time, finishedAt *time.Time, now time.Time) int64 {
	end := now
	if finishedAt != nil {
		end = *finishedAt
	}
	ms := end.Sub(startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// FormatElapsed renders ms as "{h}h {m}m {s}s" using floor division.
func FormatElapsed(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms % 3_600_000) / 60_000
	seconds := (ms % 60_000) / 1000
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// Normalize applies defaults and bounds to paging parameters.
// Non-positive defaultSize or maxSize fall back to the package defaults.
func Normalize(page, pageSize, defaultSize, maxSize int) (int, int) {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = defaultSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > maxSize:
		pageSize = maxSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// TotalPages returns how many pages of pageSize hold totalItems.
func TotalPages(totalItems, pageSize int) int {
	if pageSize < 1 || totalItems <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// Less reports whether a ranks strictly ahead of b: higher level, then higher
// progress, then shorter elapsed time.
func Less(a, b model.LeaderboardEntry) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if a.Progress != b.Progress {
		return a.Progress > b.Progress
	}
	return a.ElapsedMillis < b.ElapsedMillis
}

// Build projects one store page of runs into ranked entries. names maps user
// ids to display names; a missing user yields an empty name.
func Build(runs []model.Run, names map[string]string, page, pageSize int, now time.Time) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, len(runs))
	for i, r := range runs {
		elapsed := ElapsedMillis(r.StartedAt, r.FinishedAt, now)
		entries[i] = model.LeaderboardEntry{
			ID:               r.ID,
			User:             r.User,
			Username:         names[r.User],
			Level:            r.Level,
			Progress:         r.Progress,
			StartedAt:        r.StartedAt,
			FinishedAt:       r.FinishedAt,
			Created:          r.Created,
			ElapsedMillis:    elapsed,
			ElapsedFormatted: FormatElapsed(elapsed),
		}
	}
	Rank(entries, page, pageSize)
	return entries
}

// Rank sorts entries in place and numbers them from (page-1)*pageSize+1.
// Equal entries keep their store order.
func Rank(entries []model.LeaderboardEntry, page, pageSize int) {
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
	offset := (page - 1) * pageSize
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
}
