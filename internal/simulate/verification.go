package simulate

import (
	"context"
	"fmt"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/internal/domain/ranking"
)

// verify checks every player's latest run, then walks the whole leaderboard
// and checks ordering, rank numbering and that each simulated run is listed
// with its expected state. It returns the number of leaderboard entries.
func verify(ctx context.Context, cfg *Config, client *Client, outcomes []Outcome) (int, error) {
	for _, o := range outcomes {
		latest, err := client.LatestRun(ctx, o.UserID)
		if err != nil {
			return 0, err
		}
		if latest.ID != o.RunID {
			return 0, fmt.Errorf("%w: latest run of %s is %s, expected %s", ErrVerification, o.UserID, latest.ID, o.RunID)
		}
		if err := matches(latest, model.Run{Level: o.Level, Progress: o.Progress}); err != nil {
			return 0, err
		}
	}

	entries, perPage, err := fetchLeaderboard(ctx, client, cfg.PerPage)
	if err != nil {
		return 0, err
	}
	if err := checkOrder(entries, perPage); err != nil {
		return len(entries), err
	}

	byRun := make(map[string]model.LeaderboardEntry, len(entries))
	for _, e := range entries {
		byRun[e.ID] = e
	}
	for _, o := range outcomes {
		e, ok := byRun[o.RunID]
		if !ok {
			return len(entries), fmt.Errorf("%w: run %s missing from leaderboard", ErrVerification, o.RunID)
		}
		if e.Level != o.Level || e.Progress != o.Progress {
			return len(entries), fmt.Errorf("%w: leaderboard has run %s at (%d, %.1f), expected (%d, %.1f)",
				ErrVerification, o.RunID, e.Level, e.Progress, o.Level, o.Progress)
		}
	}
	return len(entries), nil
}

// fetchLeaderboard returns every entry and the page size the server
// actually used, which may be clamped below the requested one.
func fetchLeaderboard(ctx context.Context, client *Client, perPage int) ([]model.LeaderboardEntry, int, error) {
	var all []model.LeaderboardEntry
	for page := 1; ; page++ {
		res, err := client.Leaderboard(ctx, page, perPage, model.WindowAll)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, res.Items...)
		if page >= res.TotalPages {
			return all, res.PerPage, nil
		}
	}
}

// checkOrder verifies ranks count up from 1, (level, progress) never
// increases, and entries within a page respect the full ranking order.
func checkOrder(entries []model.LeaderboardEntry, perPage int) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrVerification, i, e.Rank)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Level > prev.Level || (e.Level == prev.Level && e.Progress > prev.Progress) {
			return fmt.Errorf("%w: rank %d (%d, %.1f) outranks rank %d (%d, %.1f)",
				ErrVerification, e.Rank, e.Level, e.Progress, prev.Rank, prev.Level, prev.Progress)
		}
		samePage := perPage > 0 && i/perPage == (i-1)/perPage
		if samePage && ranking.Less(e, prev) {
			return fmt.Errorf("%w: rank %d should precede rank %d", ErrVerification, e.Rank, prev.Rank)
		}
	}
	return nil
}
