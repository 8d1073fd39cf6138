package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/internal/domain/ranking"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

var leaderboardSort = repository.MustParseSort("-level,-progress")

// GetLeaderboard returns one ranked page of runs inside the time window.
func (s *Service) GetLeaderboard(ctx context.Context, q model.LeaderboardQuery) (model.LeaderboardPage, error) {
	const op = "service.get_leaderboard"
	start := time.Now()

	window, err := model.ParseTimeWindow(string(q.Window))
	if err != nil {
		return model.LeaderboardPage{}, fmt.Errorf("%s: %w", op, err)
	}
	page, pageSize := ranking.Normalize(q.Page, q.PageSize, s.defaultPageSize, s.maxPageSize)
	now := s.now()

	var filter repository.Filter
	if bound, ok := ranking.WindowStart(window, now); ok {
		filter = repository.Where(repository.Gte(repository.FieldCreated, bound))
	}
	res, err := s.store.GetList(ctx, CollectionRuns, page, pageSize, repository.ListOptions{
		Filter: filter,
		Sort:   leaderboardSort,
	})
	if err != nil {
		return model.LeaderboardPage{}, translate(op, err)
	}

	runs := make([]model.Run, len(res.Items))
	for i, rec := range res.Items {
		runs[i] = runFromRecord(rec)
	}
	entries := ranking.Build(runs, s.displayNames(ctx, runs), page, pageSize, now)

	metrics.RecordLeaderboardQuery(string(window), float64(time.Since(start).Microseconds())/1000)
	return model.LeaderboardPage{
		Page:       page,
		PerPage:    pageSize,
		TotalPages: res.TotalPages,
		TotalItems: res.TotalItems,
		Items:      entries,
	}, nil
}

// displayNames resolves run owners in one query. Owners that cannot be
// resolved get an empty name rather than failing the page.
func (s *Service) displayNames(ctx context.Context, runs []model.Run) map[string]string {
	names := map[string]string{}
	seen := map[string]bool{}
	ids := make([]any, 0, len(runs))
	for _, r := range runs {
		if r.User != "" && !seen[r.User] {
			seen[r.User] = true
			ids = append(ids, r.User)
		}
	}
	if len(ids) == 0 {
		return names
	}
	recs, err := s.store.GetFullList(ctx, CollectionUsers, repository.ListOptions{
		Filter: repository.Where(repository.In(repository.FieldID, ids...)),
	})
	if err != nil {
		s.logger.Warn(ctx, "resolving leaderboard names failed", logger.Error(err))
		return names
	}
	for _, rec := range recs {
		names[rec.ID] = accountFromRecord(rec).DisplayName()
	}
	return names
}
