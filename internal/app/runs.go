package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/domain/dedupe"
	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/internal/domain/progression"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

func requireUser(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%s: %w: missing user", op, model.ErrUnauthorized)
	}
	return nil
}

func requireID(op, name, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s: %w: %s is required", op, model.ErrInvalidInput, name)
	}
	return nil
}

// CreateRun starts a new run at level 1 with no progress.
func (s *Service) CreateRun(ctx context.Context, userID string) (model.Run, error) {
	const op = "service.create_run"
	if err := requireUser(op, userID); err != nil {
		return model.Run{}, err
	}
	run := model.NewRun(userID, s.now())
	rec, err := s.store.Create(ctx, CollectionRuns, runFields(run))
	if err != nil {
		return model.Run{}, translate(op, err)
	}
	metrics.RecordRunCreated()
	created := runFromRecord(rec)
	s.logger.Debug(ctx, "run created", logger.String("run_id", created.ID), logger.String("user", userID))
	return created, nil
}

// GetLatestRun returns the user's most recently started run.
func (s *Service) GetLatestRun(ctx context.Context, userID string) (model.Run, error) {
	const op = "service.get_latest_run"
	if err := requireUser(op, userID); err != nil {
		return model.Run{}, err
	}
	rec, err := s.store.GetFirstListItem(ctx, CollectionRuns, repository.ListOptions{
		Filter: repository.Where(repository.Eq("user", userID)),
		Sort:   repository.MustParseSort("-started_at"),
	})
	if err != nil {
		return model.Run{}, translate(op, err)
	}
	return runFromRecord(rec), nil
}

// GetRun returns one run owned by userID.
func (s *Service) GetRun(ctx context.Context, userID, runID string) (model.Run, error) {
	const op = "service.get_run"
	if err := requireUser(op, userID); err != nil {
		return model.Run{}, err
	}
	if err := requireID(op, "runId", runID); err != nil {
		return model.Run{}, err
	}
	return s.loadOwnedRun(ctx, op, userID, runID)
}

// ListRuns returns all of the user's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, userID string) ([]model.Run, error) {
	const op = "service.list_runs"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	recs, err := s.store.GetFullList(ctx, CollectionRuns, repository.ListOptions{
		Filter: repository.Where(repository.Eq("user", userID)),
		Sort:   repository.MustParseSort("-created"),
	})
	if err != nil {
		return nil, translate(op, err)
	}
	runs := make([]model.Run, len(recs))
	for i, rec := range recs {
		runs[i] = runFromRecord(rec)
	}
	return runs, nil
}

// AdvanceLevel moves a run at 100% progress to the next level.
func (s *Service) AdvanceLevel(ctx context.Context, userID, runID string) (model.Run, error) {
	const op = "service.advance_level"
	if err := requireUser(op, userID); err != nil {
		return model.Run{}, err
	}
	if err := requireID(op, "runId", runID); err != nil {
		return model.Run{}, err
	}

	run, outcome, err := s.mutateRun(ctx, op, userID, runID, func(r model.Run) (model.Run, progression.Outcome, error) {
		return s.rules.AdvanceLevel(r, s.now())
	})
	if err != nil {
		s.rejected(ctx, op, "advance_level", runID, err)
		return model.Run{}, err
	}
	metrics.RecordLevelAdvance()
	s.logger.Debug(ctx, "level advanced", logger.String("run_id", runID),
		logger.Int("level", run.Level), logger.String("outcome", string(outcome)))
	return run, nil
}

// ApplyProgress adds increment to the run's progress, rolling over into the
// next level when it reaches 100.
func (s *Service) ApplyProgress(ctx context.Context, userID string, req model.ProgressRequest) (model.Run, error) {
	const op = "service.apply_progress"
	if err := requireUser(op, userID); err != nil {
		return model.Run{}, err
	}
	if err := requireID(op, "runId", req.RunID); err != nil {
		return model.Run{}, err
	}
	if err := progression.ValidateIncrement(req.Increment); err != nil {
		s.rejected(ctx, op, "apply_progress", req.RunID, err)
		return model.Run{}, fmt.Errorf("%s: %w", op, err)
	}

	var (
		key       string
		checked   bool
		duplicate bool
	)
	if req.RequestID != "" {
		key = dedupe.Key(userID, req.RunID, req.RequestID)
	}

	run, outcome, err := s.mutateRun(ctx, op, userID, req.RunID, func(r model.Run) (model.Run, progression.Outcome, error) {
		// Checked on the writer so a retry waits for the first attempt to land,
		// and only once so conflict retries do not see their own key.
		if key != "" && !checked {
			checked = true
			if s.deduper.SeenAndRecord(ctx, key) {
				duplicate = true
				return r, "", errSkipWrite
			}
		}
		return s.rules.ApplyProgress(r, req.Increment, s.now())
	})
	if err != nil {
		if key != "" && !duplicate {
			s.deduper.Unrecord(ctx, key)
		}
		s.rejected(ctx, op, "apply_progress", req.RunID, err)
		return model.Run{}, err
	}
	if duplicate {
		metrics.RecordProgressUpdate("duplicate")
		s.logger.Debug(ctx, "duplicate progress request", logger.String("run_id", req.RunID),
			logger.String("request_id", req.RequestID))
		return run, nil
	}
	metrics.RecordProgressUpdate(string(outcome))
	s.logger.Debug(ctx, "progress applied", logger.String("run_id", req.RunID),
		logger.Float64("increment", req.Increment), logger.Int("level", run.Level),
		logger.Float64("progress", run.Progress), logger.String("outcome", string(outcome)))
	return run, nil
}

// errSkipWrite tells mutateRun to return the current run without writing.
var errSkipWrite = errors.New("skip write")

type transition func(model.Run) (model.Run, progression.Outcome, error)

// mutateRun performs read, check, write on the run's writer. The write is
// conditioned on the revision that was read; a conflict reruns the cycle up
// to maxConflictRetries times.
func (s *Service) mutateRun(ctx context.Context, op, userID, runID string, next transition) (model.Run, progression.Outcome, error) {
	var (
		out     model.Run
		outcome progression.Outcome
	)
	err := s.writers.Do(ctx, runID, func() error {
		for attempt := 0; ; attempt++ {
			current, err := s.loadOwnedRun(ctx, op, userID, runID)
			if err != nil {
				return err
			}
			updated, oc, err := next(current)
			if errors.Is(err, errSkipWrite) {
				out = current
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			// A caller that already gave up must not see a write it was told failed.
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.store.Update(ctx, CollectionRuns, runID, runFields(updated),
				repository.IfRevision(current.Revision))
			if errors.Is(err, repository.ErrConflict) && attempt < s.maxConflictRetries {
				s.logger.Warn(ctx, "revision conflict, retrying", logger.String("run_id", runID),
					logger.Int("attempt", attempt+1))
				continue
			}
			if err != nil {
				return translate(op, err)
			}
			out, outcome = runFromRecord(rec), oc
			return nil
		}
	})
	if err != nil {
		return model.Run{}, "", translate(op, err)
	}
	return out, outcome, nil
}

func (s *Service) loadOwnedRun(ctx context.Context, op, userID, runID string) (model.Run, error) {
	rec, err := s.store.GetOne(ctx, CollectionRuns, runID)
	if err != nil {
		return model.Run{}, translate(op, err)
	}
	run := runFromRecord(rec)
	if !run.OwnedBy(userID) {
		return model.Run{}, fmt.Errorf("%s: %w: run %s belongs to another user", op, model.ErrForbidden, runID)
	}
	return run, nil
}

func (s *Service) rejected(ctx context.Context, op, operation, runID string, err error) {
	kind := model.Kind(err)
	metrics.RecordRejectedMutation(operation, kind)
	s.logger.Warn(ctx, "run mutation rejected", logger.String("op", op),
		logger.String("run_id", runID), logger.String("kind", kind), logger.Error(err))
}
