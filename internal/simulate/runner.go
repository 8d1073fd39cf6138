package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/internal/domain/progression"
	"github.com/okian/cosmic-journey/pkg/logger"
)

const directoryPermission = 0o750

// counters are shared by the player goroutines.
type counters struct {
	runs, submitted, resent, failed atomic.Int64
}

// Run executes a complete simulation: health check, concurrent players,
// then verification of every run and of the leaderboard.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	stats := &Stats{Players: cfg.Players, StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.JWTSecret, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("steps", cfg.Steps),
		logger.Int("workers", cfg.Workers))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	plans := GeneratePlans(cfg)
	if cfg.OutputFile != "" {
		if err := savePlans(cfg.OutputFile, plans); err != nil {
			log.Warn(ctx, "failed to save plans", logger.Error(err))
		}
	}

	outcomes, err := playAll(ctx, cfg, client, plans, stats, log)
	if err != nil {
		return stats, err
	}

	entries, err := verify(ctx, cfg, client, outcomes)
	stats.LeaderboardEntries = entries
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err != nil {
		return stats, err
	}

	log.Info(ctx, "simulation verified",
		logger.Int("runsCreated", stats.RunsCreated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("resent", stats.Resent),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func playAll(ctx context.Context, cfg *Config, client *Client, plans []Plan, stats *Stats, log logger.Logger) ([]Outcome, error) {
	rules := progression.New(
		progression.WithLegacyOnePercentRollover(cfg.LegacyRollover),
		progression.WithMaxLevel(cfg.MaxLevel),
	)
	outcomes := make([]Outcome, len(plans))
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, plan := range plans {
		g.Go(func() error {
			out, err := play(gctx, cfg, client, rules, plan, &c, log)
			if err != nil {
				c.failed.Add(1)
				return fmt.Errorf("player %s: %w", plan.UserID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	err := g.Wait()

	stats.RunsCreated = int(c.runs.Load())
	stats.Submitted = int(c.submitted.Load())
	stats.Resent = int(c.resent.Load())
	stats.Failed = int(c.failed.Load())
	return outcomes, err
}

// play drives one player's run and checks every response against the
// locally computed state.
func play(ctx context.Context, cfg *Config, client *Client, rules *progression.Rules, plan Plan, c *counters, log logger.Logger) (Outcome, error) {
	run, err := client.CreateRun(ctx, plan.UserID)
	if err != nil {
		return Outcome{}, err
	}
	c.runs.Add(1)

	expected := model.NewRun(plan.UserID, run.StartedAt)
	for _, step := range plan.Steps {
		if expected.Finished() {
			break
		}
		next, _, err := rules.ApplyProgress(expected, step.Increment, time.Now())
		if err != nil {
			return Outcome{}, fmt.Errorf("local rules: %w", err)
		}
		expected = next

		req := model.ProgressRequest{RunID: run.ID, Increment: step.Increment, RequestID: step.RequestID}
		got, err := client.Progress(ctx, plan.UserID, req)
		if err != nil {
			return Outcome{}, err
		}
		c.submitted.Add(1)
		if err := matches(got, expected); err != nil {
			return Outcome{}, err
		}
		if cfg.Verbose {
			log.Debug(ctx, "progress applied", logger.String("user", plan.UserID),
				logger.Float64("increment", step.Increment), logger.Int("level", got.Level),
				logger.Float64("progress", got.Progress))
		}

		if step.Resend {
			again, err := client.Progress(ctx, plan.UserID, req)
			if err != nil {
				return Outcome{}, fmt.Errorf("resend: %w", err)
			}
			c.resent.Add(1)
			if err := matches(again, expected); err != nil {
				return Outcome{}, fmt.Errorf("resend applied twice: %w", err)
			}
		}
	}
	return Outcome{UserID: plan.UserID, RunID: run.ID, Level: expected.Level, Progress: expected.Progress}, nil
}

func matches(got, want model.Run) error {
	if got.Level != want.Level || got.Progress != want.Progress {
		return fmt.Errorf("%w: run %s is (%d, %.1f), expected (%d, %.1f)",
			ErrVerification, got.ID, got.Level, got.Progress, want.Level, want.Progress)
	}
	return nil
}

func savePlans(filename string, plans []Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plans: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write plans: %w", err)
	}
	return nil
}
