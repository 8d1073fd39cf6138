package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/cosmic-journey/internal/adapters/mq/queue"
	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/domain/model"
)

// Collection names in the document store.
const (
	CollectionRuns      = "runs"
	CollectionUsers     = "users"
	CollectionItems     = "items"
	CollectionUserItems = "user_items"
)

func runFromRecord(rec repository.Record) model.Run {
	return model.Run{
		ID:         rec.ID,
		User:       rec.String("user"),
		Level:      rec.Int("level"),
		Progress:   rec.Float("progress"),
		StartedAt:  rec.Time("started_at"),
		FinishedAt: rec.TimePtr("finished_at"),
		Created:    rec.Created,
		Updated:    rec.Updated,
		Revision:   rec.Revision,
	}
}

func runFields(r model.Run) map[string]any {
	return map[string]any{
		"user":        r.User,
		"level":       r.Level,
		"progress":    r.Progress,
		"started_at":  r.StartedAt,
		"finished_at": r.FinishedAt,
	}
}

func itemFromRecord(rec repository.Record) model.Item {
	return model.Item{
		ID:    rec.ID,
		Name:  model.ItemName(rec.String("name")),
		Cost:  rec.Int("cost"),
		Count: rec.Int("count"),
	}
}

func holdingFromRecord(rec repository.Record) model.Holding {
	return model.Holding{
		ID:    rec.ID,
		User:  rec.String("user"),
		Item:  rec.String("item"),
		Count: rec.Int("count"),
	}
}

func accountFromRecord(rec repository.Record) model.Account {
	return model.Account{
		ID:       rec.ID,
		Username: rec.String("username"),
		Name:     rec.String("name"),
		Coins:    rec.Int("coins"),
	}
}

// translate maps store and queue failures onto domain error kinds, keeping
// the underlying message.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch {
	case errors.Is(err, repository.ErrNotFound):
		kind = model.ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		kind = model.ErrConflict
	case errors.Is(err, repository.ErrInvalidInput):
		kind = model.ErrInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped), errors.Is(err, queue.ErrNotStarted):
		kind = model.ErrUpstreamUnavailable
	case isDomainError(err):
		return err
	default:
		kind = model.ErrUpstreamUnavailable
	}
	return fmt.Errorf("%s: %w: %v", op, kind, err)
}

func isDomainError(err error) bool {
	for _, k := range []error{
		model.ErrNotFound, model.ErrForbidden, model.ErrUnauthorized, model.ErrInvalidInput,
		model.ErrInvalidState, model.ErrConflict, model.ErrUpstreamUnavailable,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
