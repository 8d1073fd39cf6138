package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

var byCostDesc = repository.MustParseSort("-cost")

func ledgerKey(userID string) string { return "user:" + userID }

func parseItemName(op, name string) (model.ItemName, error) {
	n := model.ItemName(name)
	if !n.Valid() {
		return "", fmt.Errorf("%s: %w: invalid item name %q", op, model.ErrInvalidInput, name)
	}
	return n, nil
}

// ListItems returns the catalogue, most expensive first.
func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	const op = "service.list_items"
	recs, err := s.store.GetFullList(ctx, CollectionItems, repository.ListOptions{Sort: byCostDesc})
	if err != nil {
		return nil, translate(op, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w: no items found", op, model.ErrNotFound)
	}
	items := make([]model.Item, len(recs))
	for i, rec := range recs {
		items[i] = itemFromRecord(rec)
	}
	return items, nil
}

// ItemsForUser returns the catalogue annotated with what the user owns and
// can afford.
func (s *Service) ItemsForUser(ctx context.Context, userID string) ([]model.ItemOffer, error) {
	const op = "service.items_for_user"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	items, err := s.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.GetOne(ctx, CollectionUsers, userID)
	if err != nil {
		return nil, translate(op, err)
	}
	coins := accountFromRecord(acc).Coins

	holdings, err := s.store.GetFullList(ctx, CollectionUserItems, repository.ListOptions{
		Filter: repository.Where(repository.Eq("user", userID)),
	})
	if err != nil {
		return nil, translate(op, err)
	}
	owned := make(map[string]int, len(holdings))
	for _, rec := range holdings {
		h := holdingFromRecord(rec)
		owned[h.Item] += h.Count
	}

	offers := make([]model.ItemOffer, len(items))
	for i, it := range items {
		offers[i] = model.ItemOffer{
			ID:       it.ID,
			Name:     it.Name,
			Cost:     it.Cost,
			PackSize: it.Count,
			Count:    owned[it.ID],
			CanBuy:   coins >= it.Cost,
		}
	}
	return offers, nil
}

// Purchase spends the item's cost from the user's coins and credits one pack
// of the item.
func (s *Service) Purchase(ctx context.Context, userID, itemName string) (model.PurchaseResult, error) {
	const op = "service.purchase"
	if err := requireUser(op, userID); err != nil {
		return model.PurchaseResult{}, err
	}
	name, err := parseItemName(op, itemName)
	if err != nil {
		return model.PurchaseResult{}, err
	}

	var res model.PurchaseResult
	err = s.writers.Do(ctx, ledgerKey(userID), func() error {
		item, err := s.itemByName(ctx, op, name)
		if err != nil {
			return err
		}
		coins, err := s.adjustCoins(ctx, op, userID, -item.Cost)
		if err != nil {
			return err
		}
		owned, err := s.credit(ctx, op, userID, item)
		if err != nil {
			// The refund must land even when the caller has gone away.
			if _, rerr := s.adjustCoins(context.WithoutCancel(ctx), op, userID, item.Cost); rerr != nil {
				s.logger.Error(ctx, "coins debited but item not credited and refund failed",
					logger.String("user", userID), logger.String("item", string(name)),
					logger.Error(err), logger.String("refund_error", rerr.Error()))
				return errors.Join(err, rerr)
			}
			s.logger.Warn(ctx, "item credit failed, coins refunded",
				logger.String("user", userID), logger.String("item", string(name)), logger.Error(err))
			return err
		}
		res = model.PurchaseResult{Item: item, Owned: owned, Coins: coins}
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "purchase rejected", logger.String("user", userID),
			logger.String("item", itemName), logger.Error(err))
		return model.PurchaseResult{}, translate(op, err)
	}
	metrics.RecordItemPurchase(string(name))
	return res, nil
}

// UseItem consumes one unit of the item and returns how many remain. The
// holding is removed when it reaches zero.
func (s *Service) UseItem(ctx context.Context, userID, itemName string) (int, error) {
	const op = "service.use_item"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	name, err := parseItemName(op, itemName)
	if err != nil {
		return 0, err
	}

	var remaining int
	err = s.writers.Do(ctx, ledgerKey(userID), func() error {
		item, err := s.itemByName(ctx, op, name)
		if err != nil {
			return err
		}
		rec, err := s.holding(ctx, userID, item.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w: you do not own %s", op, model.ErrNotFound, name)
		}
		if err != nil {
			return translate(op, err)
		}
		h := holdingFromRecord(rec)
		if h.Count < 1 {
			return fmt.Errorf("%s: %w: no %s remaining", op, model.ErrInvalidState, name)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining = h.Count - 1
		if remaining == 0 {
			return translate(op, s.store.Delete(ctx, CollectionUserItems, h.ID))
		}
		_, err = s.store.Update(ctx, CollectionUserItems, h.ID, map[string]any{"count": remaining},
			repository.IfRevision(rec.Revision))
		return translate(op, err)
	})
	if err != nil {
		return 0, translate(op, err)
	}
	metrics.RecordItemUse(string(name))
	return remaining, nil
}

func (s *Service) itemByName(ctx context.Context, op string, name model.ItemName) (model.Item, error) {
	rec, err := s.store.GetFirstListItem(ctx, CollectionItems, repository.ListOptions{
		Filter: repository.Where(repository.Eq("name", string(name))),
	})
	if err != nil {
		return model.Item{}, translate(op, err)
	}
	return itemFromRecord(rec), nil
}

func (s *Service) holding(ctx context.Context, userID, itemID string) (repository.Record, error) {
	return s.store.GetFirstListItem(ctx, CollectionUserItems, repository.ListOptions{
		Filter: repository.Where(repository.Eq("user", userID), repository.Eq("item", itemID)),
	})
}

// adjustCoins adds delta to the user's coins and returns the new balance.
// A balance that would go negative is refused.
func (s *Service) adjustCoins(ctx context.Context, op, userID string, delta int) (int, error) {
	for attempt := 0; ; attempt++ {
		rec, err := s.store.GetOne(ctx, CollectionUsers, userID)
		if err != nil {
			return 0, translate(op, err)
		}
		balance := accountFromRecord(rec).Coins + delta
		if balance < 0 {
			return 0, fmt.Errorf("%s: %w: not enough coins", op, model.ErrInvalidState)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		_, err = s.store.Update(ctx, CollectionUsers, userID, map[string]any{"coins": balance},
			repository.IfRevision(rec.Revision))
		if errors.Is(err, repository.ErrConflict) && attempt < s.maxConflictRetries {
			continue
		}
		if err != nil {
			return 0, translate(op, err)
		}
		return balance, nil
	}
}

// credit adds one pack of item to the user's holding and returns the total.
func (s *Service) credit(ctx context.Context, op, userID string, item model.Item) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := s.holding(ctx, userID, item.ID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, err := s.store.Create(ctx, CollectionUserItems, map[string]any{
			"user": userID, "item": item.ID, "count": item.Count,
		}); err != nil {
			return 0, translate(op, err)
		}
		return item.Count, nil
	}
	if err != nil {
		return 0, translate(op, err)
	}
	total := holdingFromRecord(rec).Count + item.Count
	if _, err := s.store.Update(ctx, CollectionUserItems, rec.ID, map[string]any{"count": total},
		repository.IfRevision(rec.Revision)); err != nil {
		return 0, translate(op, err)
	}
	return total, nil
}
