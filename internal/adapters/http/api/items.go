package api

import (
	"context"
	"net/http"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
)

// StoreDependencies defines the item ledger operations.
type StoreDependencies interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	ItemsForUser(ctx context.Context, userID string) ([]model.ItemOffer, error)
	Purchase(ctx context.Context, userID, itemName string) (model.PurchaseResult, error)
	UseItem(ctx context.Context, userID, itemName string) (int, error)
}

// StoreHandler handles /store requests.
type StoreHandler struct {
	deps   StoreDependencies
	logger logger.Logger
}

// NewStoreHandler creates a new item store handler.
func NewStoreHandler(deps StoreDependencies, log logger.Logger) *StoreHandler {
	return &StoreHandler{deps: deps, logger: log}
}

type itemRequest struct {
	ItemName string `json:"itemName"`
}

type purchaseResponse struct {
	Msg string `json:"msg"`
	model.PurchaseResult
}

type useItemResponse struct {
	Msg            string `json:"msg"`
	RemainingCount int    `json:"remainingCount"`
}

// HandleListItems handles GET /store/items.
func (h *StoreHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_items"
	items, err := h.deps.ListItems(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleItemsForUser handles GET /store/items/me.
func (h *StoreHandler) HandleItemsForUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.items_for_user"
	offers, err := h.deps.ItemsForUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

// HandlePurchase handles POST /store/purchase.
func (h *StoreHandler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	const op = "api.purchase"
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	res, err := h.deps.Purchase(r.Context(), UserID(r.Context()), req.ItemName)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseResponse{Msg: "Item purchased successfully.", PurchaseResult: res})
}

// HandleUseItem handles POST /store/use-item.
func (h *StoreHandler) HandleUseItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.use_item"
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	remaining, err := h.deps.UseItem(r.Context(), UserID(r.Context()), req.ItemName)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, useItemResponse{Msg: "Item used successfully.", RemainingCount: remaining})
}
