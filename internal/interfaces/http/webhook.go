package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"spendsync/internal/domain/item"
	"spendsync/internal/domain/refresh"
	"spendsync/internal/infrastructure/plaid"
)

const (
	webhookTypeTransactions = "TRANSACTIONS"
	webhookTypeItem         = "ITEM"

	codeSyncUpdatesAvailable  = "SYNC_UPDATES_AVAILABLE"
	codeItemError             = "ERROR"
	codePendingExpiration     = "PENDING_EXPIRATION"
	codeUserPermissionRevoked = "USER_PERMISSION_REVOKED"
)

type ItemRefresher interface {
	RequestItemRefresh(ctx context.Context, plaidItemID string) (*refresh.RefreshResult, error)
}

type ItemStore interface {
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error)
	UpdateStatus(ctx context.Context, id int64, status item.Status) error
	Deactivate(ctx context.Context, id int64) error
}

// WebhookPayload is the subset of Plaid webhook bodies the server acts on.
type WebhookPayload struct {
	WebhookType string       `json:"webhook_type"`
	WebhookCode string       `json:"webhook_code"`
	ItemID      string       `json:"item_id"`
	Error       *plaid.Error `json:"error,omitempty"`
}

type WebhookHandler struct {
	refresher ItemRefresher
	items     ItemStore
	log       *zap.SugaredLogger
}

func NewWebhookHandler(refresher ItemRefresher, items ItemStore, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{refresher: refresher, items: items, log: log}
}

// HandlePlaid acknowledges every well-formed webhook with 200 so the provider
// does not redeliver it. Unknown items and codes are logged and ignored.
func (h *WebhookHandler) HandlePlaid(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.ItemID == "" {
		http.Error(w, "item_id is required", http.StatusBadRequest)
		return
	}

	log := h.log.With("webhookType", payload.WebhookType, "webhookCode", payload.WebhookCode, "plaidItemId", payload.ItemID)

	var err error
	switch {
	case payload.WebhookType == webhookTypeTransactions && payload.WebhookCode == codeSyncUpdatesAvailable:
		err = h.handleSyncUpdates(r.Context(), log, payload.ItemID)
	case payload.WebhookType == webhookTypeItem:
		err = h.handleItemEvent(r.Context(), log, payload)
	default:
		log.Debugw("Ignoring webhook")
	}

	if err != nil {
		log.Errorw("Error handling webhook", "error", err)
		http.Error(w, "Failed to handle webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) handleSyncUpdates(ctx context.Context, log *zap.SugaredLogger, plaidItemID string) error {
	res, err := h.refresher.RequestItemRefresh(ctx, plaidItemID)
	if errors.Is(err, item.ErrItemNotFound) {
		log.Warnw("Webhook for unknown item")
		return nil
	}
	if err != nil {
		return err
	}
	log.Infow("Webhook refresh requested", "queued", res.Success, "message", res.Message)
	return nil
}

func (h *WebhookHandler) handleItemEvent(ctx context.Context, log *zap.SugaredLogger, payload WebhookPayload) error {
	it, err := h.items.GetByPlaidItemID(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if it == nil {
		log.Warnw("Webhook for unknown item")
		return nil
	}

	switch payload.WebhookCode {
	case codeItemError:
		if payload.Error == nil || payload.Error.ErrorCode != plaid.CodeItemLoginRequired {
			log.Infow("Item error without action", "error", payload.Error)
			return nil
		}
		fallthrough
	case codePendingExpiration:
		log.Infow("Marking item bad")
		return h.items.UpdateStatus(ctx, it.ID, item.StatusBad)
	case codeUserPermissionRevoked:
		log.Infow("Deactivating revoked item")
		return h.items.Deactivate(ctx, it.ID)
	default:
		log.Debugw("Ignoring item webhook")
		return nil
	}
}
