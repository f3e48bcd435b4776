package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/item"
	"spendsync/internal/shared/middleware"
)

type ItemLister interface {
	ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error)
}

type AccountLister interface {
	ListByItemID(ctx context.Context, itemID int64) ([]*account.Account, error)
}

type AccountHandler struct {
	items    ItemLister
	accounts AccountLister
	log      *zap.SugaredLogger
}

func NewAccountHandler(items ItemLister, accounts AccountLister, log *zap.SugaredLogger) *AccountHandler {
	return &AccountHandler{items: items, accounts: accounts, log: log}
}

// ItemAccounts groups an item's accounts with the item's link status.
type ItemAccounts struct {
	PlaidItemID string             `json:"plaidItemId"`
	Status      item.Status        `json:"status"`
	Accounts    []*account.Account `json:"accounts"`
}

// HandleListAccounts returns the caller's accounts grouped by linked item.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.items.ListByUserID(r.Context(), userID)
	if err != nil {
		h.log.Errorw("Error listing items", "userId", userID, "error", err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	response := make([]ItemAccounts, 0, len(items))
	for _, it := range items {
		accs, err := h.accounts.ListByItemID(r.Context(), it.ID)
		if err != nil {
			h.log.Errorw("Error listing accounts", "userId", userID, "itemId", it.ID, "error", err)
			http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
			return
		}
		if accs == nil {
			accs = []*account.Account{}
		}
		response = append(response, ItemAccounts{PlaidItemID: it.PlaidItemID, Status: it.Status, Accounts: accs})
	}

	writeJSON(w, http.StatusOK, response)
}
