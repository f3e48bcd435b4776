package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"spendsync/internal/domain/transaction"
	"spendsync/internal/shared/middleware"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

type TransactionLister interface {
	ListByUserID(ctx context.Context, userID int64, since time.Time, limit int) ([]*transaction.Transaction, error)
}

type TransactionHandler struct {
	transactions TransactionLister
	log          *zap.SugaredLogger
}

func NewTransactionHandler(transactions TransactionLister, log *zap.SugaredLogger) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, log: log}
}

// HandleListTransactions returns the caller's synced transactions, newest
// first. Optional query parameters: since (YYYY-MM-DD) and limit.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			http.Error(w, "Invalid since format (use YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	limit := defaultTransactionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = min(parsed, maxTransactionLimit)
		}
	}

	txs, err := h.transactions.ListByUserID(r.Context(), userID, since, limit)
	if err != nil {
		h.log.Errorw("Error listing transactions", "userId", userID, "error", err)
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*transaction.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}
