package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"spendsync/internal/domain/refresh"
	"spendsync/internal/shared/middleware"
)

// RefreshService is the part of refresh.Service the handlers use.
type RefreshService interface {
	RequestManualRefresh(ctx context.Context, userID int64) (*refresh.RefreshResult, error)
	RequestManualRefreshAllUsers(ctx context.Context) (*refresh.FanOutSummary, error)
	GetRefreshStatus(ctx context.Context, userID int64) (*refresh.RefreshStatus, error)
}

type RefreshHandler struct {
	service RefreshService
	log     *zap.SugaredLogger
}

func NewRefreshHandler(service RefreshService, log *zap.SugaredLogger) *RefreshHandler {
	return &RefreshHandler{service: service, log: log}
}

// HandleRefresh queues a refresh for the caller. A refresh that is already
// running is reported with 409 and the in-progress message.
func (h *RefreshHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	res, err := h.service.RequestManualRefresh(r.Context(), userID)
	if err != nil {
		h.log.Errorw("Error requesting refresh", "userId", userID, "error", err)
		http.Error(w, "Failed to start refresh", http.StatusInternalServerError)
		return
	}

	if !res.Success {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *RefreshHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.service.GetRefreshStatus(r.Context(), userID)
	if err != nil {
		h.log.Errorw("Error getting refresh status", "userId", userID, "error", err)
		http.Error(w, "Failed to get refresh status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleRefreshAll queues a manual refresh for every user. Admin only.
func (h *RefreshHandler) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RequestManualRefreshAllUsers(r.Context())
	if err != nil {
		h.log.Errorw("Error requesting refresh for all users", "error", err)
		http.Error(w, "Failed to start refresh", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, summary)
}
