package http

import (
	"context"
	"net/http"
	"time"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/item"
	"spendsync/internal/domain/refresh"
	"spendsync/internal/domain/transaction"
	"spendsync/internal/shared/middleware"
)

type MockRefreshService struct {
	RequestManualRefreshFunc         func(ctx context.Context, userID int64) (*refresh.RefreshResult, error)
	RequestManualRefreshAllUsersFunc func(ctx context.Context) (*refresh.FanOutSummary, error)
	GetRefreshStatusFunc             func(ctx context.Context, userID int64) (*refresh.RefreshStatus, error)
	RequestItemRefreshFunc           func(ctx context.Context, plaidItemID string) (*refresh.RefreshResult, error)
}

func (m *MockRefreshService) RequestManualRefresh(ctx context.Context, userID int64) (*refresh.RefreshResult, error) {
	if m.RequestManualRefreshFunc != nil {
		return m.RequestManualRefreshFunc(ctx, userID)
	}
	return &refresh.RefreshResult{Success: true}, nil
}

func (m *MockRefreshService) RequestManualRefreshAllUsers(ctx context.Context) (*refresh.FanOutSummary, error) {
	if m.RequestManualRefreshAllUsersFunc != nil {
		return m.RequestManualRefreshAllUsersFunc(ctx)
	}
	return &refresh.FanOutSummary{}, nil
}

func (m *MockRefreshService) GetRefreshStatus(ctx context.Context, userID int64) (*refresh.RefreshStatus, error) {
	if m.GetRefreshStatusFunc != nil {
		return m.GetRefreshStatusFunc(ctx, userID)
	}
	return &refresh.RefreshStatus{Status: refresh.StatusNeverRun}, nil
}

func (m *MockRefreshService) RequestItemRefresh(ctx context.Context, plaidItemID string) (*refresh.RefreshResult, error) {
	if m.RequestItemRefreshFunc != nil {
		return m.RequestItemRefreshFunc(ctx, plaidItemID)
	}
	return &refresh.RefreshResult{Success: true}, nil
}

type MockItemRepo struct {
	GetByPlaidItemIDFunc func(ctx context.Context, plaidItemID string) (*item.Item, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*item.Item, error)
	UpdateStatusFunc     func(ctx context.Context, id int64, status item.Status) error
	DeactivateFunc       func(ctx context.Context, id int64) error
}

func (m *MockItemRepo) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	if m.GetByPlaidItemIDFunc != nil {
		return m.GetByPlaidItemIDFunc(ctx, plaidItemID)
	}
	return nil, nil
}

func (m *MockItemRepo) ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockItemRepo) UpdateStatus(ctx context.Context, id int64, status item.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockItemRepo) Deactivate(ctx context.Context, id int64) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil
}

type MockAccountRepo struct {
	ListByItemIDFunc func(ctx context.Context, itemID int64) ([]*account.Account, error)
}

func (m *MockAccountRepo) ListByItemID(ctx context.Context, itemID int64) ([]*account.Account, error) {
	if m.ListByItemIDFunc != nil {
		return m.ListByItemIDFunc(ctx, itemID)
	}
	return nil, nil
}

type MockTransactionRepo struct {
	ListByUserIDFunc func(ctx context.Context, userID int64, since time.Time, limit int) ([]*transaction.Transaction, error)
}

func (m *MockTransactionRepo) ListByUserID(ctx context.Context, userID int64, since time.Time, limit int) ([]*transaction.Transaction, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, since, limit)
	}
	return nil, nil
}

type MockPinger struct {
	Err error
}

func (m *MockPinger) PingContext(ctx context.Context) error { return m.Err }

var (
	_ RefreshService    = (*MockRefreshService)(nil)
	_ ItemRefresher     = (*MockRefreshService)(nil)
	_ ItemStore         = (*MockItemRepo)(nil)
	_ ItemLister        = (*MockItemRepo)(nil)
	_ AccountLister     = (*MockAccountRepo)(nil)
	_ TransactionLister = (*MockTransactionRepo)(nil)
)

func withUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}
