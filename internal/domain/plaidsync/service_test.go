package plaidsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spendsync/internal/infrastructure/plaid"
)

func TestSyncItem_FirstSync(t *testing.T) {
	store := newMemStore(testItem(nil))
	client := pagedClient(map[string]page{
		"": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx1", "12.00"), testTx("tx2", "8.50")},
			NextCursor: "c1",
			HasMore:    false,
		}},
	})
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	res, err := svc.SyncItem(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, &Result{Added: 2}, res)
	assert.ElementsMatch(t, []string{"tx1", "tx2"}, store.transactionIDs())
	require.NotNil(t, store.cursor("item-1"))
	assert.Equal(t, "c1", *store.cursor("item-1"))
}

func TestSyncItem_InterruptedFetchPersistsNothing(t *testing.T) {
	store := newMemStore(testItem(strPtr("c1")))
	accountsCalled := false
	client := pagedClient(map[string]page{
		"c1": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx3", "1.00")},
			NextCursor: "c2",
			HasMore:    true,
		}},
		"c2": {err: errNetwork},
	})
	client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		accountsCalled = true
		return nil, errors.New("should not be called")
	}
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	res, err := svc.SyncItem(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, &Result{}, res)
	assert.False(t, accountsCalled)
	assert.Empty(t, store.transactionIDs())
	assert.Equal(t, "c1", *store.cursor("item-1"))
}

func TestSyncItem_RemovedDeletesStoredTransaction(t *testing.T) {
	store := newMemStore(testItem(nil))
	client := pagedClient(map[string]page{
		"": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx1", "12.00"), testTx("tx2", "8.50")},
			NextCursor: "c1",
		}},
		"c1": {resp: &plaid.SyncResponse{
			Removed:    []plaid.RemovedTransaction{{TransactionID: "tx1", AccountID: "acc1"}},
			NextCursor: "c2",
		}},
	})
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	_, err := svc.SyncItem(context.Background(), "item-1")
	require.NoError(t, err)

	res, err := svc.SyncItem(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, &Result{Removed: 1}, res)
	assert.Equal(t, []string{"tx2"}, store.transactionIDs())
	assert.Equal(t, "c2", *store.cursor("item-1"))
}

func TestSyncItem_ItemNotFound(t *testing.T) {
	store := newMemStore()
	client := &MockClient{}
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	res, err := svc.SyncItem(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
	assert.Empty(t, client.requestedCursors())
}

func TestSyncItem_AccountSnapshotErrorPropagates(t *testing.T) {
	store := newMemStore(testItem(strPtr("c1")))
	client := pagedClient(map[string]page{
		"c1": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx1", "1.00")},
			NextCursor: "c2",
		}},
	})
	client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		return nil, &plaid.Error{ErrorCode: "INTERNAL_SERVER_ERROR", StatusCode: 500}
	}
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	_, err := svc.SyncItem(context.Background(), "item-1")
	require.Error(t, err)
	assert.True(t, plaid.IsErrorCode(err, "INTERNAL_SERVER_ERROR"))
	assert.Equal(t, "c1", *store.cursor("item-1"), "cursor must not advance without accounts")
	assert.Empty(t, store.transactionIDs())
}

func TestSyncItem_ReconcileErrorPropagates(t *testing.T) {
	store := newMemStore(testItem(nil))
	store.failOn = "transactions"
	client := pagedClient(map[string]page{
		"": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx1", "1.00")},
			NextCursor: "c1",
		}},
	})
	svc := NewService(client, store, store, zap.NewNop().Sugar())

	_, err := svc.SyncItem(context.Background(), "item-1")
	assert.Error(t, err)
	assert.Nil(t, store.cursor("item-1"))
}

func TestSyncItem_StoreErrorPropagates(t *testing.T) {
	store := newMemStore(testItem(nil))
	store.getErr = errors.New("connection refused")
	svc := NewService(&MockClient{}, store, store, zap.NewNop().Sugar())

	_, err := svc.SyncItem(context.Background(), "item-1")
	assert.Error(t, err)
}
