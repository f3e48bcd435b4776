package plaidsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spendsync/internal/domain/item"
	"spendsync/internal/infrastructure/plaid"
)

func TestFetcher_AccumulatesAllPages(t *testing.T) {
	client := pagedClient(map[string]page{
		"": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx1", "1.00")},
			NextCursor: "c1",
			HasMore:    true,
		}},
		"c1": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx2", "2.00")},
			Modified:   []plaid.Transaction{testTx("tx0", "3.00")},
			Removed:    []plaid.RemovedTransaction{{TransactionID: "tx-old"}},
			NextCursor: "c2",
			HasMore:    false,
		}},
	})
	f := NewFetcher(client, newMemStore(testItem(nil)), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.True(t, delta.Found())
	assert.False(t, delta.Interrupted())
	assert.Equal(t, "access-sandbox-1", delta.AccessToken)
	assert.Equal(t, int64(7), delta.ItemID)
	assert.Equal(t, "c2", delta.Cursor)
	assert.Equal(t, 2, delta.Pages)
	assert.Len(t, delta.Added, 2)
	assert.Len(t, delta.Modified, 1)
	assert.Equal(t, []string{"tx-old"}, delta.Removed)
	assert.Equal(t, []string{"", "c1"}, client.requestedCursors())
}

func TestFetcher_PageFailureRollsBackCursor(t *testing.T) {
	client := pagedClient(map[string]page{
		"c1": {resp: &plaid.SyncResponse{
			Added:      []plaid.Transaction{testTx("tx3", "4.00")},
			NextCursor: "c2",
			HasMore:    true,
		}},
		"c2": {err: errNetwork},
	})
	f := NewFetcher(client, newMemStore(testItem(strPtr("c1"))), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.True(t, delta.Interrupted())
	assert.ErrorIs(t, delta.Err, errNetwork)
	assert.Equal(t, "c1", delta.StartCursor)
	assert.Equal(t, "c2", delta.Cursor, "cursor must be the one the failing page was requested with")
	assert.Len(t, delta.Added, 1, "pages before the failure are still returned")
	assert.Equal(t, 1, delta.Pages)
}

func TestFetcher_FirstPageFailureKeepsStartCursor(t *testing.T) {
	client := pagedClient(map[string]page{"c1": {err: errNetwork}})
	f := NewFetcher(client, newMemStore(testItem(strPtr("c1"))), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.True(t, delta.Interrupted())
	assert.Equal(t, "c1", delta.Cursor)
	assert.Empty(t, delta.Added)
}

func TestFetcher_ItemNotFound(t *testing.T) {
	client := &MockClient{}
	f := NewFetcher(client, newMemStore(), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "missing")
	require.NoError(t, err)

	assert.False(t, delta.Found())
	assert.Empty(t, delta.AccessToken)
	assert.Empty(t, client.requestedCursors(), "provider must not be called")
}

func TestFetcher_StoreErrorReturned(t *testing.T) {
	store := newMemStore(testItem(nil))
	store.getErr = errors.New("connection refused")
	f := NewFetcher(&MockClient{}, store, zap.NewNop().Sugar())

	_, err := f.Fetch(context.Background(), "item-1")
	assert.Error(t, err)
}

func TestFetcher_MutationDuringPaginationRestarts(t *testing.T) {
	mutated := false
	client := &MockClient{
		SyncTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error) {
			switch cursor {
			case "c1":
				return &plaid.SyncResponse{
					Added:      []plaid.Transaction{testTx("tx1", "1.00")},
					NextCursor: "c2",
					HasMore:    true,
				}, nil
			case "c2":
				if !mutated {
					mutated = true
					return nil, &plaid.Error{ErrorCode: plaid.CodeMutationDuringPagination, StatusCode: 400}
				}
				return &plaid.SyncResponse{
					Added:      []plaid.Transaction{testTx("tx2", "2.00")},
					NextCursor: "c3",
				}, nil
			}
			return nil, errors.New("unexpected cursor " + cursor)
		},
	}
	f := NewFetcher(client, newMemStore(testItem(strPtr("c1"))), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.False(t, delta.Interrupted())
	assert.Equal(t, "c3", delta.Cursor)
	assert.Len(t, delta.Added, 2, "accumulation from the abandoned attempt is discarded")
	assert.Equal(t, []string{"c1", "c2", "c1", "c2"}, client.requestedCursors())
}

func TestFetcher_MutationRestartsAreBounded(t *testing.T) {
	client := &MockClient{
		SyncTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error) {
			return nil, &plaid.Error{ErrorCode: plaid.CodeMutationDuringPagination, StatusCode: 400}
		},
	}
	f := NewFetcher(client, newMemStore(testItem(nil)), zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.True(t, delta.Interrupted())
	assert.Len(t, client.requestedCursors(), maxPaginationRestarts+1)
}

func TestFetcher_LoginRequiredMarksItemBad(t *testing.T) {
	store := newMemStore(testItem(nil))
	client := &MockClient{
		SyncTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error) {
			return nil, &plaid.Error{ErrorType: "ITEM_ERROR", ErrorCode: plaid.CodeItemLoginRequired, StatusCode: 400}
		},
	}
	f := NewFetcher(client, store, zap.NewNop().Sugar())

	delta, err := f.Fetch(context.Background(), "item-1")
	require.NoError(t, err)

	assert.True(t, delta.Interrupted())
	assert.Equal(t, item.StatusBad, store.items["item-1"].Status)
}
