package plaidsync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/item"
	"spendsync/internal/domain/transaction"
	"spendsync/internal/infrastructure/plaid"
)

var errNetwork = errors.New("connection reset by peer")

type MockClient struct {
	SyncTransactionsFunc func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error)
	GetAccountsFunc      func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)

	mu      sync.Mutex
	cursors []string
}

func (m *MockClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error) {
	m.mu.Lock()
	m.cursors = append(m.cursors, cursor)
	m.mu.Unlock()
	if m.SyncTransactionsFunc != nil {
		return m.SyncTransactionsFunc(ctx, accessToken, cursor)
	}
	return &plaid.SyncResponse{NextCursor: cursor}, nil
}

func (m *MockClient) GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, accessToken)
	}
	return &plaid.AccountsResponse{Accounts: []plaid.Account{testAccount("acc1")}}, nil
}

func (m *MockClient) requestedCursors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cursors...)
}

// page is one scripted provider response keyed by the cursor it answers.
type page struct {
	resp *plaid.SyncResponse
	err  error
}

func pagedClient(pages map[string]page) *MockClient {
	return &MockClient{
		SyncTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error) {
			p, ok := pages[cursor]
			if !ok {
				return nil, fmt.Errorf("unexpected cursor %q", cursor)
			}
			return p.resp, p.err
		},
	}
}

// memStore is an in-memory cursor store and unit of work. Writes made inside
// RunInTx are staged and only become visible when fn succeeds.
type memStore struct {
	mu           sync.Mutex
	items        map[string]*item.Item
	accounts     map[string]account.UpsertParams
	transactions map[string]transaction.UpsertParams

	getErr error
	failOn string
}

func newMemStore(items ...*item.Item) *memStore {
	s := &memStore{
		items:        map[string]*item.Item{},
		accounts:     map[string]account.UpsertParams{},
		transactions: map[string]transaction.UpsertParams{},
	}
	for _, it := range items {
		s.items[it.PlaidItemID] = it
	}
	return s
}

func (s *memStore) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	it, ok := s.items[plaidItemID]
	if !ok || !it.IsActive {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id int64, status item.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			it.Status = status
			return nil
		}
	}
	return item.ErrItemNotFound
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	s.mu.Lock()
	tx := &memTx{
		accounts:     maps.Clone(s.accounts),
		transactions: maps.Clone(s.transactions),
		cursors:      map[int64]string{},
		failOn:       s.failOn,
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = tx.accounts
	s.transactions = tx.transactions
	for _, it := range s.items {
		if c, ok := tx.cursors[it.ID]; ok {
			it.TransactionsCursor = &c
			it.Status = item.StatusGood
		}
	}
	return nil
}

func (s *memStore) cursor(plaidItemID string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[plaidItemID].TransactionsCursor
}

func (s *memStore) transactionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.transactions {
		ids = append(ids, id)
	}
	return ids
}

func (s *memStore) snapshot() (map[string]account.UpsertParams, map[string]transaction.UpsertParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.accounts), maps.Clone(s.transactions)
}

type memTx struct {
	accounts     map[string]account.UpsertParams
	transactions map[string]transaction.UpsertParams
	cursors      map[int64]string
	failOn       string
}

func (t *memTx) UpsertAccounts(ctx context.Context, params []account.UpsertParams) error {
	if t.failOn == "accounts" {
		return errors.New("accounts write failed")
	}
	for _, p := range params {
		t.accounts[p.PlaidAccountID] = p
	}
	return nil
}

func (t *memTx) UpsertTransactions(ctx context.Context, params []transaction.UpsertParams) error {
	if t.failOn == "transactions" {
		return errors.New("transactions write failed")
	}
	for _, p := range params {
		if _, ok := t.accounts[p.PlaidAccountID]; !ok {
			return fmt.Errorf("unknown account %s", p.PlaidAccountID)
		}
		t.transactions[p.PlaidTransactionID] = p
	}
	return nil
}

func (t *memTx) DeleteTransactions(ctx context.Context, ids []string) (int64, error) {
	if t.failOn == "delete" {
		return 0, errors.New("delete failed")
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.transactions[id]; ok {
			delete(t.transactions, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpdateTransactionsCursor(ctx context.Context, itemID int64, cursor string) error {
	if t.failOn == "cursor" {
		return errors.New("cursor write failed")
	}
	t.cursors[itemID] = cursor
	return nil
}

func strPtr(s string) *string { return &s }

func testItem(cursor *string) *item.Item {
	return &item.Item{
		ID:                 7,
		UserID:             42,
		PlaidItemID:        "item-1",
		AccessToken:        "access-sandbox-1",
		TransactionsCursor: cursor,
		Status:             item.StatusGood,
		IsActive:           true,
	}
}

func testAccount(id string) plaid.Account {
	return plaid.Account{
		AccountID: id,
		Name:      "Plaid Checking",
		Type:      "depository",
		Subtype:   strPtr("checking"),
		Balances: plaid.Balances{
			Current:         decimal.NewNullDecimal(decimal.RequireFromString("110")),
			ISOCurrencyCode: strPtr("USD"),
		},
	}
}

func testTx(id, amount string) plaid.Transaction {
	return plaid.Transaction{
		TransactionID:   id,
		AccountID:       "acc1",
		Amount:          decimal.RequireFromString(amount),
		ISOCurrencyCode: strPtr("USD"),
		DateString:      "2024-03-01",
		Name:            "Purchase " + id,
		PaymentChannel:  "online",
		PersonalFinanceCategory: &plaid.PersonalFinanceCategory{
			Primary:  "GENERAL_MERCHANDISE",
			Detailed: "GENERAL_MERCHANDISE_ONLINE_MARKETPLACES",
		},
	}
}
