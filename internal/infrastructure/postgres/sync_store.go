package postgres

import (
	"context"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/plaidsync"
	"spendsync/internal/domain/transaction"
)

// SyncStore applies sync passes inside a single database transaction.
type SyncStore struct {
	db     *DB
	cipher TokenCipher
}

var _ plaidsync.UnitOfWork = (*SyncStore)(nil)

func NewSyncStore(db *DB, cipher TokenCipher) *SyncStore {
	return &SyncStore{db: db, cipher: cipher}
}

func (s *SyncStore) RunInTx(ctx context.Context, fn func(ctx context.Context, w plaidsync.Writer) error) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, &syncWriter{
			accounts:     NewAccountRepository(tx),
			transactions: NewTransactionRepository(tx),
			items:        NewItemRepository(tx, s.cipher),
		})
	})
}

type syncWriter struct {
	accounts     *AccountRepository
	transactions *TransactionRepository
	items        *ItemRepository
}

func (w *syncWriter) UpsertAccounts(ctx context.Context, params []account.UpsertParams) error {
	return w.accounts.Upsert(ctx, params)
}

func (w *syncWriter) UpsertTransactions(ctx context.Context, params []transaction.UpsertParams) error {
	return w.transactions.Upsert(ctx, params)
}

func (w *syncWriter) DeleteTransactions(ctx context.Context, plaidTransactionIDs []string) (int64, error) {
	return w.transactions.DeleteByPlaidIDs(ctx, plaidTransactionIDs)
}

func (w *syncWriter) UpdateTransactionsCursor(ctx context.Context, itemID int64, cursor string) error {
	return w.items.UpdateTransactionsCursor(ctx, itemID, cursor)
}
