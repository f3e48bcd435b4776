package plaidsync

import (
	"context"
	"fmt"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/transaction"
	"spendsync/internal/infrastructure/plaid"
)

// Writer is the set of writes one sync pass performs.
type Writer interface {
	UpsertAccounts(ctx context.Context, params []account.UpsertParams) error
	UpsertTransactions(ctx context.Context, params []transaction.UpsertParams) error
	DeleteTransactions(ctx context.Context, plaidTransactionIDs []string) (int64, error)
	UpdateTransactionsCursor(ctx context.Context, itemID int64, cursor string) error
}

// UnitOfWork runs fn atomically: either every write made through the Writer
// is kept or none is.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
}

// Result counts the records a pass applied.
type Result struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
}

type ReconcileInput struct {
	ItemID   int64
	Added    []plaid.Transaction
	Modified []plaid.Transaction
	Removed  []string
	Cursor   string
	Accounts []plaid.Account
}

// Reconciler applies a fetched delta. Every write is keyed by a provider ID,
// so replaying the same input leaves the same state.
type Reconciler struct {
	uow UnitOfWork
}

func NewReconciler(uow UnitOfWork) *Reconciler {
	return &Reconciler{uow: uow}
}

// Apply writes accounts, then transactions, then deletions, then the cursor,
// all in one unit of work.
func (r *Reconciler) Apply(ctx context.Context, in ReconcileInput) (*Result, error) {
	accounts := toAccountParams(in.ItemID, in.Accounts)

	upserts, err := toTransactionParams(append(append([]plaid.Transaction{}, in.Added...), in.Modified...))
	if err != nil {
		return nil, err
	}

	err = r.uow.RunInTx(ctx, func(ctx context.Context, w Writer) error {
		if err := w.UpsertAccounts(ctx, accounts); err != nil {
			return fmt.Errorf("upsert accounts: %w", err)
		}
		if err := w.UpsertTransactions(ctx, upserts); err != nil {
			return fmt.Errorf("upsert transactions: %w", err)
		}
		if _, err := w.DeleteTransactions(ctx, in.Removed); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if err := w.UpdateTransactionsCursor(ctx, in.ItemID, in.Cursor); err != nil {
			return fmt.Errorf("update cursor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Added:    len(in.Added),
		Modified: len(in.Modified),
		Removed:  len(in.Removed),
	}, nil
}
