package transaction

import (
	"context"
	"time"
)

type Repository interface {
	// Upsert inserts or updates transactions keyed by their Plaid transaction ID.
	Upsert(ctx context.Context, params []UpsertParams) error

	// DeleteByPlaidIDs removes transactions and reports how many existed.
	DeleteByPlaidIDs(ctx context.Context, plaidTransactionIDs []string) (int64, error)

	ListByUserID(ctx context.Context, userID int64, since time.Time, limit int) ([]*Transaction, error)
}
