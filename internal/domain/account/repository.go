package account

import "context"

type Repository interface {
	// Upsert inserts or refreshes accounts keyed by their Plaid account ID.
	Upsert(ctx context.Context, params []UpsertParams) error
	ListByItemID(ctx context.Context, itemID int64) ([]*Account, error)
}
