package item

import "context"

// Repository defines data access for items. Implementations decrypt the
// access token on read.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Item, error)

	// GetByPlaidItemID returns (nil, nil) when no active item matches.
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*Item, error)

	// ListByUserID returns the user's active items.
	ListByUserID(ctx context.Context, userID int64) ([]*Item, error)

	UpdateStatus(ctx context.Context, id int64, status Status) error

	// UpdateTransactionsCursor persists the cursor reached by a sync pass and
	// marks the item good.
	UpdateTransactionsCursor(ctx context.Context, id int64, cursor string) error

	// Deactivate soft-deletes an item whose access was revoked.
	Deactivate(ctx context.Context, id int64) error
}
