package plaid

import (
	"context"
)

// ClientInterface defines the provider calls the sync engine depends on.
type ClientInterface interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error)
}
