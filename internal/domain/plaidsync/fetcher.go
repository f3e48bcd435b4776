package plaidsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"spendsync/internal/domain/item"
	"spendsync/internal/infrastructure/plaid"
)

// maxPaginationRestarts bounds how often a pass restarts after the provider
// reports the item changed mid-pagination.
const maxPaginationRestarts = 3

// ItemReader is the part of the cursor store the sync engine reads.
type ItemReader interface {
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error)
	UpdateStatus(ctx context.Context, id int64, status item.Status) error
}

// Delta is everything fetched for one item since its stored cursor.
//
// When Err is set the fetch was interrupted: Added, Modified and Removed hold
// what the pages before the failure returned, and Cursor is the cursor the
// failing page was requested with.
type Delta struct {
	ItemID      int64
	UserID      int64
	PlaidItemID string
	AccessToken string

	Added    []plaid.Transaction
	Modified []plaid.Transaction
	Removed  []string

	StartCursor string
	Cursor      string
	Pages       int
	Err         error
}

// Found reports whether the item existed. A missing item yields an empty
// access token and the caller must abort the pass.
func (d *Delta) Found() bool {
	return d.AccessToken != ""
}

func (d *Delta) Interrupted() bool {
	return d.Err != nil
}

func (d *Delta) reset() {
	d.Added = nil
	d.Modified = nil
	d.Removed = nil
	d.Cursor = d.StartCursor
	d.Pages = 0
}

// Fetcher pages through the provider's transaction change stream.
type Fetcher struct {
	client plaid.ClientInterface
	items  ItemReader
	log    *zap.SugaredLogger
}

func NewFetcher(client plaid.ClientInterface, items ItemReader, log *zap.SugaredLogger) *Fetcher {
	return &Fetcher{client: client, items: items, log: log}
}

// Fetch collects all changes for the item since its stored cursor. Provider
// failures never surface as an error; they are reported through Delta.Err.
// The returned error is reserved for cursor store failures.
func (f *Fetcher) Fetch(ctx context.Context, plaidItemID string) (*Delta, error) {
	it, err := f.items.GetByPlaidItemID(ctx, plaidItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", plaidItemID, err)
	}
	if it == nil {
		return &Delta{PlaidItemID: plaidItemID}, nil
	}

	delta := &Delta{
		ItemID:      it.ID,
		UserID:      it.UserID,
		PlaidItemID: it.PlaidItemID,
		AccessToken: it.AccessToken,
		StartCursor: it.Cursor(),
	}

	for restarts := 0; ; restarts++ {
		delta.reset()
		err := f.paginate(ctx, delta)
		if err == nil {
			return delta, nil
		}

		if plaid.IsErrorCode(err, plaid.CodeMutationDuringPagination) && restarts < maxPaginationRestarts {
			f.log.Warnw("Item changed during pagination, restarting",
				"plaidItemId", plaidItemID, "restart", restarts+1)
			continue
		}

		if plaid.IsErrorCode(err, plaid.CodeItemLoginRequired) {
			if err := f.items.UpdateStatus(ctx, it.ID, item.StatusBad); err != nil {
				f.log.Errorw("Failed to mark item bad", "plaidItemId", plaidItemID, "error", err)
			}
		}

		syncPages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		f.log.Warnw("Transaction fetch interrupted",
			"plaidItemId", plaidItemID, "pages", delta.Pages, "cursor", delta.Cursor, "error", err)
		delta.Err = err
		return delta, nil
	}
}

func (f *Fetcher) paginate(ctx context.Context, delta *Delta) error {
	for {
		// The cursor is only advanced once a page has fully arrived.
		page, err := f.client.SyncTransactions(ctx, delta.AccessToken, delta.Cursor)
		if err != nil {
			return err
		}

		delta.Added = append(delta.Added, page.Added...)
		delta.Modified = append(delta.Modified, page.Modified...)
		for _, r := range page.Removed {
			delta.Removed = append(delta.Removed, r.TransactionID)
		}
		delta.Cursor = page.NextCursor
		delta.Pages++
		syncPages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))

		if !page.HasMore {
			return nil
		}
	}
}
