// Package plaidsync runs incremental transaction sync passes for linked items.
package plaidsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spendsync/internal/infrastructure/plaid"
)

var (
	syncTracer     = otel.Tracer("spendsync/plaidsync")
	syncMeter      = otel.Meter("spendsync/plaidsync")
	syncPages, _   = syncMeter.Int64Counter("plaidsync.pages", metric.WithDescription("Transaction sync pages fetched by outcome"))
	syncRecords, _ = syncMeter.Int64Counter("plaidsync.records", metric.WithDescription("Transaction records applied by kind"))
	syncPasses, _  = syncMeter.Int64Counter("plaidsync.passes", metric.WithDescription("Sync passes by outcome"))
)

// Service performs one sync pass per call: fetch the delta, fetch the account
// snapshot, reconcile.
type Service struct {
	fetcher    *Fetcher
	reconciler *Reconciler
	client     plaid.ClientInterface
	log        *zap.SugaredLogger
}

func NewService(client plaid.ClientInterface, items ItemReader, uow UnitOfWork, log *zap.SugaredLogger) *Service {
	return &Service{
		fetcher:    NewFetcher(client, items, log),
		reconciler: NewReconciler(uow),
		client:     client,
		log:        log,
	}
}

// SyncItem runs a sync pass for the item with the given Plaid item ID.
//
// An unknown item and an interrupted fetch both return a zero Result and no
// error; nothing is persisted in either case. Failures fetching the account
// snapshot or writing the delta are returned.
func (s *Service) SyncItem(ctx context.Context, plaidItemID string) (res *Result, err error) {
	ctx, span := syncTracer.Start(ctx, "plaidsync.SyncItem", trace.WithAttributes(
		attribute.String("plaid.item_id", plaidItemID),
	))
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		syncPasses.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	delta, err := s.fetcher.Fetch(ctx, plaidItemID)
	if err != nil {
		return nil, err
	}

	if !delta.Found() {
		outcome = "not_found"
		s.log.Warnw("Item not found, skipping sync", "plaidItemId", plaidItemID)
		return &Result{}, nil
	}

	if delta.Interrupted() {
		outcome = "interrupted"
		s.log.Warnw("Sync pass interrupted, nothing persisted",
			"plaidItemId", plaidItemID, "resumeCursor", delta.StartCursor, "error", delta.Err)
		return &Result{}, nil
	}

	snapshot, err := s.client.GetAccounts(ctx, delta.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts for item %s: %w", plaidItemID, err)
	}

	res, err = s.reconciler.Apply(ctx, ReconcileInput{
		ItemID:   delta.ItemID,
		Added:    delta.Added,
		Modified: delta.Modified,
		Removed:  delta.Removed,
		Cursor:   delta.Cursor,
		Accounts: snapshot.Accounts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile item %s: %w", plaidItemID, err)
	}

	syncRecords.Add(ctx, int64(res.Added), metric.WithAttributes(attribute.String("kind", "added")))
	syncRecords.Add(ctx, int64(res.Modified), metric.WithAttributes(attribute.String("kind", "modified")))
	syncRecords.Add(ctx, int64(res.Removed), metric.WithAttributes(attribute.String("kind", "removed")))
	span.SetAttributes(
		attribute.Int("sync.pages", delta.Pages),
		attribute.Int("sync.added", res.Added),
		attribute.Int("sync.modified", res.Modified),
		attribute.Int("sync.removed", res.Removed),
	)

	s.log.Infow("Sync pass applied",
		"plaidItemId", plaidItemID, "pages", delta.Pages,
		"added", res.Added, "modified", res.Modified, "removed", res.Removed)

	return res, nil
}
