/*
Package monitor provides the cross-account monitoring feeds.

PURPOSE:
  Two ops-facing monitors built on the reconciliation core:
  - Removals monitor: scans every account's timeline for products that a
    later request dropped, grouped by the (account, request) that did
    the dropping. Feeds the "products removed" dashboard panel.
  - Expiry monitor: classification of expiring coverage per account and
    window, backed by the persisted expiration cache so the dashboard
    doesn't recompute on every page load.

DEGRADATION:
  A scan covers many accounts; one account that cannot be analyzed
  (corrupt history, unorderable snapshots) becomes a NotAvailable entry
  in the scan result instead of failing the batch.

SEE ALSO:
  - entitlement/diff.go: The removal classification
  - entitlement/provider.go: ExpirationCache boundary
  - api/scheduler.go: Batch refresh driving the cache
*/
package monitor

import (
	"context"

	"github.com/meridian/deploy-assistant/entitlement"
)

// =============================================================================
// REMOVAL EVENTS
// =============================================================================

// RemovalEvent is one request dropping one or more products: the unit of
// the removals feed, grouped by (account, removing request).
type RemovalEvent struct {
	AccountID entitlement.AccountID

	// Request is the snapshot in which the products no longer appear.
	Request entitlement.SnapshotRef

	// Previous is the last snapshot that still contained them.
	Previous entitlement.SnapshotRef

	// Removed carries the dropped products with their last known coverage.
	Removed []entitlement.RolledUpEntitlement
}

// NotAvailable marks an account the scan could not analyze.
type NotAvailable struct {
	AccountID entitlement.AccountID
	Reason    string
}

// ScanResult is one removals sweep across all accounts.
type ScanResult struct {
	Events       []RemovalEvent
	NotAvailable []NotAvailable
}

// =============================================================================
// REMOVALS MONITOR
// =============================================================================

// RemovalsMonitor derives the removal feed from snapshot history.
type RemovalsMonitor struct {
	Provider   entitlement.SnapshotProvider
	Normalizer *entitlement.Normalizer
}

func NewRemovalsMonitor(provider entitlement.SnapshotProvider) *RemovalsMonitor {
	return &RemovalsMonitor{Provider: provider, Normalizer: entitlement.NewNormalizer()}
}

// Scan walks every account and collects removal events in timeline
// order. Context cancellation is honored between accounts.
func (m *RemovalsMonitor) Scan(ctx context.Context) (*ScanResult, error) {
	accounts, err := m.Provider.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}
	for _, accountID := range accounts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, scanErr := m.ScanAccount(ctx, accountID)
		if scanErr != nil {
			result.NotAvailable = append(result.NotAvailable, NotAvailable{
				AccountID: accountID,
				Reason:    scanErr.Error(),
			})
			continue
		}
		result.Events = append(result.Events, events...)
	}
	return result, nil
}

// ScanAccount collects the removal events of a single account.
func (m *RemovalsMonitor) ScanAccount(ctx context.Context, accountID entitlement.AccountID) ([]RemovalEvent, error) {
	snaps, err := m.Provider.GetSnapshotsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, entitlement.ErrAccountNotFound
	}

	tl := entitlement.BuildTimeline(accountID, snaps, m.Normalizer)
	diffs, err := tl.Diffs()
	if err != nil {
		return nil, err
	}

	var events []RemovalEvent
	for _, d := range diffs {
		if !d.HasRemovals() {
			continue
		}
		events = append(events, RemovalEvent{
			AccountID: accountID,
			Request:   d.Current,
			Previous:  d.Previous,
			Removed:   d.Removed,
		})
	}
	return events, nil
}
