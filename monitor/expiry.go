/*
expiry.go - Cached expiration monitoring per account and window

PURPOSE:
  Serves expiration classifications for the dashboard's risk panel. The
  classification itself is a pure derivation (entitlement.Classify); this
  monitor adds the persisted cache in front of it: reads hit the cache,
  a refresh recomputes and replaces the cached entry, and new snapshot
  ingestion invalidates the account.

CACHE CONTRACT:
  Only in-window classifications (at_risk, extended) are cached and
  served; products whose coverage never ends inside the window are not
  risk-panel material and are dropped before caching. Cached entries
  older than MaxAge count as misses and are recomputed on read, so a
  non-default window the scheduler never refreshes cannot be served
  stale forever.

WINDOW PRESETS:
  The UI offers 7 / 30 / 60 / 90 day lookaheads. DefaultPresets holds
  them; the factory config can override.

SEE ALSO:
  - entitlement/expiration.go: The classification
  - entitlement/provider.go: ExpirationCache boundary
  - store/sqlite: Cache persistence
*/
package monitor

import (
	"context"
	"time"

	"github.com/meridian/deploy-assistant/entitlement"
)

// DefaultPresets are the standard lookahead windows, in days.
var DefaultPresets = []int{7, 30, 60, 90}

// =============================================================================
// EXPIRY MONITOR
// =============================================================================

// ExpiryMonitor serves and maintains cached expiration classifications.
type ExpiryMonitor struct {
	Provider   entitlement.SnapshotProvider
	Cache      entitlement.ExpirationCache
	Normalizer *entitlement.Normalizer

	// MaxAge bounds how old a cached entry may be before a read
	// recomputes it. Zero or negative disables the bound.
	MaxAge time.Duration

	// Today is injectable for tests; defaults to the UTC calendar day.
	Today func() entitlement.Date
}

func NewExpiryMonitor(provider entitlement.SnapshotProvider, cache entitlement.ExpirationCache) *ExpiryMonitor {
	return &ExpiryMonitor{
		Provider:   provider,
		Cache:      cache,
		Normalizer: entitlement.NewNormalizer(),
		MaxAge:     1 * time.Hour,
		Today:      func() entitlement.Date { return entitlement.Today() },
	}
}

// Check returns the classification for (account, window), computing and
// caching it when no fresh cached entry exists.
func (m *ExpiryMonitor) Check(ctx context.Context, accountID entitlement.AccountID, windowDays int) (*entitlement.CachedExpirations, error) {
	cached, err := m.Cache.GetExpirations(ctx, accountID, windowDays)
	if err != nil {
		return nil, err
	}
	if cached != nil && !m.stale(cached) {
		return cached, nil
	}
	return m.Refresh(ctx, accountID, windowDays)
}

func (m *ExpiryMonitor) stale(entry *entitlement.CachedExpirations) bool {
	return m.MaxAge > 0 && time.Since(entry.ComputedAt) > m.MaxAge
}

// Refresh recomputes the classification for (account, window) and
// replaces the cached entry.
func (m *ExpiryMonitor) Refresh(ctx context.Context, accountID entitlement.AccountID, windowDays int) (*entitlement.CachedExpirations, error) {
	snaps, err := m.Provider.GetSnapshotsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, entitlement.ErrAccountNotFound
	}

	tl := entitlement.BuildTimeline(accountID, snaps, m.Normalizer)
	classified, err := entitlement.Classify(tl, m.Today(), windowDays)
	if err != nil {
		return nil, err
	}

	// The risk panel shows expiring coverage only; non-expiring products
	// are dropped before caching.
	records := make([]entitlement.ExpirationRecord, 0, len(classified))
	for _, r := range classified {
		if r.Status == entitlement.StatusNotApplicable {
			continue
		}
		records = append(records, r)
	}

	entry := entitlement.CachedExpirations{
		AccountID:  accountID,
		WindowDays: windowDays,
		ComputedAt: time.Now().UTC(),
		Records:    records,
	}
	if err := m.Cache.PutExpirations(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Invalidate drops every cached window for an account. Called after
// snapshot ingestion.
func (m *ExpiryMonitor) Invalidate(ctx context.Context, accountID entitlement.AccountID) error {
	return m.Cache.InvalidateExpirations(ctx, accountID)
}

// Groups returns the request-level risk groups for a cached entry.
func Groups(entry *entitlement.CachedExpirations) []entitlement.ExpirationGroup {
	if entry == nil {
		return nil
	}
	return entitlement.GroupExpirations(entry.Records)
}
