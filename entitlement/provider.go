/*
provider.go - Collaborator boundaries for snapshot input and cached output

PURPOSE:
  Defines the interfaces between the reconciliation core and its external
  collaborators. The core consumes ordered snapshot history from a
  SnapshotProvider and hands derived results to an ExpirationCache; both
  are in-process function boundaries, not network contracts.

OWNERSHIP:
  The snapshot store is owned by the capture/ingestion collaborator; the
  core treats it as read-only input. Cached expiration results are owned
  by the caching collaborator and invalidated on re-analysis.

IMPLEMENTATIONS:
  - store/sqlite: Production store (snapshots + caches + run records)
  - entitlement/store: In-memory store for testing/dev

SEE ALSO:
  - timeline.go: Consumes SnapshotProvider
  - store/sqlite/sqlite.go: Concrete implementation
*/
package entitlement

import (
	"context"
	"time"
)

// =============================================================================
// SNAPSHOT PROVIDER - Read side of the capture collaborator
// =============================================================================

// SnapshotProvider supplies an account's snapshot history. Implementations
// must return snapshots ascending by timestamp (ties by request id);
// BuildTimeline re-establishes the order defensively either way.
type SnapshotProvider interface {
	// GetSnapshotsForAccount returns the full ordered history for an account.
	// An unknown account returns an empty slice, not an error.
	GetSnapshotsForAccount(ctx context.Context, accountID AccountID) ([]Snapshot, error)

	// ListAccounts returns every account with at least one snapshot.
	ListAccounts(ctx context.Context) ([]AccountID, error)
}

// SnapshotStore extends SnapshotProvider with the capture write path.
type SnapshotStore interface {
	SnapshotProvider

	// SaveSnapshot persists one captured snapshot.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// =============================================================================
// EXPIRATION CACHE - Persisted classification results per (account, window)
// =============================================================================

// CachedExpirations is one cache entry: the classification for an
// account at a given window, stamped with its computation time.
type CachedExpirations struct {
	AccountID  AccountID
	WindowDays int
	ComputedAt time.Time
	Records    []ExpirationRecord
}

// ExpirationCache persists classification results. Entries are replaced
// wholesale on re-analysis; there is no partial update.
type ExpirationCache interface {
	// PutExpirations stores (replacing) the entry for (account, window).
	PutExpirations(ctx context.Context, entry CachedExpirations) error

	// GetExpirations returns the entry for (account, window), or nil when
	// no cached result exists.
	GetExpirations(ctx context.Context, accountID AccountID, windowDays int) (*CachedExpirations, error)

	// InvalidateExpirations drops all cached windows for an account.
	InvalidateExpirations(ctx context.Context, accountID AccountID) error
}
