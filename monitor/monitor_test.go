package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/deploy-assistant/entitlement"
	"github.com/meridian/deploy-assistant/entitlement/store"
)

func seed(t *testing.T, mem *store.Memory, account, id, reqID string, ts time.Time, payload string) {
	t.Helper()
	err := mem.SaveSnapshot(context.Background(), entitlement.Snapshot{
		ID:          id,
		AccountID:   entitlement.AccountID(account),
		RequestID:   entitlement.RequestID(reqID),
		RequestName: "PS-" + reqID,
		RequestType: entitlement.RequestUpdate,
		Timestamp:   ts,
		RawPayload:  []byte(payload),
	})
	require.NoError(t, err)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// REMOVALS MONITOR
// =============================================================================

func TestRemovalsMonitor_ScanGroupsByRemovingRequest(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "acct-1", "s1", "1001", day(2025, time.January, 1),
		`{"apps": [{"code": "A-1"}, {"code": "A-2"}]}`)
	seed(t, mem, "acct-1", "s2", "1002", day(2025, time.February, 1),
		`{"apps": [{"code": "A-1"}]}`)
	seed(t, mem, "acct-2", "s3", "2001", day(2025, time.January, 1),
		`{"models": [{"code": "M-1"}]}`)

	result, err := NewRemovalsMonitor(mem).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Events, 1, "only acct-1 dropped anything")
	ev := result.Events[0]
	assert.Equal(t, entitlement.AccountID("acct-1"), ev.AccountID)
	assert.Equal(t, "s2", ev.Request.ID, "the removing request")
	assert.Equal(t, "s1", ev.Previous.ID, "last snapshot still containing the product")
	require.Len(t, ev.Removed, 1)
	assert.Equal(t, "A-2", ev.Removed[0].ProductCode)
	assert.Empty(t, result.NotAvailable)
}

func TestRemovalsMonitor_UnanalyzableAccountDoesNotFailTheScan(t *testing.T) {
	mem := store.NewMemory()
	// acct-bad: two snapshots with identical timestamps and no request
	// ids - unorderable.
	ts := day(2025, time.March, 1)
	seed(t, mem, "acct-bad", "b1", "", ts, `{"apps": [{"code": "A-1"}]}`)
	seed(t, mem, "acct-bad", "b2", "", ts, `{"apps": []}`)
	seed(t, mem, "acct-ok", "s1", "1001", day(2025, time.January, 1),
		`{"apps": [{"code": "A-1"}]}`)
	seed(t, mem, "acct-ok", "s2", "1002", day(2025, time.February, 1),
		`{"apps": []}`)

	result, err := NewRemovalsMonitor(mem).Scan(context.Background())
	require.NoError(t, err, "one bad account must not fail the batch")

	require.Len(t, result.NotAvailable, 1)
	assert.Equal(t, entitlement.AccountID("acct-bad"), result.NotAvailable[0].AccountID)
	assert.NotEmpty(t, result.NotAvailable[0].Reason)

	require.Len(t, result.Events, 1)
	assert.Equal(t, entitlement.AccountID("acct-ok"), result.Events[0].AccountID)
}

// =============================================================================
// EXPIRY MONITOR
// =============================================================================

func TestExpiryMonitor_CheckComputesOnMissAndServesFromCache(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "acct-1", "s1", "1001", day(2025, time.June, 1),
		`{"models": [{"code": "M-1", "start_date": "2025-06-01", "end_date": "2025-10-20"}]}`)

	m := NewExpiryMonitor(mem, mem)
	m.Today = func() entitlement.Date { return entitlement.NewDate(2025, time.October, 7) }

	ctx := context.Background()
	entry, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)
	require.Len(t, entry.Records, 1)
	assert.Equal(t, entitlement.StatusAtRisk, entry.Records[0].Status)

	// Second check must come from the cache, not a recomputation.
	cached, err := mem.GetExpirations(ctx, "acct-1", 30)
	require.NoError(t, err)
	require.NotNil(t, cached)
	again, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)
	assert.Equal(t, cached.ComputedAt, again.ComputedAt)
}

func TestExpiryMonitor_RefreshReplacesAndInvalidateDrops(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "acct-1", "s1", "1001", day(2025, time.June, 1),
		`{"models": [{"code": "M-1", "start_date": "2025-06-01", "end_date": "2025-10-20"}]}`)

	m := NewExpiryMonitor(mem, mem)
	m.Today = func() entitlement.Date { return entitlement.NewDate(2025, time.October, 7) }

	ctx := context.Background()
	_, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)

	// A renewal arrives; after invalidation the next check reclassifies.
	seed(t, mem, "acct-1", "s2", "1002", day(2025, time.October, 15),
		`{"models": [{"code": "M-1", "start_date": "2025-10-21", "end_date": "2026-10-20"}]}`)
	require.NoError(t, m.Invalidate(ctx, "acct-1"))

	entry, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)
	require.Len(t, entry.Records, 1)
	assert.Equal(t, entitlement.StatusExtended, entry.Records[0].Status)
	require.NotNil(t, entry.Records[0].ExtendedBy)
	assert.Equal(t, "s2", entry.Records[0].ExtendedBy.ID)
}

func TestExpiryMonitor_CachesOnlyInWindowClassifications(t *testing.T) {
	mem := store.NewMemory()
	// M-1 expires inside the window; A-1 has no end date at all.
	seed(t, mem, "acct-1", "s1", "1001", day(2025, time.June, 1),
		`{"models": [{"code": "M-1", "start_date": "2025-06-01", "end_date": "2025-10-20"}], "apps": [{"code": "A-1"}]}`)

	m := NewExpiryMonitor(mem, mem)
	m.Today = func() entitlement.Date { return entitlement.NewDate(2025, time.October, 7) }

	entry, err := m.Check(context.Background(), "acct-1", 30)
	require.NoError(t, err)
	require.Len(t, entry.Records, 1, "non-expiring products stay off the risk panel")
	assert.Equal(t, "M-1", entry.Records[0].ProductCode)
	assert.Equal(t, entitlement.StatusAtRisk, entry.Records[0].Status)
}

func TestExpiryMonitor_StaleCacheEntryIsRecomputedOnRead(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "acct-1", "s1", "1001", day(2025, time.June, 1),
		`{"models": [{"code": "M-1", "start_date": "2025-06-01", "end_date": "2025-10-20"}]}`)

	m := NewExpiryMonitor(mem, mem)
	m.Today = func() entitlement.Date { return entitlement.NewDate(2025, time.October, 7) }
	m.MaxAge = time.Minute

	ctx := context.Background()
	stale := entitlement.CachedExpirations{
		AccountID:  "acct-1",
		WindowDays: 30,
		ComputedAt: time.Now().UTC().Add(-2 * time.Minute),
	}
	require.NoError(t, mem.PutExpirations(ctx, stale))

	entry, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)
	assert.True(t, entry.ComputedAt.After(stale.ComputedAt), "entry past MaxAge must be recomputed")
	require.Len(t, entry.Records, 1)
	assert.Equal(t, entitlement.StatusAtRisk, entry.Records[0].Status)

	// A fresh entry keeps being served as-is.
	again, err := m.Check(ctx, "acct-1", 30)
	require.NoError(t, err)
	assert.Equal(t, entry.ComputedAt, again.ComputedAt)
}

func TestExpiryMonitor_UnknownAccount(t *testing.T) {
	m := NewExpiryMonitor(store.NewMemory(), store.NewMemory())
	_, err := m.Check(context.Background(), "nope", 30)
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
}

func TestGroups_NilEntryYieldsNoGroups(t *testing.T) {
	assert.Nil(t, Groups(nil))
}
