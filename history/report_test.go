package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/deploy-assistant/entitlement"
)

func snap(id, reqID string, ts time.Time, payload string) entitlement.Snapshot {
	return entitlement.Snapshot{
		ID:          id,
		AccountID:   "acct-1",
		RequestID:   entitlement.RequestID(reqID),
		RequestName: "PS-" + reqID,
		RequestType: entitlement.RequestUpdate,
		Timestamp:   ts,
		RawPayload:  []byte(payload),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuild_OneReportPerRequestWithDiffAndTiles(t *testing.T) {
	tl := entitlement.BuildTimeline("acct-1", []entitlement.Snapshot{
		snap("s1", "1001", day(2025, time.January, 1),
			`{"models": [{"code": "M-1"}], "apps": [{"code": "A-1"}]}`),
		snap("s2", "1002", day(2025, time.February, 1),
			`{"models": [{"code": "M-1"}]}`),
	}, entitlement.NewNormalizer())

	h, err := Build(tl)
	require.NoError(t, err)
	require.Len(t, h.Reports, 2)

	first := h.Reports[0]
	assert.Nil(t, first.Diff, "first request has no prior to compare against")
	require.Len(t, first.Tiles, 3, "one tile per category")
	assert.Equal(t, 1, first.Tiles[0].UniqueProductCount, "model tile")
	assert.Equal(t, 1, first.Tiles[2].UniqueProductCount, "app tile")

	second := h.Reports[1]
	require.NotNil(t, second.Diff)
	require.Len(t, second.Diff.Removed, 1)
	assert.Equal(t, "A-1", second.Diff.Removed[0].ProductCode)
	assert.Equal(t, 0, second.Tiles[2].UniqueProductCount, "app tile empty after removal")
}

func TestBuild_SkippedSnapshotsSurfaceAsUnavailable(t *testing.T) {
	tl := entitlement.BuildTimeline("acct-1", []entitlement.Snapshot{
		snap("s1", "1001", day(2025, time.January, 1), `{"apps": [{"code": "A-1"}]}`),
		snap("s2", "1002", day(2025, time.February, 1), `not a payload`),
	}, entitlement.NewNormalizer())

	h, err := Build(tl)
	require.NoError(t, err)
	assert.Len(t, h.Reports, 1)
	require.Len(t, h.Unavailable, 1)
	assert.Equal(t, "s2", h.Unavailable[0].Ref.ID)
	assert.NotEmpty(t, h.Unavailable[0].Reason)
}

func TestTraceProduct_FindsAddingAndRemovingRequests(t *testing.T) {
	tl := entitlement.BuildTimeline("acct-1", []entitlement.Snapshot{
		snap("s1", "1001", day(2025, time.January, 1), `{"data": [{"code": "D-1"}]}`),
		snap("s2", "1002", day(2025, time.February, 1), `{"data": [{"code": "D-1"}, {"code": "D-2"}]}`),
		snap("s3", "1003", day(2025, time.March, 1), `{"data": [{"code": "D-1"}]}`),
	}, entitlement.NewNormalizer())

	h, err := Build(tl)
	require.NoError(t, err)

	events := h.TraceProduct(entitlement.CategoryData, "d-2")
	require.Len(t, events, 2, "lookup is case-insensitive via code normalization")
	assert.Equal(t, EventAdded, events[0].Kind)
	assert.Equal(t, "s2", events[0].Ref.ID)
	assert.Equal(t, EventRemoved, events[1].Kind)
	assert.Equal(t, "s3", events[1].Ref.ID)

	assert.Empty(t, h.TraceProduct(entitlement.CategoryData, "D-1"),
		"a product present throughout has no add/remove events after the first snapshot")
}
