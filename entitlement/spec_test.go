/*
spec_test.go - Specification Tests for the Reconciliation Engine

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the engine design.
  Each test documents a behavior the dashboards depend on and validates
  that the implementation conforms to it.

ORGANIZATION:
  Tests are grouped by specification area:
  1. Rollup - Coverage merging, indefinite dominance, idempotence
  2. Diff - Partition property, first-snapshot rule
  3. Expiration - At-risk vs extended over a window
  4. Stability - Window widening never loses classified products

READING THESE TESTS:
  Each test has:
  - A descriptive name that states the behavior
  - GIVEN/WHEN/THEN comments explaining the scenario
  - Clear assertions with explanatory messages

These tests are intentionally verbose for documentation purposes.
*/
package entitlement_test

import (
	"testing"
	"time"

	"github.com/meridian/deploy-assistant/entitlement"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func date(y int, m time.Month, d int) entitlement.Date {
	return entitlement.NewDate(y, m, d)
}

func dp(y int, m time.Month, d int) *entitlement.Date {
	v := entitlement.NewDate(y, m, d)
	return &v
}

func ref(id string, reqID string, ts time.Time) entitlement.SnapshotRef {
	return entitlement.SnapshotRef{
		ID:          id,
		AccountID:   "acct-1",
		RequestID:   entitlement.RequestID(reqID),
		RequestName: "PS-" + reqID,
		Timestamp:   ts,
	}
}

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func record(category entitlement.Category, code string, start, end *entitlement.Date) entitlement.EntitlementRecord {
	return entitlement.EntitlementRecord{
		ProductCode: code,
		DisplayName: code,
		Category:    category,
		StartDate:   start,
		EndDate:     end,
	}
}

func rolled(category entitlement.Category, code string, start, end *entitlement.Date) entitlement.RolledUpEntitlement {
	return entitlement.RolledUpEntitlement{
		EntitlementRecord: record(category, code, start, end),
		SourceCount:       1,
	}
}

func rollupOf(sref entitlement.SnapshotRef, entries ...entitlement.RolledUpEntitlement) entitlement.SnapshotRollup {
	return entitlement.SnapshotRollup{Ref: sref, Entitlements: entries}
}

func codesOf(entries []entitlement.RolledUpEntitlement) map[string]bool {
	set := make(map[string]bool)
	for _, e := range entries {
		set[e.ProductCode] = true
	}
	return set
}

// timelineOf builds a Timeline directly from rollups, bypassing payload
// normalization, for classifier tests.
func timelineOf(rollups ...entitlement.SnapshotRollup) *entitlement.Timeline {
	return &entitlement.Timeline{AccountID: "acct-1", Snapshots: rollups}
}

// =============================================================================
// ROLLUP SPECIFICATIONS
// =============================================================================

func TestRollup_ScenarioA_RenewedTermsMergeIntoOneInterval(t *testing.T) {
	// GIVEN: Two consecutive yearly terms of the same product code
	// WHEN: Rolling up
	// THEN: One record with the unified interval and sourceCount 2

	records := []entitlement.EntitlementRecord{
		record(entitlement.CategoryData, "IC-DATABRIDGE", dp(2025, time.June, 1), dp(2026, time.May, 31)),
		record(entitlement.CategoryData, "IC-DATABRIDGE", dp(2026, time.June, 1), dp(2027, time.May, 31)),
	}

	result := entitlement.Rollup(records)

	if len(result) != 1 {
		t.Fatalf("expected 1 rolled-up record, got %d", len(result))
	}
	r := result[0]
	if r.ProductCode != "IC-DATABRIDGE" {
		t.Errorf("expected code IC-DATABRIDGE, got %s", r.ProductCode)
	}
	if !r.StartDate.Equal(date(2025, time.June, 1)) {
		t.Errorf("expected merged start 2025-06-01, got %s", r.StartDate)
	}
	if !r.EndDate.Equal(date(2027, time.May, 31)) {
		t.Errorf("expected merged end 2027-05-31, got %s", r.EndDate)
	}
	if r.SourceCount != 2 {
		t.Errorf("expected sourceCount 2, got %d", r.SourceCount)
	}
}

func TestRollup_IndefiniteContributorDominatesMergedEnd(t *testing.T) {
	// GIVEN: Three terms of one product, the middle one without an end date
	// WHEN: Rolling up
	// THEN: Merged end is absent ("does not expire" wins over any date)

	records := []entitlement.EntitlementRecord{
		record(entitlement.CategoryModel, "MDL-CORE", dp(2024, time.January, 1), dp(2024, time.December, 31)),
		record(entitlement.CategoryModel, "MDL-CORE", dp(2025, time.January, 1), nil),
		record(entitlement.CategoryModel, "MDL-CORE", dp(2026, time.January, 1), dp(2026, time.December, 31)),
	}

	result := entitlement.Rollup(records)

	if len(result) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result))
	}
	if result[0].EndDate != nil {
		t.Errorf("expected absent merged end, got %s", result[0].EndDate)
	}
	if !result[0].StartDate.Equal(date(2024, time.January, 1)) {
		t.Errorf("expected merged start 2024-01-01, got %s", result[0].StartDate)
	}
}

func TestRollup_Idempotence(t *testing.T) {
	// GIVEN: Any multiset of entitlement records
	// WHEN: Rolling up twice
	// THEN: The second rollup changes nothing

	records := []entitlement.EntitlementRecord{
		record(entitlement.CategoryData, "D-1", dp(2025, time.January, 1), dp(2025, time.June, 30)),
		record(entitlement.CategoryData, "D-1", dp(2025, time.July, 1), dp(2025, time.December, 31)),
		record(entitlement.CategoryApp, "A-1", nil, nil),
		record(entitlement.CategoryModel, "M-1", dp(2025, time.March, 1), dp(2026, time.March, 1)),
	}

	once := entitlement.Rollup(records)
	twice := entitlement.RollupRolled(once)

	if len(once) != len(twice) {
		t.Fatalf("idempotence violated: %d vs %d groups", len(once), len(twice))
	}
	for i := range once {
		a, b := once[i], twice[i]
		if a.ProductCode != b.ProductCode || a.SourceCount != b.SourceCount {
			t.Errorf("group %d changed identity: %+v vs %+v", i, a, b)
		}
		if (a.EndDate == nil) != (b.EndDate == nil) {
			t.Errorf("group %d changed end presence", i)
		}
		if a.EndDate != nil && !a.EndDate.Equal(*b.EndDate) {
			t.Errorf("group %d changed end date: %s vs %s", i, a.EndDate, b.EndDate)
		}
	}
}

func TestRollup_MonotonicBounds(t *testing.T) {
	// GIVEN: Multiple dated terms of one product
	// WHEN: Rolling up
	// THEN: Merged start <= every contributing start, merged end >= every
	//       contributing end

	records := []entitlement.EntitlementRecord{
		record(entitlement.CategoryApp, "APP-X", dp(2025, time.March, 1), dp(2025, time.September, 30)),
		record(entitlement.CategoryApp, "APP-X", dp(2024, time.November, 15), dp(2025, time.February, 28)),
		record(entitlement.CategoryApp, "APP-X", dp(2025, time.October, 1), dp(2026, time.March, 31)),
	}

	result := entitlement.Rollup(records)

	if len(result) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result))
	}
	merged := result[0]
	for _, r := range records {
		if merged.StartDate.After(*r.StartDate) {
			t.Errorf("merged start %s after contributing start %s", merged.StartDate, r.StartDate)
		}
		if merged.EndDate.Before(*r.EndDate) {
			t.Errorf("merged end %s before contributing end %s", merged.EndDate, r.EndDate)
		}
	}
}

// =============================================================================
// DIFF SPECIFICATIONS
// =============================================================================

func TestDiff_ScenarioB_AddedRemovedUnchanged(t *testing.T) {
	// GIVEN: Previous snapshot {A, B, C}, current snapshot {A, C, D}
	// WHEN: Diffing previous -> current
	// THEN: added={D}, removed={B}, unchanged={A, C}

	previous := rollupOf(ref("s1", "1001", at(2025, time.January, 1)),
		rolled(entitlement.CategoryApp, "A", nil, nil),
		rolled(entitlement.CategoryApp, "B", nil, nil),
		rolled(entitlement.CategoryApp, "C", nil, nil),
	)
	current := rollupOf(ref("s2", "1002", at(2025, time.February, 1)),
		rolled(entitlement.CategoryApp, "A", nil, nil),
		rolled(entitlement.CategoryApp, "C", nil, nil),
		rolled(entitlement.CategoryApp, "D", nil, nil),
	)

	result, err := entitlement.Diff(previous, current)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if added := codesOf(result.Added); len(added) != 1 || !added["D"] {
		t.Errorf("expected added={D}, got %v", added)
	}
	if removed := codesOf(result.Removed); len(removed) != 1 || !removed["B"] {
		t.Errorf("expected removed={B}, got %v", removed)
	}
	if unchanged := codesOf(result.Unchanged); len(unchanged) != 2 || !unchanged["A"] || !unchanged["C"] {
		t.Errorf("expected unchanged={A, C}, got %v", unchanged)
	}
}

func TestDiff_PartitionProperty(t *testing.T) {
	// GIVEN: Arbitrary previous and current snapshots
	// WHEN: Diffing
	// THEN: added/removed/unchanged exactly cover the union of codes with
	//       no overlaps

	previous := rollupOf(ref("s1", "1001", at(2025, time.January, 1)),
		rolled(entitlement.CategoryModel, "M-1", dp(2025, time.January, 1), dp(2025, time.June, 30)),
		rolled(entitlement.CategoryData, "D-1", nil, nil),
		rolled(entitlement.CategoryApp, "A-1", nil, dp(2025, time.March, 31)),
	)
	current := rollupOf(ref("s2", "1002", at(2025, time.April, 1)),
		rolled(entitlement.CategoryModel, "M-1", dp(2025, time.July, 1), dp(2026, time.June, 30)), // dates moved: still unchanged
		rolled(entitlement.CategoryData, "D-2", nil, nil),
	)

	result, err := entitlement.Diff(previous, current)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]int)
	for _, e := range result.Added {
		seen[e.ProductCode]++
	}
	for _, e := range result.Removed {
		seen[e.ProductCode]++
	}
	for _, e := range result.Unchanged {
		seen[e.ProductCode]++
	}

	union := []string{"M-1", "D-1", "A-1", "D-2"}
	if len(seen) != len(union) {
		t.Fatalf("expected %d codes covered, got %d", len(union), len(seen))
	}
	for _, code := range union {
		if seen[code] != 1 {
			t.Errorf("code %s appears %d times across the partition, want exactly 1", code, seen[code])
		}
	}

	// Date changes alone never count as removal+addition.
	if codesOf(result.Unchanged)["M-1"] != true {
		t.Errorf("M-1 changed only dates and must be unchanged")
	}
}

func TestDiff_ScenarioD_FirstSnapshotProducesNoDiff(t *testing.T) {
	// GIVEN: An account with exactly one snapshot
	// WHEN: Deriving the timeline's diffs
	// THEN: No DiffResult entries exist, so nothing is ever "removed"

	tl := timelineOf(rollupOf(ref("s1", "1001", at(2025, time.January, 1)),
		rolled(entitlement.CategoryApp, "A", nil, nil),
	))

	diffs, err := tl.Diffs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("expected no diffs for a single-snapshot account, got %d", len(diffs))
	}
}

// =============================================================================
// EXPIRATION SPECIFICATIONS
// =============================================================================

func TestClassify_ScenarioC_AtRiskWithoutRenewal(t *testing.T) {
	// GIVEN: now=2025-10-07, window=30 days, coverage ends 2025-10-20,
	//        no later snapshot renews the product
	// WHEN: Classifying
	// THEN: The product is AtRisk

	tl := timelineOf(rollupOf(ref("s1", "1001", at(2025, time.June, 1)),
		rolled(entitlement.CategoryData, "D-1", dp(2025, time.January, 1), dp(2025, time.October, 20)),
	))

	records, err := entitlement.Classify(tl, date(2025, time.October, 7), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Status != entitlement.StatusAtRisk {
		t.Errorf("expected AtRisk, got %s", records[0].Status)
	}
}

func TestClassify_ScenarioC_ExtendedByLaterSnapshot(t *testing.T) {
	// GIVEN: Same expiring coverage, but a snapshot dated 2025-10-15 shows
	//        the product with endDate 2026-10-20
	// WHEN: Classifying with now=2025-10-07, window=30
	// THEN: The product is Extended, attributed to the renewing snapshot

	tl := timelineOf(
		rollupOf(ref("s1", "1001", at(2025, time.June, 1)),
			rolled(entitlement.CategoryData, "D-1", dp(2025, time.January, 1), dp(2025, time.October, 20)),
		),
		rollupOf(ref("s2", "1002", at(2025, time.October, 15)),
			rolled(entitlement.CategoryData, "D-1", dp(2025, time.October, 21), dp(2026, time.October, 20)),
		),
	)

	records, err := entitlement.Classify(tl, date(2025, time.October, 7), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Status != entitlement.StatusExtended {
		t.Errorf("expected Extended, got %s", r.Status)
	}
	if r.ExtendedBy == nil || r.ExtendedBy.ID != "s2" {
		t.Errorf("expected extension attributed to s2, got %+v", r.ExtendedBy)
	}
}

func TestClassify_WindowWideningNeverLosesClassifiedProducts(t *testing.T) {
	// GIVEN: Products classified AtRisk or Extended under window w1
	// WHEN: Re-classifying under w2 > w1
	// THEN: Every such product stays classified (never flips to NotApplicable)

	tl := timelineOf(
		rollupOf(ref("s1", "1001", at(2025, time.June, 1)),
			rolled(entitlement.CategoryData, "D-1", nil, dp(2025, time.October, 20)),
			rolled(entitlement.CategoryModel, "M-1", nil, dp(2025, time.October, 30)),
		),
		rollupOf(ref("s2", "1002", at(2025, time.September, 1)),
			rolled(entitlement.CategoryModel, "M-1", dp(2025, time.November, 1), dp(2026, time.November, 1)),
		),
	)

	now := date(2025, time.October, 7)

	narrow, err := entitlement.Classify(tl, now, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wide, err := entitlement.Classify(tl, now, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wideByCode := make(map[string]entitlement.ExpirationStatus)
	for _, r := range wide {
		wideByCode[r.ProductCode] = r.Status
	}

	for _, r := range narrow {
		if r.Status == entitlement.StatusNotApplicable {
			continue
		}
		if wideByCode[r.ProductCode] == entitlement.StatusNotApplicable {
			t.Errorf("product %s classified %s at w=30 became NotApplicable at w=90",
				r.ProductCode, r.Status)
		}
	}
}
