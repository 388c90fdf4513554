/*
category.go - Per-category aggregation for dashboard tiles

PURPOSE:
  Groups normalized entitlements into the fixed categories and produces
  per-category counts, seat totals and unique-product summaries over one
  or many snapshots. Union mode additionally records, for every product,
  which snapshots contributed it — the source tracking that answers
  "which requests removed/contained this product".

MODES:
  union:        dedupe by (category, productCode) across all snapshots,
                SourceMap tracks contributing snapshots per product
  per_snapshot: independent summaries per snapshot, for detail views

  Output is grouped by category in the fixed order Model, Data, App;
  no further ordering is guaranteed.

SEE ALSO:
  - types.go: CategorySummary
  - normalize.go: Produces the input records
*/
package entitlement

import "github.com/shopspring/decimal"

// Aggregate builds category summaries over a set of normalized snapshots.
// Records without a usable product code are dropped with an
// AmbiguousGroupingWarning; aggregation continues.
func Aggregate(snapshots []NormalizedSnapshot, mode AggregationMode) ([]CategorySummary, []Warning) {
	switch mode {
	case ModePerSnapshot:
		return aggregatePerSnapshot(snapshots)
	default:
		return aggregateUnion(snapshots)
	}
}

func aggregateUnion(snapshots []NormalizedSnapshot) ([]CategorySummary, []Warning) {
	type bucket struct {
		sources  map[string][]SnapshotRef
		quantity decimal.Decimal
	}
	buckets := make(map[Category]*bucket)
	for _, c := range Categories() {
		buckets[c] = &bucket{sources: make(map[string][]SnapshotRef), quantity: decimal.Zero}
	}

	var warnings []Warning
	for _, ns := range snapshots {
		// Within one snapshot a product counts once toward quantity even
		// if the payload listed multiple terms.
		counted := make(map[rollupKey]bool)
		for _, r := range ns.Records {
			if r.ProductCode == "" {
				warnings = append(warnings, ambiguous(ns.Ref, r.Category))
				continue
			}
			b := buckets[r.Category]
			if b == nil {
				continue
			}
			k := rollupKey{Category: r.Category, Code: r.ProductCode}
			if counted[k] {
				continue
			}
			counted[k] = true
			b.sources[r.ProductCode] = append(b.sources[r.ProductCode], ns.Ref)
			b.quantity = b.quantity.Add(r.Quantity)
		}
	}

	var out []CategorySummary
	for _, c := range Categories() {
		b := buckets[c]
		out = append(out, CategorySummary{
			Category:           c,
			UniqueProductCount: len(b.sources),
			TotalQuantity:      b.quantity,
			SourceMap:          b.sources,
		})
	}
	return out, warnings
}

func aggregatePerSnapshot(snapshots []NormalizedSnapshot) ([]CategorySummary, []Warning) {
	var (
		out      []CategorySummary
		warnings []Warning
	)
	for _, ns := range snapshots {
		summaries, warns := aggregateUnion([]NormalizedSnapshot{ns})
		warnings = append(warnings, warns...)
		for _, s := range summaries {
			s.SnapshotID = ns.Ref.ID
			out = append(out, s)
		}
	}
	return out, warnings
}

func ambiguous(ref SnapshotRef, category Category) Warning {
	return Warning{
		Code:       WarnAmbiguousGrouping,
		SnapshotID: ref.ID,
		AccountID:  ref.AccountID,
		Category:   category,
		Detail:     "record without product code dropped from aggregation",
	}
}
