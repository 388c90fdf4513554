/*
rollup.go - Coverage interval merging for repeatedly-renewed products

PURPOSE:
  A product renewed year over year appears once per term in a payload.
  Rollup collapses all entries sharing a (category, productCode) into a
  single record with a unified coverage interval, so downstream views
  see one row per product.

MERGE RULE (uniform, no exceptions):
  start = min(starts present)
  end   = max(ends) UNLESS any contributing entry has no end date, in
          which case the merged end is absent ("does not expire" wins)
  quantity = sum of contributing quantities
  sourceCount = number of raw entries merged

  The rule is the same for every product code. An earlier system carried
  a substring match that excluded one product family from merging; that
  behavior was a defect and is deliberately not reproduced.

PROPERTIES:
  - Idempotent: rollup(rollup(xs)) == rollup(xs)
  - Merge is associative and commutative over min-start/max-end
  - Output order follows first occurrence of each group in the input

SEE ALSO:
  - types.go: RolledUpEntitlement
  - diff.go: Consumes rolled-up snapshots
*/
package entitlement

// rollupKey identifies a merge group.
type rollupKey struct {
	Category Category
	Code     string
}

// Rollup merges entitlement entries sharing the same (category, product
// code) into one record with a unified coverage interval.
func Rollup(records []EntitlementRecord) []RolledUpEntitlement {
	groups := make(map[rollupKey]*RolledUpEntitlement)
	var order []rollupKey

	for _, r := range records {
		k := rollupKey{Category: r.Category, Code: r.ProductCode}
		existing, ok := groups[k]
		if !ok {
			merged := RolledUpEntitlement{EntitlementRecord: r, SourceCount: 1}
			groups[k] = &merged
			order = append(order, k)
			continue
		}
		mergeInto(existing, r)
	}

	out := make([]RolledUpEntitlement, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

// RollupRolled re-merges already rolled-up entries. Used when combining
// rollups across snapshots (customer products view); source counts add.
func RollupRolled(rolled []RolledUpEntitlement) []RolledUpEntitlement {
	groups := make(map[rollupKey]*RolledUpEntitlement)
	var order []rollupKey

	for _, r := range rolled {
		k := rollupKey{Category: r.Category, Code: r.ProductCode}
		existing, ok := groups[k]
		if !ok {
			merged := r
			groups[k] = &merged
			order = append(order, k)
			continue
		}
		mergeInto(existing, r.EntitlementRecord)
		existing.SourceCount += r.SourceCount - 1
	}

	out := make([]RolledUpEntitlement, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

func mergeInto(merged *RolledUpEntitlement, r EntitlementRecord) {
	merged.StartDate = minDate(merged.StartDate, r.StartDate)

	// Indefinite dominates: an absent end date means "does not expire",
	// so once any contributor lacks one the merged end stays absent.
	if merged.EndDate == nil || r.EndDate == nil {
		merged.EndDate = nil
	} else {
		merged.EndDate = maxDate(merged.EndDate, r.EndDate)
	}

	if merged.DisplayName == "" {
		merged.DisplayName = r.DisplayName
	}
	merged.Quantity = merged.Quantity.Add(r.Quantity)
	merged.SourceCount++
}
