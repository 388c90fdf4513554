/*
diff.go - Snapshot-to-snapshot product comparison

PURPOSE:
  Compares two rolled-up snapshots of the same account and classifies
  every product code as added, removed, or unchanged. This powers the
  Product Removals Monitor and the Account History comparison view.

CLASSIFICATION:
  removed   = codes in previous, not in current
  added     = codes in current, not in previous
  unchanged = codes in both (date or quantity changes alone do NOT count
              as a removal+addition)

ORDERING CONTRACT:
  The caller establishes chronological adjacency: previous must be the
  snapshot with the smaller timestamp. The Diff Engine performs no
  ordering itself. It fails with UnorderedInputError when direction
  cannot be resolved: timestamps equal with no request-id tie-break, or
  previous strictly after current (an upstream ordering bug that must
  not be silently masked).

  A snapshot with no prior snapshot produces no DiffResult at all; the
  first snapshot is never "has removals". That rule lives in timeline.go
  which only feeds adjacent pairs here.

SEE ALSO:
  - types.go: DiffResult and its partition invariant
  - timeline.go: Adjacent-pair iteration over an account's history
*/
package entitlement

// Diff compares two rolled-up snapshots (previous earlier, current later)
// for the same account and partitions the union of product codes.
func Diff(previous, current SnapshotRollup) (*DiffResult, error) {
	if err := checkDirection(previous.Ref, current.Ref); err != nil {
		return nil, err
	}

	result := &DiffResult{
		AccountID: current.Ref.AccountID,
		Previous:  previous.Ref,
		Current:   current.Ref,
	}

	prevCodes := codeSet(previous)

	seen := make(map[rollupKey]bool, len(current.Entitlements))
	for _, e := range current.Entitlements {
		k := rollupKey{Category: e.Category, Code: e.ProductCode}
		seen[k] = true
		if prevCodes[k] {
			result.Unchanged = append(result.Unchanged, e)
		} else {
			result.Added = append(result.Added, e)
		}
	}

	// Removed entries carry the previous side's data: that is the last
	// known coverage for the dropped product.
	for _, e := range previous.Entitlements {
		k := rollupKey{Category: e.Category, Code: e.ProductCode}
		if !seen[k] {
			result.Removed = append(result.Removed, e)
		}
	}

	return result, nil
}

// checkDirection validates that previous -> current is a resolvable
// chronological step.
func checkDirection(previous, current SnapshotRef) error {
	if previous.Timestamp.After(current.Timestamp) {
		return &UnorderedInputError{
			Previous: previous,
			Current:  current,
			Detail:   "previous snapshot is later than current",
		}
	}
	if !previous.Timestamp.Equal(current.Timestamp) {
		return nil
	}
	// Equal timestamps: request ids are the deterministic tie-break. With
	// equal or empty ids there is no resolvable direction.
	if previous.RequestID == "" || current.RequestID == "" || previous.RequestID == current.RequestID {
		return &UnorderedInputError{
			Previous: previous,
			Current:  current,
			Detail:   "equal timestamps with no request-id tie-break",
		}
	}
	return nil
}

func codeSet(sr SnapshotRollup) map[rollupKey]bool {
	set := make(map[rollupKey]bool, len(sr.Entitlements))
	for _, e := range sr.Entitlements {
		set[rollupKey{Category: e.Category, Code: e.ProductCode}] = true
	}
	return set
}
