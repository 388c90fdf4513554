/*
expiration.go - At-risk vs extended classification over a lookahead window

PURPOSE:
  Finds entitlements whose coverage ends inside [now, now+window] and
  decides whether a later snapshot already rescues them. This powers the
  Expiration Monitor and its persisted cache.

CLASSIFICATION:
  For each product code, take its occurrences across the ordered
  timeline. The occurrence under judgment is the LAST one whose rolled-up
  end date falls inside the window (inclusive on both ends).

  Extended:      a strictly later snapshot shows the same code with
                 coverage cleared past the window (end absent or end
                 strictly after now+window), or a fresh term starting
                 after the expiring coverage ends.
  AtRisk:        no such later snapshot exists.
  NotApplicable: the code never ends inside the window (end absent or
                 outside), emitted so callers can render complete lists.

  Classification is a pure function of (timeline, now, window). Changing
  the window re-derives everything; no incremental state is carried.

GROUPING:
  Entitlements provisioned by one request expire together. The group
  verdict is pessimistic: AtRisk if ANY member is AtRisk; Extended only
  when every member is individually confirmed Extended. NotApplicable
  records never join a group.

SEE ALSO:
  - time.go: Window semantics (inclusive bounds)
  - timeline.go: Ordered per-snapshot rollups
*/
package entitlement

import "sort"

// Classify derives expiration records for every product code appearing in
// the timeline, against the inclusive window [now, now+windowDays].
func Classify(tl *Timeline, now Date, windowDays int) ([]ExpirationRecord, error) {
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	window := NewWindow(now, windowDays)

	type occurrence struct {
		snapshotIdx int
		entry       RolledUpEntitlement
	}

	occurrences := make(map[rollupKey][]occurrence)
	var order []rollupKey

	for i, sr := range tl.Snapshots {
		for _, e := range sr.Entitlements {
			k := rollupKey{Category: e.Category, Code: e.ProductCode}
			if _, seen := occurrences[k]; !seen {
				order = append(order, k)
			}
			occurrences[k] = append(occurrences[k], occurrence{snapshotIdx: i, entry: e})
		}
	}

	var records []ExpirationRecord
	for _, k := range order {
		occs := occurrences[k]

		// Last occurrence whose coverage ends inside the window.
		expiring := -1
		for i, occ := range occs {
			if window.Contains(occ.entry.EndDate) {
				expiring = i
			}
		}

		last := occs[len(occs)-1].entry
		base := ExpirationRecord{
			AccountID:   tl.AccountID,
			ProductCode: k.Code,
			DisplayName: last.DisplayName,
			Category:    k.Category,
		}

		if expiring == -1 {
			base.Status = StatusNotApplicable
			base.EndDate = last.EndDate
			base.Source = tl.Snapshots[occs[len(occs)-1].snapshotIdx].Ref
			records = append(records, base)
			continue
		}

		exp := occs[expiring]
		base.EndDate = exp.entry.EndDate
		base.Source = tl.Snapshots[exp.snapshotIdx].Ref
		base.Status = StatusAtRisk

		for _, later := range occs[expiring+1:] {
			if later.snapshotIdx <= exp.snapshotIdx {
				continue
			}
			if renews(window, exp.entry, later.entry) {
				ref := tl.Snapshots[later.snapshotIdx].Ref
				base.Status = StatusExtended
				base.ExtendedBy = &ref
				break
			}
		}

		records = append(records, base)
	}

	return records, nil
}

// renews reports whether a later entry rescues expiring coverage: the new
// coverage clears the window, or a fresh term starts after the expiring
// coverage ends.
func renews(window Window, expiring, later RolledUpEntitlement) bool {
	if window.Cleared(later.EndDate) {
		return true
	}
	if later.StartDate != nil && expiring.EndDate != nil && later.StartDate.After(*expiring.EndDate) {
		return true
	}
	return false
}

// GroupExpirations groups AtRisk/Extended records by the provisioning
// request their expiring coverage originates from. NotApplicable records
// are excluded. Group order is ascending by request timestamp.
func GroupExpirations(records []ExpirationRecord) []ExpirationGroup {
	groups := make(map[RequestID]*ExpirationGroup)
	var order []RequestID

	for _, r := range records {
		if r.Status == StatusNotApplicable {
			continue
		}
		g, ok := groups[r.Source.RequestID]
		if !ok {
			g = &ExpirationGroup{
				AccountID:   r.AccountID,
				RequestID:   r.Source.RequestID,
				RequestName: r.Source.RequestName,
				Timestamp:   r.Source.Timestamp,
				Status:      StatusExtended, // optimistic until an AtRisk member appears
			}
			groups[r.Source.RequestID] = g
			order = append(order, r.Source.RequestID)
		}
		g.Records = append(g.Records, r)
		if r.Status == StatusAtRisk {
			g.Status = StatusAtRisk
		}
	}

	out := make([]ExpirationGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *groups[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
