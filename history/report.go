/*
Package history builds the Account History comparison view.

PURPOSE:
  Turns one account's timeline into per-request change reports: for each
  provisioning request, what the snapshot contained (category tiles) and
  what changed against the request before it (added / removed /
  unchanged). This is the view the dashboard renders as the account's
  provisioning history, and the one that answers "which request removed
  this product".

SHAPE:
  AccountHistory
    └── ChangeReport (one per usable snapshot, ascending)
          ├── Ref:   request metadata
          ├── Diff:  against the previous snapshot (nil for the first)
          └── Tiles: this snapshot's category summaries

DEGRADATION:
  Snapshots the timeline skipped (unparseable payloads) are carried on
  the report as "not available" entries rather than dropped silently -
  the ops engineer needs to see that a capture exists even when it
  cannot be analyzed.

SEE ALSO:
  - entitlement/timeline.go: Timeline assembly
  - entitlement/diff.go: The change classification
*/
package history

import (
	"github.com/meridian/deploy-assistant/entitlement"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ChangeReport is one provisioning request's entry in the account history.
type ChangeReport struct {
	Ref entitlement.SnapshotRef

	// Diff against the previous usable snapshot; nil for the first one.
	Diff *entitlement.DiffResult

	// Tiles summarizes this snapshot's entitlements per category.
	Tiles []entitlement.CategorySummary
}

// UnavailableReport marks a captured snapshot that could not be analyzed.
type UnavailableReport struct {
	Ref    entitlement.SnapshotRef
	Reason string
}

// AccountHistory is the full comparison view for one account.
type AccountHistory struct {
	AccountID   entitlement.AccountID
	Reports     []ChangeReport
	Unavailable []UnavailableReport
	Warnings    []entitlement.Warning
}

// =============================================================================
// PRODUCT TRACE
// =============================================================================

// EventKind classifies one history event for a product.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
)

// ProductEvent records one request adding or removing a product.
type ProductEvent struct {
	Ref  entitlement.SnapshotRef
	Kind EventKind
}

// =============================================================================
// BUILDING
// =============================================================================

// Build assembles the account history from a timeline. The error reports
// an unorderable snapshot pair; reports before the failing pair are
// still returned.
func Build(tl *entitlement.Timeline) (*AccountHistory, error) {
	h := &AccountHistory{
		AccountID: tl.AccountID,
		Warnings:  tl.Warnings,
	}
	for _, sk := range tl.Skipped {
		h.Unavailable = append(h.Unavailable, UnavailableReport{Ref: sk.Ref, Reason: sk.Reason})
	}

	tiles, tileWarns := entitlement.Aggregate(tl.Normalized, entitlement.ModePerSnapshot)
	h.Warnings = append(h.Warnings, tileWarns...)
	tilesBySnapshot := make(map[string][]entitlement.CategorySummary)
	for _, t := range tiles {
		tilesBySnapshot[t.SnapshotID] = append(tilesBySnapshot[t.SnapshotID], t)
	}

	var buildErr error
	for i, sr := range tl.Snapshots {
		report := ChangeReport{
			Ref:   sr.Ref,
			Tiles: tilesBySnapshot[sr.Ref.ID],
		}
		if i > 0 && buildErr == nil {
			d, err := entitlement.Diff(tl.Snapshots[i-1], sr)
			if err != nil {
				// The pair cannot be ordered; everything from here on
				// has no trustworthy "previous".
				buildErr = err
			} else {
				report.Diff = d
			}
		}
		h.Reports = append(h.Reports, report)
	}
	return h, buildErr
}

// TraceProduct walks the history and returns every request that added or
// removed the given product, in chronological order.
func (h *AccountHistory) TraceProduct(category entitlement.Category, code string) []ProductEvent {
	code = entitlement.NormalizeCode(code)
	var events []ProductEvent
	for _, report := range h.Reports {
		if report.Diff == nil {
			continue
		}
		for _, e := range report.Diff.Added {
			if e.Category == category && e.ProductCode == code {
				events = append(events, ProductEvent{Ref: report.Ref, Kind: EventAdded})
			}
		}
		for _, e := range report.Diff.Removed {
			if e.Category == category && e.ProductCode == code {
				events = append(events, ProductEvent{Ref: report.Ref, Kind: EventRemoved})
			}
		}
	}
	return events
}
