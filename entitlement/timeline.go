/*
timeline.go - Ordered snapshot history and full account analysis

PURPOSE:
  Assembles one account's snapshot history into a Timeline: snapshots in
  ascending chronological order, each normalized once and rolled up once.
  The Analyzer then derives every view the dashboard needs from a single
  pass — adjacent-pair diffs, expiration classification, and category
  summaries — so re-analysis of an account is one call.

ORDERING:
  Snapshots sort ascending by timestamp; ties break by request id
  (stable sort), matching the provider's contract. The Timeline is the
  explicit join key (accountId, ordered timestamp): nothing downstream
  may depend on array adjacency in the raw provider response or on any
  notion of "currently displayed" state.

DEGRADATION:
  A snapshot whose payload cannot be parsed is recorded as skipped and
  excluded from the timeline; the rest of the account still analyzes.
  A single corrupt historical record must never block an account.

CONCURRENCY:
  One account's analysis is single-threaded and completes in-memory.
  Distinct accounts share no state; callers parallelize per account.

SEE ALSO:
  - provider.go: SnapshotProvider collaborator boundary
  - diff.go, expiration.go, category.go: The derivations
*/
package entitlement

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// TIMELINE - One account's ordered, normalized, rolled-up history
// =============================================================================

// SkippedSnapshot records a snapshot excluded from analysis and why.
type SkippedSnapshot struct {
	Ref    SnapshotRef
	Reason string
}

// Timeline is an account's snapshot history, ordered and preprocessed.
type Timeline struct {
	AccountID AccountID

	// Snapshots in ascending order; parallel to Normalized.
	Snapshots  []SnapshotRollup
	Normalized []NormalizedSnapshot

	Warnings []Warning
	Skipped  []SkippedSnapshot
}

// BuildTimeline orders an account's snapshots and normalizes and rolls up
// each one. Unparseable payloads are skipped, not fatal.
func BuildTimeline(accountID AccountID, snaps []Snapshot, normalizer *Normalizer) *Timeline {
	ordered := make([]Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].RequestID < ordered[j].RequestID
	})

	tl := &Timeline{AccountID: accountID}
	for _, snap := range ordered {
		records, warns, err := normalizer.Normalize(snap)
		tl.Warnings = append(tl.Warnings, warns...)
		if err != nil {
			tl.Skipped = append(tl.Skipped, SkippedSnapshot{
				Ref:    snap.Ref(),
				Reason: err.Error(),
			})
			continue
		}
		tl.Normalized = append(tl.Normalized, NormalizedSnapshot{Ref: snap.Ref(), Records: records})
		tl.Snapshots = append(tl.Snapshots, SnapshotRollup{Ref: snap.Ref(), Entitlements: Rollup(records)})
	}
	return tl
}

// Diffs derives the DiffResult for every adjacent snapshot pair. The
// first snapshot has no prior and produces no result. An unorderable
// pair fails that diff only; earlier results are still returned.
func (tl *Timeline) Diffs() ([]DiffResult, error) {
	var results []DiffResult
	for i := 1; i < len(tl.Snapshots); i++ {
		d, err := Diff(tl.Snapshots[i-1], tl.Snapshots[i])
		if err != nil {
			return results, err
		}
		results = append(results, *d)
	}
	return results, nil
}

// Products returns the cross-snapshot rolled-up union: one row per
// (category, product) with coverage merged over the whole history. This
// is the Customer Products date aggregation view.
func (tl *Timeline) Products() []RolledUpEntitlement {
	var all []RolledUpEntitlement
	for _, sr := range tl.Snapshots {
		all = append(all, sr.Entitlements...)
	}
	return RollupRolled(all)
}

// =============================================================================
// ANALYZER - Full derivation for one account
// =============================================================================

// AccountAnalysis bundles every derived view for one account. All fields
// are read-only views recomputed from the snapshot history.
type AccountAnalysis struct {
	AccountID   AccountID
	GeneratedAt time.Time

	Timeline    *Timeline
	Diffs       []DiffResult
	Expirations []ExpirationRecord
	Groups      []ExpirationGroup
	Products    []RolledUpEntitlement

	// Union tiles across the history plus per-snapshot detail summaries.
	Categories  []CategorySummary
	PerSnapshot []CategorySummary

	Warnings []Warning
}

// Analyzer derives account analyses from a SnapshotProvider.
type Analyzer struct {
	Provider   SnapshotProvider
	Normalizer *Normalizer
}

func NewAnalyzer(provider SnapshotProvider) *Analyzer {
	return &Analyzer{Provider: provider, Normalizer: NewNormalizer()}
}

// AnalyzeAccount runs the full derivation for one account: timeline,
// adjacent-pair diffs, expiration classification for the window, and
// category summaries. Pure with respect to the snapshot history.
func (a *Analyzer) AnalyzeAccount(ctx context.Context, accountID AccountID, now Date, windowDays int) (*AccountAnalysis, error) {
	snaps, err := a.Provider.GetSnapshotsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrAccountNotFound
	}

	tl := BuildTimeline(accountID, snaps, a.Normalizer)

	analysis := &AccountAnalysis{
		AccountID:   accountID,
		GeneratedAt: time.Now().UTC(),
		Timeline:    tl,
		Products:    tl.Products(),
	}

	diffs, err := tl.Diffs()
	analysis.Diffs = diffs
	if err != nil {
		// Ordering bugs surface; they are not masked by partial results.
		return analysis, err
	}

	records, err := Classify(tl, now, windowDays)
	if err != nil {
		return analysis, err
	}
	analysis.Expirations = records
	analysis.Groups = GroupExpirations(records)

	union, unionWarns := Aggregate(tl.Normalized, ModeUnion)
	per, perWarns := Aggregate(tl.Normalized, ModePerSnapshot)
	analysis.Categories = union
	analysis.PerSnapshot = per

	analysis.Warnings = append(analysis.Warnings, tl.Warnings...)
	analysis.Warnings = append(analysis.Warnings, unionWarns...)
	analysis.Warnings = append(analysis.Warnings, perWarns...)

	return analysis, nil
}
