/*
Package entitlement provides the core timeline reconciliation engine.

PURPOSE:
  This package contains the types and algorithms for reconciling an
  account's chronological history of product-entitlement snapshots.
  Every provisioning request captured against a CRM account becomes a
  Snapshot; the engine derives additions/removals between consecutive
  snapshots, merged coverage intervals for repeatedly-renewed products,
  and expiration risk classification over a configurable window.

KEY CONCEPTS IN THIS FILE (types.go):
  - Snapshot: One provisioning request's point-in-time entitlement payload
  - EntitlementRecord: One normalized row extracted from a payload
  - RolledUpEntitlement: One record per (category, product) after merging
  - Category: Closed set of entitlement classes (Model / Data / App)
  - Account/Request IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Derived views: Everything here is recomputed from snapshot history;
     nothing is independently mutated.
  2. Purity: The transforms are synchronous functions over in-memory data.
     Distinct accounts never share state and may run in parallel.
  3. Type Safety: Strong typing for IDs prevents mixing account/request IDs.
  4. Precision: Seat/unit quantities use decimal.Decimal, never float64.

USAGE:
  records, warns, err := normalizer.Normalize(snapshot)
  rolled := entitlement.Rollup(records)
  result, err := entitlement.Diff(previous, current)

SEE ALSO:
  - normalize.go: Payload to EntitlementRecord extraction
  - rollup.go: Coverage interval merging
  - diff.go: Added/removed/unchanged classification
  - expiration.go: At-risk vs extended classification
*/
package entitlement

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY - Closed set of entitlement classes
// =============================================================================

// Category is the fixed classification of an entitlement. Any future
// category is a new constant here, not a new type.
type Category string

const (
	CategoryModel Category = "model"
	CategoryData  Category = "data"
	CategoryApp   Category = "app"
)

// Categories returns all categories in their fixed presentation order:
// Model, Data, App. Every output of the engine groups in this order.
func Categories() []Category {
	return []Category{CategoryModel, CategoryData, CategoryApp}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryModel, CategoryData, CategoryApp:
		return true
	}
	return false
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type RequestID string

// RequestType is informational only; the engine never branches on it.
type RequestType string

const (
	RequestNew         RequestType = "new"
	RequestUpdate      RequestType = "update"
	RequestTermination RequestType = "termination"
	RequestOnboarding  RequestType = "onboarding"
	RequestDeprovision RequestType = "deprovision"
	RequestUnknown     RequestType = "unknown"
)

// =============================================================================
// SNAPSHOT - One provisioning request's entitlement payload
// =============================================================================

// Snapshot is the unit of history. Snapshots for one account are totally
// ordered by Timestamp; ties break deterministically by RequestID.
type Snapshot struct {
	ID          string // ingest id, assigned by the capture layer
	AccountID   AccountID
	RequestID   RequestID
	RequestName string // human label, e.g. "PS-4331"
	RequestType RequestType
	Timestamp   time.Time
	RawPayload  json.RawMessage
}

// Ref returns the lightweight identity of the snapshot, used in derived
// outputs that must not drag the raw payload along.
func (s Snapshot) Ref() SnapshotRef {
	return SnapshotRef{
		ID:          s.ID,
		AccountID:   s.AccountID,
		RequestID:   s.RequestID,
		RequestName: s.RequestName,
		RequestType: s.RequestType,
		Timestamp:   s.Timestamp,
	}
}

// SnapshotRef identifies a snapshot without its payload.
type SnapshotRef struct {
	ID          string
	AccountID   AccountID
	RequestID   RequestID
	RequestName string
	RequestType RequestType
	Timestamp   time.Time
}

// =============================================================================
// ENTITLEMENT RECORD - Normalized row extracted from a payload
// =============================================================================

// EntitlementRecord is one normalized entitlement. ProductCode is the
// identity key (trimmed, upper-cased); DisplayName is presentation only.
// A nil EndDate means the entitlement does not expire.
type EntitlementRecord struct {
	ProductCode string
	DisplayName string
	Category    Category
	StartDate   *Date
	EndDate     *Date

	// Seat/unit count carried by the payload entry, zero when absent.
	Quantity decimal.Decimal
}

// Expires reports whether the record has a finite coverage end.
func (r EntitlementRecord) Expires() bool { return r.EndDate != nil }

// RolledUpEntitlement is one EntitlementRecord per (category, productCode)
// after merging duplicates: minimum start, maximum end (absence of any end
// among contributors dominates), summed quantity.
type RolledUpEntitlement struct {
	EntitlementRecord
	SourceCount int
}

// NormalizedSnapshot pairs a snapshot's identity with its normalized rows.
type NormalizedSnapshot struct {
	Ref     SnapshotRef
	Records []EntitlementRecord
}

// SnapshotRollup pairs a snapshot's identity with its rolled-up rows.
// This is the input unit of the Diff Engine and the Expiration Classifier.
type SnapshotRollup struct {
	Ref          SnapshotRef
	Entitlements []RolledUpEntitlement
}

// Find returns the rolled-up entry for a product code, or nil.
func (sr SnapshotRollup) Find(category Category, code string) *RolledUpEntitlement {
	for i := range sr.Entitlements {
		e := &sr.Entitlements[i]
		if e.Category == category && e.ProductCode == code {
			return e
		}
	}
	return nil
}

// =============================================================================
// DIFF RESULT - Snapshot-to-snapshot comparison
// =============================================================================

// DiffResult classifies every product code present in either snapshot as
// added, removed, or unchanged. Date or quantity changes alone do not count
// as removal+addition. The three sets partition the union of codes.
type DiffResult struct {
	AccountID AccountID
	Previous  SnapshotRef
	Current   SnapshotRef

	Added     []RolledUpEntitlement // present in current, absent in previous
	Removed   []RolledUpEntitlement // present in previous, absent in current
	Unchanged []RolledUpEntitlement // present in both (current side)
}

// HasRemovals reports whether the later snapshot dropped any product.
func (d DiffResult) HasRemovals() bool { return len(d.Removed) > 0 }

// =============================================================================
// EXPIRATION CLASSIFICATION
// =============================================================================

type ExpirationStatus string

const (
	// StatusAtRisk: coverage ends inside the window and no later snapshot
	// renews or replaces it.
	StatusAtRisk ExpirationStatus = "at_risk"

	// StatusExtended: coverage ends inside the window, but a later snapshot
	// pushes coverage past the window (or makes it indefinite).
	StatusExtended ExpirationStatus = "extended"

	// StatusNotApplicable: coverage ends outside the window, or never ends.
	StatusNotApplicable ExpirationStatus = "not_applicable"
)

// ExpirationRecord classifies one product's coverage against a reference
// date and a lookahead window. Re-derivable purely from the ordered
// snapshot history plus (now, window) — no hidden state.
type ExpirationRecord struct {
	AccountID   AccountID
	ProductCode string
	DisplayName string
	Category    Category

	// EndDate is the coverage end that falls inside the window (nil for
	// NotApplicable records of non-expiring products).
	EndDate *Date
	Status  ExpirationStatus

	// Source is the snapshot whose rolled-up entry holds EndDate.
	Source SnapshotRef

	// ExtendedBy is set when Status is Extended: the later snapshot that
	// raised coverage past the window.
	ExtendedBy *SnapshotRef
}

// ExpirationGroup is the request-level unit of risk display: all records
// whose expiring coverage originates from the same provisioning request.
// The group is AtRisk if ANY member is AtRisk; Extended only when every
// member is individually Extended.
type ExpirationGroup struct {
	AccountID   AccountID
	RequestID   RequestID
	RequestName string
	Timestamp   time.Time
	Status      ExpirationStatus
	Records     []ExpirationRecord
}

// =============================================================================
// CATEGORY SUMMARY - Aggregate over a set of normalized entitlements
// =============================================================================

// AggregationMode selects between cross-snapshot union and independent
// per-snapshot summaries.
type AggregationMode string

const (
	ModeUnion       AggregationMode = "union"
	ModePerSnapshot AggregationMode = "per_snapshot"
)

// CategorySummary aggregates entitlements of one category. In union mode
// SourceMap records, per surviving product code, every snapshot that
// contributed it — this answers "which requests contained this product".
type CategorySummary struct {
	Category Category

	// SnapshotID is set in per-snapshot mode, empty in union mode.
	SnapshotID string

	UniqueProductCount int
	TotalQuantity      decimal.Decimal
	SourceMap          map[string][]SnapshotRef
}
