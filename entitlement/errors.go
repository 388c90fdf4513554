/*
errors.go - Centralized error and warning types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The engine distinguishes hard failures (returned as errors) from
  data-quality findings (returned as Warning values, never errors).

ERROR CATEGORIES:
  1. Payload errors  - A snapshot's raw payload is structurally unreadable
  2. Ordering errors - Diff inputs without a resolvable chronological order
  3. Store errors    - Missing accounts/snapshots

PROPAGATION POLICY:
  Normalization and rollup recover locally (skip-and-warn) so one corrupt
  historical record never blocks an entire account's timeline. Ordering
  errors surface to the caller because they signal an upstream bug that
  must not be silently masked.

USAGE:
  if errors.Is(err, entitlement.ErrUnorderedInput) {
      // upstream ordering bug, fail this diff only
  }

SEE ALSO:
  - normalize.go: Emits PayloadParseError and date warnings
  - diff.go: Emits UnorderedInputError
*/
package entitlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPayloadParse is returned when a snapshot's raw payload cannot be
	// interpreted as structured data at all. The snapshot is skipped for
	// normalization; the batch continues.
	ErrPayloadParse = errors.New("payload not parseable")

	// ErrUnorderedInput is returned when the Diff Engine is given snapshots
	// without a resolvable chronological order. Fatal to that diff only.
	ErrUnorderedInput = errors.New("snapshots have no resolvable order")

	// ErrAccountNotFound is returned when a referenced account has no
	// snapshot history.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSnapshotNotFound is returned when a referenced snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidWindow is returned for non-positive lookahead windows.
	ErrInvalidWindow = errors.New("invalid window: days must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PayloadParseError names the snapshot whose payload was unreadable.
type PayloadParseError struct {
	SnapshotID string
	AccountID  AccountID
	Cause      error
}

func (e *PayloadParseError) Error() string {
	return fmt.Sprintf("snapshot %s (account %s): payload not parseable: %v",
		e.SnapshotID, e.AccountID, e.Cause)
}

func (e *PayloadParseError) Unwrap() error { return ErrPayloadParse }

// UnorderedInputError describes two snapshots whose direction could not be
// established: equal timestamps with no usable tie-break, or a previous
// snapshot that is strictly later than the current one.
type UnorderedInputError struct {
	Previous SnapshotRef
	Current  SnapshotRef
	Detail   string
}

func (e *UnorderedInputError) Error() string {
	return fmt.Sprintf("diff %s -> %s: %s",
		e.Previous.ID, e.Current.ID, e.Detail)
}

func (e *UnorderedInputError) Unwrap() error { return ErrUnorderedInput }

// =============================================================================
// WARNINGS - Data-quality findings, never fatal
// =============================================================================

type WarningCode string

const (
	// WarnMalformedDate: a date field was present but unparsable. The
	// record is still emitted with that date absent.
	WarnMalformedDate WarningCode = "malformed_date"

	// WarnAmbiguousGrouping: an entry carried no usable product code in
	// any candidate field. The entry is dropped.
	WarnAmbiguousGrouping WarningCode = "ambiguous_grouping"

	// WarnInvertedDates: startDate > endDate. The record is still emitted
	// with dates as given.
	WarnInvertedDates WarningCode = "inverted_dates"
)

// Warning records one data-quality finding against a snapshot. Warnings
// are values, not errors: callers decide whether to log or surface them.
type Warning struct {
	Code       WarningCode
	SnapshotID string
	AccountID  AccountID
	Category   Category
	Field      string
	Value      string
	Detail     string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: snapshot %s category %s field %q value %q: %s",
		w.Code, w.SnapshotID, w.Category, w.Field, w.Value, w.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnorderedInput) ||
		errors.Is(err, ErrInvalidWindow)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}
