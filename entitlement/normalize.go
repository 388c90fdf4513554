/*
normalize.go - Payload to EntitlementRecord extraction

PURPOSE:
  Converts a raw snapshot payload (arbitrary provider JSON) into a
  canonical list of typed entitlement records. Provisioning payloads are
  inconsistent across request types and provider versions: section names,
  code fields and date fields all vary. Rather than duck-typed access,
  extraction follows an explicit contract of ordered candidate field
  names per logical attribute; the first match wins and absence is a
  well-defined "unknown", never a panic or an error.

EXTRACTION CONTRACT:
  Sections (per category, first present array wins):
    model: model_entitlements, modelEntitlements, models
    data:  data_entitlements,  dataEntitlements,  data
    app:   app_entitlements,   appEntitlements,   apps
  Sections are searched at the top level first, then one level below
  known wrapper keys (entitlements, payload, details).

  Per entry:
    product code: product_code, productCode, code, sku
                  (fallback: display-name candidates)
    display name: display_name, displayName, product_name, productName, name, label
    start date:   start_date, startDate, start, effective_date, effectiveDate, valid_from
    end date:     end_date, endDate, end, expiration_date, expirationDate, valid_to
    quantity:     quantity, seats, units

FAILURE MODES:
  - Payload not parseable at all -> PayloadParseError (caller skips snapshot)
  - Unparsable date             -> WarnMalformedDate, record kept, date absent
  - No code and no name         -> WarnAmbiguousGrouping, entry dropped
  - start > end                 -> WarnInvertedDates, record kept as given

OUTPUT ORDER:
  Category order is Model, Data, App; within a category, input order is
  preserved.

SEE ALSO:
  - types.go: EntitlementRecord
  - errors.go: Warning codes
  - factory/config.go: Extra candidate fields from monitor configuration
*/
package entitlement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CANDIDATE FIELD LISTS
// =============================================================================

var sectionCandidates = map[Category][]string{
	CategoryModel: {"model_entitlements", "modelEntitlements", "models"},
	CategoryData:  {"data_entitlements", "dataEntitlements", "data"},
	CategoryApp:   {"app_entitlements", "appEntitlements", "apps"},
}

// wrapperCandidates are keys a provider may nest the sections under.
var wrapperCandidates = []string{"entitlements", "payload", "details"}

var (
	codeCandidates  = []string{"product_code", "productCode", "code", "sku"}
	nameCandidates  = []string{"display_name", "displayName", "product_name", "productName", "name", "label"}
	startCandidates = []string{"start_date", "startDate", "start", "effective_date", "effectiveDate", "valid_from"}
	endCandidates   = []string{"end_date", "endDate", "end", "expiration_date", "expirationDate", "valid_to"}
	qtyCandidates   = []string{"quantity", "seats", "units"}
)

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer extracts entitlement records from snapshot payloads.
// The zero value is not usable; construct with NewNormalizer.
type Normalizer struct {
	codeFields  []string
	nameFields  []string
	startFields []string
	endFields   []string
	qtyFields   []string
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithExtraCodeFields appends provider-specific product code candidates.
// Extras are tried after the built-in list.
func WithExtraCodeFields(fields ...string) Option {
	return func(n *Normalizer) { n.codeFields = append(n.codeFields, fields...) }
}

// WithExtraDateFields appends provider-specific start/end date candidates.
func WithExtraDateFields(start, end []string) Option {
	return func(n *Normalizer) {
		n.startFields = append(n.startFields, start...)
		n.endFields = append(n.endFields, end...)
	}
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		codeFields:  append([]string{}, codeCandidates...),
		nameFields:  append([]string{}, nameCandidates...),
		startFields: append([]string{}, startCandidates...),
		endFields:   append([]string{}, endCandidates...),
		qtyFields:   append([]string{}, qtyCandidates...),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts a snapshot's raw payload into entitlement records.
// Missing or empty sections are tolerated; a structurally unreadable
// payload fails with PayloadParseError naming the snapshot.
func (n *Normalizer) Normalize(snap Snapshot) ([]EntitlementRecord, []Warning, error) {
	if len(snap.RawPayload) == 0 {
		return nil, nil, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(snap.RawPayload, &doc); err != nil {
		return nil, nil, &PayloadParseError{
			SnapshotID: snap.ID,
			AccountID:  snap.AccountID,
			Cause:      err,
		}
	}

	var (
		records  []EntitlementRecord
		warnings []Warning
	)

	for _, category := range Categories() {
		entries := n.locateSection(doc, category)
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			record, warns, ok := n.extractRecord(snap, category, entry)
			warnings = append(warnings, warns...)
			if ok {
				records = append(records, record)
			}
		}
	}

	return records, warnings, nil
}

// locateSection finds the entry array for a category: top level first,
// then one level under the known wrapper keys.
func (n *Normalizer) locateSection(doc map[string]any, category Category) []any {
	if entries := sectionIn(doc, category); entries != nil {
		return entries
	}
	for _, wrapper := range wrapperCandidates {
		if nested, ok := doc[wrapper].(map[string]any); ok {
			if entries := sectionIn(nested, category); entries != nil {
				return entries
			}
		}
	}
	return nil
}

func sectionIn(doc map[string]any, category Category) []any {
	for _, key := range sectionCandidates[category] {
		if entries, ok := doc[key].([]any); ok {
			return entries
		}
	}
	return nil
}

// extractRecord builds one EntitlementRecord from a payload entry.
// Returns ok=false when the entry has no usable identity.
func (n *Normalizer) extractRecord(snap Snapshot, category Category, entry map[string]any) (EntitlementRecord, []Warning, bool) {
	var warnings []Warning

	code, _ := firstString(entry, n.codeFields)
	name, _ := firstString(entry, n.nameFields)
	if code == "" {
		// Name is identity of last resort.
		code = name
	}
	if strings.TrimSpace(code) == "" {
		warnings = append(warnings, Warning{
			Code:       WarnAmbiguousGrouping,
			SnapshotID: snap.ID,
			AccountID:  snap.AccountID,
			Category:   category,
			Detail:     "entry has no product code or name in any candidate field",
		})
		return EntitlementRecord{}, warnings, false
	}

	record := EntitlementRecord{
		ProductCode: NormalizeCode(code),
		DisplayName: strings.TrimSpace(name),
		Category:    category,
	}

	record.StartDate, warnings = n.extractDate(snap, category, entry, n.startFields, warnings)
	record.EndDate, warnings = n.extractDate(snap, category, entry, n.endFields, warnings)

	if record.StartDate != nil && record.EndDate != nil && record.StartDate.After(*record.EndDate) {
		// Data-quality finding, not fatal: the record is emitted as given.
		warnings = append(warnings, Warning{
			Code:       WarnInvertedDates,
			SnapshotID: snap.ID,
			AccountID:  snap.AccountID,
			Category:   category,
			Field:      record.ProductCode,
			Detail: fmt.Sprintf("start %s after end %s",
				record.StartDate, record.EndDate),
		})
	}

	record.Quantity = extractQuantity(entry, n.qtyFields)

	return record, warnings, true
}

func (n *Normalizer) extractDate(snap Snapshot, category Category, entry map[string]any, fields []string, warnings []Warning) (*Date, []Warning) {
	raw, field := firstString(entry, fields)
	if raw == "" {
		return nil, warnings
	}
	d, ok := ParseDate(raw)
	if !ok {
		warnings = append(warnings, Warning{
			Code:       WarnMalformedDate,
			SnapshotID: snap.ID,
			AccountID:  snap.AccountID,
			Category:   category,
			Field:      field,
			Value:      raw,
			Detail:     "unparsable date, emitted as absent",
		})
		return nil, warnings
	}
	return &d, warnings
}

// =============================================================================
// FIELD RESOLUTION HELPERS
// =============================================================================

// NormalizeCode canonicalizes a product code: trimmed, upper-cased.
// Display names may differ in case/spacing but are never identity-bearing.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// firstString resolves an attribute by its ordered candidate fields and
// returns the value plus the field that matched.
func firstString(entry map[string]any, fields []string) (string, string) {
	for _, field := range fields {
		v, ok := entry[field]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), field
			}
		case float64:
			// Some providers emit numeric codes.
			return decimal.NewFromFloat(s).String(), field
		}
	}
	return "", ""
}

// extractQuantity resolves a seat/unit count; zero when absent or invalid.
func extractQuantity(entry map[string]any, fields []string) decimal.Decimal {
	for _, field := range fields {
		switch v := entry[field].(type) {
		case float64:
			return decimal.NewFromFloat(v)
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}
