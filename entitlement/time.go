package entitlement

import (
	"strings"
	"time"
)

// =============================================================================
// DATE - Day-granularity coverage boundary
// =============================================================================

// Date is a calendar day in UTC. Coverage intervals in provisioning
// payloads are day-granular; time-of-day never carries meaning here.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format("2006-01-02") }

// JSON: dates travel as plain "2006-01-02" strings on the wire and in
// persisted caches.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

// DaysBetween returns the whole days from one date to another.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// minDate / maxDate operate on optional dates; nil loses to any value for
// min and (by the indefinite-dominates rule, handled in rollup.go) is never
// passed to maxDate.
func minDate(a, b *Date) *Date {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}

func maxDate(a, b *Date) *Date {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}

// =============================================================================
// WINDOW - Inclusive lookahead interval for expiration checks
// =============================================================================

// Window is the inclusive [Now, Now+Days] interval the Expiration
// Classifier checks coverage ends against. Common presets: 7/30/60/90.
type Window struct {
	Now  Date
	Days int
}

func NewWindow(now Date, days int) Window { return Window{Now: now, Days: days} }

// End returns the inclusive far edge of the window.
func (w Window) End() Date { return w.Now.AddDays(w.Days) }

// Contains reports whether a coverage end falls inside the window.
// Both bounds are inclusive. A nil end (non-expiring) is never inside.
func (w Window) Contains(end *Date) bool {
	if end == nil {
		return false
	}
	return end.AfterOrEqual(w.Now) && end.BeforeOrEqual(w.End())
}

// Cleared reports whether a coverage end lies beyond the window: strictly
// after the far edge, or absent (indefinite).
func (w Window) Cleared(end *Date) bool {
	return end == nil || end.After(w.End())
}

// =============================================================================
// DATE PARSING - Tolerant, candidate-layout based
// =============================================================================

// dateLayouts are the layouts accepted for payload date fields, tried in
// order. Providers are inconsistent; the first match wins.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate parses a payload date string. The result is truncated to day
// granularity regardless of the source layout.
func ParseDate(s string) (Date, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}
