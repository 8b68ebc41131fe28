package convert

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Converter converts one scalar type between its cell form and its Go form.
// Implementations must be stateless and safe for concurrent use.
type Converter interface {
	// FromCell converts a raw cell value. Blank input returns (nil, nil).
	FromCell(value any, ctx Context) (any, error)

	// ToCell converts a typed value to the value handed to a document sink.
	ToCell(value any) (any, error)
}

// Funcs adapts a pair of functions to the Converter interface.
// A nil To returns the value unchanged.
type Funcs struct {
	From func(value any, ctx Context) (any, error)
	To   func(value any) (any, error)
}

// FromCell implements Converter.
func (f Funcs) FromCell(value any, ctx Context) (any, error) {
	return f.From(value, ctx)
}

// ToCell implements Converter.
func (f Funcs) ToCell(value any) (any, error) {
	if f.To == nil {
		return value, nil
	}
	return f.To(value)
}

// Context carries the field metadata and options visible to a conversion.
type Context struct {
	Field  string       // Go field name
	Type   reflect.Type // Target type
	Format string       // Field-level format layout (optional)
	Row    int          // 1-based row number, 0 when unknown
	Column string       // Resolved header text

	Trim           bool   // Trim string values
	DateFormat     string // Default layout for Date
	DateTimeFormat string // Default layout for DateTime
	TimeFormat     string // Default layout for TimeOfDay
}

// FormatOr returns the field format, or def when the field declares none.
func (c Context) FormatOr(def string) string {
	if c.Format != "" {
		return c.Format
	}
	return def
}

// Enum is implemented by named string or integer types whose valid values
// form a closed set. For integer types the value is the index into the
// returned names.
type Enum interface {
	EnumValues() []string
}

// Char is a single character cell value.
type Char rune

// String returns the character as a string.
func (c Char) String() string { return string(rune(c)) }

// Date is a calendar date with no time of day. The embedded time is
// midnight UTC.
type Date struct{ time.Time }

// NewDate returns the Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.Format(isoDate) }

// DateTime is a wall-clock date and time with no zone. The embedded time
// carries the UTC location.
type DateTime struct{ time.Time }

// NewDateTime returns the DateTime for the given wall-clock fields.
func NewDateTime(year int, month time.Month, day, hour, min, sec, nsec int) DateTime {
	return DateTime{time.Date(year, month, day, hour, min, sec, nsec, time.UTC)}
}

// String formats the value in ISO-8601 local form.
func (d DateTime) String() string { return d.Format(isoDateTimeOut) }

// TimeOfDay is a wall-clock time with no date. The embedded time is on
// January 1, year 0, UTC.
type TimeOfDay struct{ time.Time }

// NewTimeOfDay returns the TimeOfDay for the given clock fields.
func NewTimeOfDay(hour, min, sec, nsec int) TimeOfDay {
	return TimeOfDay{time.Date(0, time.January, 1, hour, min, sec, nsec, time.UTC)}
}

// String formats the value as HH:MM:SS with fractional seconds when present.
func (t TimeOfDay) String() string { return t.Format(isoTimeOut) }

// Instant is a point on the UTC time line.
type Instant struct{ time.Time }

// NewInstant returns the Instant for t.
func NewInstant(t time.Time) Instant { return Instant{t.UTC()} }

// String formats the instant as RFC 3339 with nanoseconds.
func (i Instant) String() string { return i.Format(time.RFC3339Nano) }

// isBlank reports whether a raw value counts as empty.
func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return true
		}
		return strings.TrimSpace(x.String()) == ""
	default:
		return false
	}
}

// text returns the trimmed string form of a raw value.
func text(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
