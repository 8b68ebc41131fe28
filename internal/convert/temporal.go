package convert

import (
	"fmt"
	"reflect"
	"time"
)

// Default layouts applied when neither the field nor the configuration
// names one.
const (
	DefaultDateLayout     = "2006-01-02"
	DefaultDateTimeLayout = "2006-01-02 15:04:05"
	DefaultTimeLayout     = "15:04:05"
)

const (
	isoDate        = "2006-01-02"
	isoDateTime    = "2006-01-02T15:04:05"
	isoDateTimeOut = "2006-01-02T15:04:05.999999999"
	isoTime        = "15:04:05"
	isoTimeShort   = "15:04"
	isoTimeOut     = "15:04:05.999999999"
)

var (
	dateType      = reflect.TypeFor[Date]()
	dateTimeType  = reflect.TypeFor[DateTime]()
	timeOfDayType = reflect.TypeFor[TimeOfDay]()
	instantType   = reflect.TypeFor[Instant]()
	timeType      = reflect.TypeFor[time.Time]()
)

// temporal converts between cell text and one temporal type. layouts
// returns the string layouts to try, in order, for a conversion context.
type temporal struct {
	typ     reflect.Type
	layouts func(ctx Context) []string
	build   func(t time.Time) any
}

func (c temporal) FromCell(value any, ctx Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	if t, ok := nativeTime(value); ok {
		return c.build(t), nil
	}
	s, ok := value.(string)
	if !ok {
		if st, isStringer := value.(fmt.Stringer); isStringer {
			s = st.String()
		} else {
			return nil, conversionError(c.typ, value, ErrUnsupportedValue)
		}
	}
	s = text(s)

	var lastErr error
	for _, layout := range c.layouts(ctx) {
		if layout == "" {
			continue
		}
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return c.build(t), nil
		}
		lastErr = err
	}
	return nil, conversionError(c.typ, value, lastErr)
}

// ToCell keeps the typed value so a sink can write a native date cell.
// Text sinks render it through its String method.
func (c temporal) ToCell(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	t, ok := nativeTime(value)
	if !ok {
		return nil, conversionError(c.typ, value, ErrUnsupportedValue)
	}
	return c.build(t), nil
}

// nativeTime extracts the instant carried by any temporal value.
func nativeTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case Date:
		return x.Time, true
	case DateTime:
		return x.Time, true
	case TimeOfDay:
		return x.Time, true
	case Instant:
		return x.Time, true
	default:
		return time.Time{}, false
	}
}

func temporalConverters() map[reflect.Type]Converter {
	return map[reflect.Type]Converter{
		dateType: temporal{
			typ: dateType,
			layouts: func(ctx Context) []string {
				return []string{ctx.FormatOr(orDefault(ctx.DateFormat, DefaultDateLayout)), isoDate}
			},
			build: func(t time.Time) any {
				return NewDate(t.Year(), t.Month(), t.Day())
			},
		},
		dateTimeType: temporal{
			typ: dateTimeType,
			layouts: func(ctx Context) []string {
				return []string{ctx.FormatOr(orDefault(ctx.DateTimeFormat, DefaultDateTimeLayout)), isoDateTime}
			},
			build: func(t time.Time) any {
				return NewDateTime(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
			},
		},
		timeOfDayType: temporal{
			typ: timeOfDayType,
			layouts: func(ctx Context) []string {
				return []string{ctx.FormatOr(orDefault(ctx.TimeFormat, DefaultTimeLayout)), isoTime, isoTimeShort}
			},
			build: func(t time.Time) any {
				return NewTimeOfDay(t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
			},
		},
		instantType: temporal{
			typ:     instantType,
			layouts: zonedLayouts,
			build: func(t time.Time) any {
				return NewInstant(t)
			},
		},
		timeType: temporal{
			typ:     timeType,
			layouts: zonedLayouts,
			build: func(t time.Time) any {
				return t
			},
		},
	}
}

// zonedLayouts lists layouts for zoned values. Text without an offset is
// read as UTC.
func zonedLayouts(ctx Context) []string {
	return []string{ctx.Format, time.RFC3339Nano, isoDateTime, orDefault(ctx.DateTimeFormat, DefaultDateTimeLayout)}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
