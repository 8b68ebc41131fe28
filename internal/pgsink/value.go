package pgsink

import (
	"math/big"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/rowbind/internal/convert"
)

// Value converts a mapped field value into a form the pgx COPY encoder
// accepts. Values pgx already understands pass through unchanged.
func Value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case convert.Date:
		return pgtype.Date{Time: x.Time, Valid: true}
	case convert.DateTime:
		return pgtype.Timestamp{Time: x.Time, Valid: true}
	case convert.Instant:
		return pgtype.Timestamptz{Time: x.Time, Valid: true}
	case convert.TimeOfDay:
		return timeOfDay(x.Time)
	case convert.Char:
		return x.String()
	case *big.Int:
		if x == nil {
			return nil
		}
		return pgtype.Numeric{Int: new(big.Int).Set(x), Valid: true}
	case big.Int:
		return pgtype.Numeric{Int: new(big.Int).Set(&x), Valid: true}
	case convert.Enum:
		return enumName(x)
	}
	return v
}

// Row converts every value of a mapped row.
func Row(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Value(v)
	}
	return out
}

func timeOfDay(t time.Time) pgtype.Time {
	us := int64(t.Hour())*int64(time.Hour/time.Microsecond) +
		int64(t.Minute())*int64(time.Minute/time.Microsecond) +
		int64(t.Second())*int64(time.Second/time.Microsecond) +
		int64(t.Nanosecond())/int64(time.Microsecond)
	return pgtype.Time{Microseconds: us, Valid: true}
}

// enumName stores enums by name. Integer enums index into their names;
// out-of-range values fall back to the number.
func enumName(e convert.Enum) any {
	rv := reflect.ValueOf(e)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		names := e.EnumValues()
		if i := rv.Int(); i >= 0 && i < int64(len(names)) {
			return names[i]
		}
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		names := e.EnumValues()
		if i := rv.Uint(); i < uint64(len(names)) {
			return names[i]
		}
		return rv.Uint()
	}
	return e
}
