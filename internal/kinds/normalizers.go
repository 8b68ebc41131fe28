package kinds

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/rowbind/internal/convert"
)

var moneyType = reflect.TypeFor[pgtype.Numeric]()

// money reads currency amounts such as "$1,299.00" or "(45.10)" into
// pgtype.Numeric. Parentheses mark a negative amount.
type money struct{}

func (money) FromCell(value any, _ convert.Context) (any, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case pgtype.Numeric:
		return v, nil
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if negative {
		s = "-" + s
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, &convert.ConversionError{Type: moneyType, Value: value, Err: err}
	}
	return n, nil
}

func (money) ToCell(value any) (any, error) {
	n, ok := value.(pgtype.Numeric)
	if !ok || !n.Valid {
		return nil, nil
	}
	v, err := n.Value()
	if err != nil {
		return nil, &convert.ConversionError{Type: moneyType, Value: value, Err: err}
	}
	return v, nil
}

// usState normalizes US state names to their two-letter codes. Codes and
// unrecognized values pass through trimmed.
type usState struct{}

func (usState) FromCell(value any, _ convert.Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	s := strings.TrimSpace(fmt.Sprint(value))
	if s == "" {
		return nil, nil
	}
	return NormalizeUSState(s), nil
}

func (usState) ToCell(value any) (any, error) {
	return value, nil
}

// NormalizeUSState converts a US state name to its abbreviation. A code in
// any case is upper-cased; anything else is returned unchanged.
func NormalizeUSState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := stateCodes[strings.ToLower(s)]; ok {
		return code
	}
	if upper := strings.ToUpper(s); validCodes[upper] {
		return upper
	}
	return s
}

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI",
	"south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var validCodes = func() map[string]bool {
	m := make(map[string]bool, len(stateCodes))
	for _, code := range stateCodes {
		m[code] = true
	}
	return m
}()
