package convert

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/rowbind/internal/document"
)

var (
	errOutOfRange = errors.New("value out of range")
	errNotBool    = errors.New("not a boolean")
	errNotNumber  = errors.New("not a number")
)

var (
	stringType  = reflect.TypeFor[string]()
	boolType    = reflect.TypeFor[bool]()
	charType    = reflect.TypeFor[Char]()
	bigIntType  = reflect.TypeFor[*big.Int]()
	numericType = reflect.TypeFor[pgtype.Numeric]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	enumIface   = reflect.TypeFor[Enum]()
)

// builtins returns a fresh copy of the built-in converter table.
func builtins() map[reflect.Type]Converter {
	m := map[reflect.Type]Converter{
		stringType:  stringConverter{},
		boolType:    boolConverter{},
		charType:    charConverter{},
		bigIntType:  bigIntConverter{},
		numericType: numericConverter{},
		uuidType:    uuidConverter{},
	}
	for _, t := range []reflect.Type{
		reflect.TypeFor[int](),
		reflect.TypeFor[int8](),
		reflect.TypeFor[int16](),
		reflect.TypeFor[int32](),
		reflect.TypeFor[int64](),
	} {
		m[t] = intConverter{typ: t}
	}
	for _, t := range []reflect.Type{
		reflect.TypeFor[uint](),
		reflect.TypeFor[uint8](),
		reflect.TypeFor[uint16](),
		reflect.TypeFor[uint32](),
		reflect.TypeFor[uint64](),
	} {
		m[t] = uintConverter{typ: t}
	}
	for _, t := range []reflect.Type{
		reflect.TypeFor[float32](),
		reflect.TypeFor[float64](),
	} {
		m[t] = floatConverter{typ: t}
	}
	for t, c := range temporalConverters() {
		m[t] = c
	}
	return m
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

type stringConverter struct{}

func (stringConverter) FromCell(value any, ctx Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	s := document.Text(value)
	if ctx.Trim {
		s = strings.TrimSpace(s)
	}
	return s, nil
}

func (stringConverter) ToCell(value any) (any, error) {
	return value, nil
}

type charConverter struct{}

func (charConverter) FromCell(value any, ctx Context) (any, error) {
	switch v := value.(type) {
	case Char:
		return v, nil
	case rune:
		return Char(v), nil
	}
	if value == nil {
		return nil, nil
	}
	s := fmt.Sprint(value)
	if ctx.Trim {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, nil
	}
	r, _ := utf8.DecodeRuneInString(s)
	return Char(r), nil
}

func (charConverter) ToCell(value any) (any, error) {
	if c, ok := value.(Char); ok {
		return c.String(), nil
	}
	return fmt.Sprint(value), nil
}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

type boolConverter struct{}

func (boolConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case int, int8, int16, int32, int64:
		return reflect.ValueOf(v).Int() != 0, nil
	case float32, float64:
		return reflect.ValueOf(v).Float() != 0, nil
	}

	switch strings.ToLower(text(value)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	}
	return nil, conversionError(boolType, value, errNotBool)
}

func (boolConverter) ToCell(value any) (any, error) {
	return value, nil
}

// ---------------------------------------------------------------------------
// Integers
// ---------------------------------------------------------------------------

// intConverter serves every signed integer width. Strings are parsed as
// numbers and truncated toward zero.
type intConverter struct {
	typ reflect.Type
}

func (c intConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}

	n, err := c.toInt64(value)
	if err != nil {
		return nil, conversionError(c.typ, value, err)
	}

	bits := c.typ.Bits()
	if bits < 64 {
		lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return nil, conversionError(c.typ, value, errOutOfRange)
		}
	}

	out := reflect.New(c.typ).Elem()
	out.SetInt(n)
	return out.Interface(), nil
}

func (c intConverter) toInt64(value any) (int64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, errOutOfRange
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return truncate(rv.Float())
	}

	s := text(value)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotNumber
	}
	return truncate(f)
}

func (intConverter) ToCell(value any) (any, error) {
	return value, nil
}

// uintConverter serves every unsigned integer width. Negative input is out
// of range; fractions are truncated toward zero first.
type uintConverter struct {
	typ reflect.Type
}

func (c uintConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}

	n, err := c.toUint64(value)
	if err != nil {
		return nil, conversionError(c.typ, value, err)
	}
	if bits := c.typ.Bits(); bits < 64 && n > uint64(1)<<bits-1 {
		return nil, conversionError(c.typ, value, errOutOfRange)
	}

	out := reflect.New(c.typ).Elem()
	out.SetUint(n)
	return out.Interface(), nil
}

func (c uintConverter) toUint64(value any) (uint64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, errOutOfRange
		}
		return uint64(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return truncateUnsigned(rv.Float())
	}

	s := text(value)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotNumber
	}
	return truncateUnsigned(f)
}

func (uintConverter) ToCell(value any) (any, error) {
	return value, nil
}

func truncateUnsigned(f float64) (uint64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	f = math.Trunc(f)
	if f < 0 || f >= math.MaxUint64 {
		return 0, errOutOfRange
	}
	return uint64(f), nil
}

// truncate narrows f toward zero, failing when it cannot fit an int64.
func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	f = math.Trunc(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errOutOfRange
	}
	return int64(f), nil
}

// ---------------------------------------------------------------------------
// Floating point
// ---------------------------------------------------------------------------

type floatConverter struct {
	typ reflect.Type
}

func (c floatConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}

	var f float64
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	default:
		parsed, err := strconv.ParseFloat(text(value), c.typ.Bits())
		if err != nil {
			return nil, conversionError(c.typ, value, errNotNumber)
		}
		f = parsed
	}

	if c.typ.Bits() == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return nil, conversionError(c.typ, value, errOutOfRange)
	}

	out := reflect.New(c.typ).Elem()
	out.SetFloat(f)
	return out.Interface(), nil
}

func (floatConverter) ToCell(value any) (any, error) {
	return value, nil
}

// ---------------------------------------------------------------------------
// Arbitrary precision
// ---------------------------------------------------------------------------

type bigIntConverter struct{}

func (bigIntConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case int, int8, int16, int32, int64:
		return big.NewInt(reflect.ValueOf(v).Int()), nil
	}

	s := text(value)
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return n, nil
	}
	if exponentTooLarge(s) {
		return nil, conversionError(bigIntType, value, errOutOfRange)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, conversionError(bigIntType, value, errNotNumber)
	}
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// maxExponent bounds scientific notation so a short cell cannot expand
// into a huge integer.
const maxExponent = 4096

func exponentTooLarge(s string) bool {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return false
	}
	exp, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return false
	}
	return exp > maxExponent || exp < -maxExponent
}

func (bigIntConverter) ToCell(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *big.Int:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	default:
		return fmt.Sprint(value), nil
	}
}

// numericConverter maps decimal text onto pgtype.Numeric, the decimal type
// the storage layer writes without loss.
type numericConverter struct{}

func (numericConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	if n, ok := value.(pgtype.Numeric); ok {
		return n, nil
	}

	var n pgtype.Numeric
	if err := n.Scan(text(value)); err != nil {
		return nil, conversionError(numericType, value, err)
	}
	return n, nil
}

func (numericConverter) ToCell(value any) (any, error) {
	n, ok := value.(pgtype.Numeric)
	if !ok {
		return value, nil
	}
	if !n.Valid {
		return nil, nil
	}
	v, err := n.Value()
	if err != nil {
		return nil, conversionError(numericType, value, err)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// UUID
// ---------------------------------------------------------------------------

type uuidConverter struct{}

func (uuidConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	if u, ok := value.(uuid.UUID); ok {
		return u, nil
	}
	u, err := uuid.Parse(text(value))
	if err != nil {
		return nil, conversionError(uuidType, value, err)
	}
	return u, nil
}

func (uuidConverter) ToCell(value any) (any, error) {
	if u, ok := value.(uuid.UUID); ok {
		return u.String(), nil
	}
	return value, nil
}

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// isEnum reports whether t, or a pointer to t, implements Enum and has a
// string or integer underlying kind.
func isEnum(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return false
	}
	return t.Implements(enumIface) || reflect.PointerTo(t).Implements(enumIface)
}

// enumConverter matches cell text against an enum's names, ignoring case.
// Integer enums are set to the index of the matching name.
type enumConverter struct {
	typ   reflect.Type
	names []string
	index map[string]int
}

func newEnumConverter(t reflect.Type) *enumConverter {
	var e Enum
	if t.Implements(enumIface) {
		e = reflect.New(t).Elem().Interface().(Enum)
	} else {
		e = reflect.New(t).Interface().(Enum)
	}

	names := e.EnumValues()
	index := make(map[string]int, len(names))
	for i, name := range names {
		key := strings.ToLower(name)
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return &enumConverter{typ: t, names: names, index: index}
}

func (c *enumConverter) FromCell(value any, _ Context) (any, error) {
	if isBlank(value) {
		return nil, nil
	}
	if reflect.TypeOf(value) == c.typ {
		return value, nil
	}

	i, ok := c.index[strings.ToLower(text(value))]
	if !ok {
		return nil, conversionError(c.typ, value, fmt.Errorf("expected one of %s", strings.Join(c.names, ", ")))
	}

	out := reflect.New(c.typ).Elem()
	if c.typ.Kind() == reflect.String {
		out.SetString(c.names[i])
	} else {
		out.SetInt(int64(i))
	}
	return out.Interface(), nil
}

func (c *enumConverter) ToCell(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	i := rv.Int()
	if i < 0 || int(i) >= len(c.names) {
		return nil, conversionError(c.typ, value, errOutOfRange)
	}
	return c.names[i], nil
}
