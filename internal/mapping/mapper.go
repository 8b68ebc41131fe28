package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/document"
)

// Binding pairs a field with its column in one document.
type Binding struct {
	Field  *Field
	Column int
	Header string // Header text at Column, or the field header when the row has none
}

// ResolveFields binds every field of s that has a column in r. Fields
// with an explicit index keep it; fields that resolve to nothing are dropped.
func ResolveFields(s *Schema, r *Resolver) []Binding {
	return Aliases(nil).ResolveFields(s, r)
}

// Options controls how raw cells become field values.
type Options struct {
	Trim           bool
	SkipEmptyRows  bool
	DateFormat     string
	DateTimeFormat string
	TimeFormat     string
}

// DefaultOptions returns trimming and empty-row skipping with the default
// temporal layouts.
func DefaultOptions() Options {
	return Options{
		Trim:           true,
		SkipEmptyRows:  true,
		DateFormat:     convert.DefaultDateLayout,
		DateTimeFormat: convert.DefaultDateTimeLayout,
		TimeFormat:     convert.DefaultTimeLayout,
	}
}

// Mapper maps rows onto records and records back onto rows.
type Mapper struct {
	Registry *convert.Registry
	Options  Options
}

// NewMapper returns a mapper using reg for type conversion.
func NewMapper(reg *convert.Registry, opts Options) *Mapper {
	return &Mapper{Registry: reg, Options: opts}
}

// MapRow populates a new record from row. rowNum is the 1-based data row
// reported in errors. The returned value is a pointer to the record, or the
// zero Value when the row is blank and blank rows are skipped.
func (m *Mapper) MapRow(s *Schema, bindings []Binding, row document.Row, rowNum int) (reflect.Value, error) {
	if m.Options.SkipEmptyRows && document.IsBlank(row) {
		return reflect.Value{}, nil
	}

	rec := s.Instantiate()
	for _, b := range bindings {
		if err := m.mapCell(rec.Elem(), b, row, rowNum); err != nil {
			var mapErr *MappingError
			if errors.As(err, &mapErr) {
				return reflect.Value{}, err
			}
			return reflect.Value{}, &MappingError{Row: rowNum, Err: err}
		}
	}
	return rec, nil
}

// MapRowAs maps row into a T. ok is false when the row was skipped.
func MapRowAs[T any](m *Mapper, s *Schema, bindings []Binding, row document.Row, rowNum int) (rec T, ok bool, err error) {
	v, err := m.MapRow(s, bindings, row, rowNum)
	if err != nil || !v.IsValid() {
		return rec, false, err
	}
	return v.Elem().Interface().(T), true, nil
}

func (m *Mapper) mapCell(rec reflect.Value, b Binding, row document.Row, rowNum int) error {
	f := b.Field

	raw, ok := row.Value(b.Column)
	if !ok {
		raw = nil
	}
	if s, isString := raw.(string); isString && m.Options.Trim {
		raw = strings.TrimSpace(s)
	}

	if blankValue(raw) {
		if f.Required {
			return &MappingError{Row: rowNum, Column: b.Header, Value: raw, Err: ErrRequired}
		}
		if !f.HasDefault() {
			return nil
		}
		raw = f.Default
	}

	conv := m.converterFor(f)
	value := raw
	if conv != nil {
		ctx := convert.Context{
			Field:          f.Name,
			Type:           f.Type,
			Format:         f.Format,
			Row:            rowNum,
			Column:         b.Header,
			Trim:           m.Options.Trim,
			DateFormat:     m.Options.DateFormat,
			DateTimeFormat: m.Options.DateTimeFormat,
			TimeFormat:     m.Options.TimeFormat,
		}
		v, err := conv.FromCell(raw, ctx)
		if err != nil {
			return err
		}
		value = v
	}
	if value == nil {
		return nil
	}

	dst, err := fieldForSet(rec, f.path)
	if err != nil {
		return err
	}
	return assign(dst, value)
}

// converterFor picks the field override, then the registry entry for the
// field type, then for its pointer element, then for its underlying kind.
func (m *Mapper) converterFor(f *Field) convert.Converter {
	if f.Converter != nil {
		return f.Converter
	}
	return lookup(m.Registry, f.Type)
}

func lookup(reg *convert.Registry, t reflect.Type) convert.Converter {
	if c, ok := reg.Get(t); ok {
		return c
	}
	if t.Kind() == reflect.Pointer {
		return lookup(reg, t.Elem())
	}
	if base, ok := kindTypes[t.Kind()]; ok && base != t {
		if c, ok := reg.Get(base); ok {
			return c
		}
	}
	return nil
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.String:  reflect.TypeFor[string](),
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
}

// CellValues renders rec in schema order for a document sink.
func (m *Mapper) CellValues(s *Schema, rec any) ([]any, error) {
	rv, err := s.record(rec)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		fv, err := rv.FieldByIndexErr(f.path)
		if err != nil {
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			if _, direct := m.Registry.Get(f.Type); !direct && f.Converter == nil {
				fv = fv.Elem()
			}
		}

		v, err := m.cellValue(f, fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func (m *Mapper) cellValue(f *Field, fv reflect.Value) (any, error) {
	if conv := m.converterFor(f); conv != nil {
		return conv.ToCell(fv.Interface())
	}
	if _, basic := kindTypes[fv.Kind()]; basic {
		return fv.Interface(), nil
	}
	return fmt.Sprint(fv.Interface()), nil
}

// fieldForSet walks path, allocating nil embedded pointers on the way.
func fieldForSet(v reflect.Value, path []int) (reflect.Value, error) {
	for i, idx := range path {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, fmt.Errorf("cannot allocate embedded %s", v.Type())
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v, nil
}

// assign stores value into dst, allocating pointers and converting between
// compatible types.
func assign(dst reflect.Value, value any) error {
	vv := reflect.ValueOf(value)
	dt := dst.Type()

	switch {
	case vv.Type().AssignableTo(dt):
		dst.Set(vv)
		return nil
	case dt.Kind() == reflect.Pointer:
		p := reflect.New(dt.Elem())
		if err := assign(p.Elem(), value); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	case dt.Kind() == reflect.String:
		if vv.Kind() == reflect.String {
			dst.SetString(vv.String())
		} else {
			dst.SetString(fmt.Sprint(value))
		}
		return nil
	case vv.Type().ConvertibleTo(dt) && vv.Kind() != reflect.String:
		dst.Set(vv.Convert(dt))
		return nil
	}
	return &convert.ConversionError{Type: dt, Value: value, Err: fmt.Errorf("%s is not assignable", vv.Type())}
}

func blankValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
