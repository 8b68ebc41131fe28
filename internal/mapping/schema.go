package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/rowbind/internal/convert"
)

// TagName is the struct tag read for mapping metadata.
const TagName = "sheet"

// Field describes one mapped struct field. It is immutable once built.
type Field struct {
	Name          string // Go field name
	Header        string // Header override, or Name
	Index         int    // Explicit column, -1 to resolve by Header
	Required      bool
	Default       string // Substituted for a blank cell before conversion
	Format        string // Layout consulted by temporal converters
	Width         int    // Column width on write, 0 for the codec default
	ConverterName string
	Converter     convert.Converter // Per-field override, nil for the registry
	Type          reflect.Type

	path []int
}

// HasDefault reports whether the field declares a default value.
func (f *Field) HasDefault() bool {
	return f.Default != ""
}

// Schema is the ordered field list of one record type.
type Schema struct {
	Type   reflect.Type
	Fields []*Field

	byName map[string]*Field
}

// Field returns the field whose header or Go name matches name, ignoring case.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[strings.ToLower(name)]
	return f, ok
}

// Headers returns the header of every field in schema order.
func (s *Schema) Headers() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Header
	}
	return out
}

// Instantiate returns a pointer to a new zero record.
func (s *Schema) Instantiate() reflect.Value {
	return reflect.New(s.Type)
}

// Values returns the field values of rec in schema order. Nil pointers and
// fields behind a nil embedded pointer are reported as nil; other pointers
// are dereferenced.
func (s *Schema) Values(rec any) ([]any, error) {
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
			fv = fv.Elem()
		}
		out[i] = fv.Interface()
	}
	return out, nil
}

// record dereferences rec and checks it has the schema's type.
func (s *Schema) record(rec any) (reflect.Value, error) {
	rv := reflect.ValueOf(rec)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s record", s.Type)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != s.Type {
		return reflect.Value{}, fmt.Errorf("record is %T, schema is %s", rec, s.Type)
	}
	return rv, nil
}

// Cache builds record schemas once per type and hands out the shared
// result. Hits take no lock; concurrent first builds of one type collapse
// into a single build.
type Cache struct {
	reg     *convert.Registry
	schemas atomic.Pointer[sync.Map] // reflect.Type -> *Schema
	group   singleflight.Group
}

// NewCache returns an empty cache whose custom converters come from reg.
func NewCache(reg *convert.Registry) *Cache {
	c := &Cache{reg: reg}
	c.schemas.Store(&sync.Map{})
	return c
}

// Get returns the schema for t, building it on first use. Pointer types
// resolve to their element type. Build failures are not cached.
func (c *Cache) Get(t reflect.Type) (*Schema, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, &ConfigError{Type: t, Err: errors.New("record type must be a struct")}
	}

	if s, ok := c.schemas.Load().Load(t); ok {
		return s.(*Schema), nil
	}

	key := strconv.FormatUint(uint64(reflect.ValueOf(t).Pointer()), 16)
	v, err, _ := c.group.Do(key, func() (any, error) {
		table := c.schemas.Load()
		if s, ok := table.Load(t); ok {
			return s, nil
		}
		s, err := c.build(t)
		if err != nil {
			return nil, err
		}
		table.Store(t, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// SchemaOf returns the schema for T.
func SchemaOf[T any](c *Cache) (*Schema, error) {
	return c.Get(reflect.TypeFor[T]())
}

// Clear evicts every cached schema.
func (c *Cache) Clear() {
	c.schemas.Store(&sync.Map{})
}

func (c *Cache) build(t reflect.Type) (*Schema, error) {
	s := &Schema{Type: t, byName: make(map[string]*Field)}
	seen := make(map[string]bool)
	if err := c.collect(s, t, nil, seen); err != nil {
		return nil, err
	}

	for _, f := range s.Fields {
		putFieldIfAbsent(s.byName, strings.ToLower(f.Header), f)
		putFieldIfAbsent(s.byName, strings.ToLower(f.Name), f)
	}
	return s, nil
}

// collect appends the fields of t, then the promoted fields of its
// embedded structs. A name already taken by an outer field is shadowed.
func (c *Cache) collect(s *Schema, t reflect.Type, prefix []int, seen map[string]bool) error {
	var embedded []reflect.StructField

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		if sf.Anonymous && embeddable(sf.Type, c.reg) && !hasTag {
			if sf.Type.Kind() == reflect.Pointer && !sf.IsExported() {
				continue
			}
			embedded = append(embedded, sf)
			continue
		}
		if !sf.IsExported() || unmappable(sf.Type) {
			continue
		}
		if seen[sf.Name] {
			continue
		}
		seen[sf.Name] = true

		f, err := c.field(t, sf, tag)
		if err != nil {
			return err
		}
		f.path = append(append([]int(nil), prefix...), sf.Index...)
		s.Fields = append(s.Fields, f)
	}

	for _, sf := range embedded {
		et := sf.Type
		if et.Kind() == reflect.Pointer {
			et = et.Elem()
		}
		path := append(append([]int(nil), prefix...), sf.Index...)
		if err := c.collect(s, et, path, seen); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) field(owner reflect.Type, sf reflect.StructField, tag string) (*Field, error) {
	f := &Field{
		Name:   sf.Name,
		Header: sf.Name,
		Index:  -1,
		Type:   sf.Type,
	}

	opts, err := parseTag(tag)
	if err != nil {
		return nil, &ConfigError{Type: owner, Field: sf.Name, Err: err}
	}
	if opts.header != "" {
		f.Header = opts.header
	}
	f.Required = opts.required
	f.Default = opts.def
	f.Format = opts.format
	f.Width = opts.width
	if opts.hasIndex {
		f.Index = opts.index
	}

	if opts.converter != "" {
		f.ConverterName = opts.converter
		factory, ok := c.reg.Factory(opts.converter)
		if !ok {
			return nil, &ConfigError{Type: owner, Field: sf.Name, Converter: opts.converter, Err: errors.New("converter not registered")}
		}
		conv, err := factory()
		if err != nil {
			return nil, &ConfigError{Type: owner, Field: sf.Name, Converter: opts.converter, Err: err}
		}
		if conv == nil {
			return nil, &ConfigError{Type: owner, Field: sf.Name, Converter: opts.converter, Err: errors.New("factory returned nil")}
		}
		f.Converter = conv
	}
	return f, nil
}

type tagOptions struct {
	header    string
	index     int
	hasIndex  bool
	required  bool
	def       string
	format    string
	width     int
	converter string
}

var tagKeys = map[string]bool{
	"index":     true,
	"required":  true,
	"default":   true,
	"format":    true,
	"width":     true,
	"converter": true,
}

// parseTag reads `Header,index=N,required,default=x,format=layout,width=N,converter=name`.
// A segment that does not start with a known key continues the previous
// value, so layouts such as "Jan 2, 2006" survive the comma split.
func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "" {
		return opts, nil
	}

	parts := strings.Split(tag, ",")
	opts.header = strings.TrimSpace(parts[0])

	var segments []string
	for _, p := range parts[1:] {
		key, _, _ := strings.Cut(p, "=")
		if tagKeys[strings.TrimSpace(key)] || len(segments) == 0 {
			segments = append(segments, p)
			continue
		}
		segments[len(segments)-1] += "," + p
	}

	for _, seg := range segments {
		key, val, hasVal := strings.Cut(seg, "=")
		key = strings.TrimSpace(key)
		switch key {
		case "required":
			opts.required = true
		case "index":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid index %q", val)
			}
			opts.index, opts.hasIndex = n, true
		case "default":
			opts.def = val
		case "format":
			opts.format = val
		case "width":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid width %q", val)
			}
			opts.width = n
		case "converter":
			opts.converter = strings.TrimSpace(val)
		default:
			return opts, fmt.Errorf("unknown tag option %q", key)
		}
		if key != "required" && !hasVal {
			return opts, fmt.Errorf("tag option %q needs a value", key)
		}
	}
	return opts, nil
}

// embeddable reports whether an anonymous field should be flattened rather
// than mapped as a single value.
func embeddable(t reflect.Type, reg *convert.Registry) bool {
	if reg.Has(t) {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && !reg.Has(t)
}

func unmappable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

func putFieldIfAbsent(m map[string]*Field, key string, f *Field) {
	if _, exists := m[key]; !exists {
		m[key] = f
	}
}
