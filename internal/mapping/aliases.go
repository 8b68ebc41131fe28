package mapping

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Aliases lists alternative headers per field, keyed by Go field name or
// header (case-insensitive). Alternatives are tried in order before the
// field's own header.
type Aliases map[string][]string

// ResolveFields binds the fields of s like the package-level ResolveFields,
// trying each field's alternative headers first.
func (a Aliases) ResolveFields(s *Schema, r *Resolver) []Binding {
	bindings := make([]Binding, 0, len(s.Fields))
	for _, f := range s.Fields {
		col := f.Index
		if col < 0 {
			for _, alt := range a.lookup(f) {
				if col = r.Resolve(alt); col >= 0 {
					break
				}
			}
		}
		if col < 0 {
			col = r.Resolve(f.Header)
		}
		if col < 0 {
			continue
		}

		header, ok := r.HeaderAt(col)
		if !ok || header == "" {
			header = f.Header
		}
		bindings = append(bindings, Binding{Field: f, Column: col, Header: header})
	}
	return bindings
}

func (a Aliases) lookup(f *Field) []string {
	if len(a) == 0 {
		return nil
	}
	if alts, ok := a[f.Name]; ok {
		return alts
	}
	// Sorted so keys differing only in case resolve the same way every time.
	keys := slices.Sorted(maps.Keys(a))
	for _, key := range keys {
		if strings.EqualFold(key, f.Name) {
			return a[key]
		}
	}
	for _, key := range keys {
		if strings.EqualFold(key, f.Header) {
			return a[key]
		}
	}
	return nil
}

// Overrides holds header aliases for each record kind.
type Overrides struct {
	Kinds map[string]Aliases `yaml:"kinds"`
}

// For returns the aliases for kind, or nil.
func (o *Overrides) For(kind string) Aliases {
	if o == nil {
		return nil
	}
	return o.Kinds[kind]
}

// LoadOverrides reads a YAML overrides file:
//
//	kinds:
//	  product:
//	    Name: ["Item", "Product Title"]
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides %s: %w", path, err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes an overrides document. Field keys of one kind
// must differ in more than case.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	for kind, aliases := range o.Kinds {
		seen := make(map[string]string, len(aliases))
		for _, field := range slices.Sorted(maps.Keys(aliases)) {
			if len(aliases[field]) == 0 {
				return nil, fmt.Errorf("kind %s field %s: no alternative headers", kind, field)
			}
			folded := strings.ToLower(field)
			if prev, dup := seen[folded]; dup {
				return nil, fmt.Errorf("kind %s: fields %s and %s differ only in case", kind, prev, field)
			}
			seen[folded] = field
		}
	}
	return &o, nil
}
