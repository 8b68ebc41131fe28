package mapping

import (
	"strings"
	"unicode"
)

// Resolver maps field names to column positions within one header row.
//
// A name is looked up exactly, then ignoring case, then normalized (lower
// case with whitespace, underscore and hyphen runs removed). Only the first
// occurrence of a header is indexed at each tier, so duplicates always
// resolve to the lowest position. Empty headers are not indexed.
type Resolver struct {
	headers    []string
	exact      map[string]int
	lower      map[string]int
	normalized map[string]int
}

// NewResolver indexes headers.
func NewResolver(headers []string) *Resolver {
	r := &Resolver{
		headers:    headers,
		exact:      make(map[string]int, len(headers)),
		lower:      make(map[string]int, len(headers)),
		normalized: make(map[string]int, len(headers)),
	}
	for i, h := range headers {
		if h == "" {
			continue
		}
		putIfAbsent(r.exact, h, i)
		putIfAbsent(r.lower, strings.ToLower(h), i)
		if n := normalize(h); n != "" {
			putIfAbsent(r.normalized, n, i)
		}
	}
	return r
}

// Resolve returns the zero-based column for name, or -1.
func (r *Resolver) Resolve(name string) int {
	if name == "" {
		return -1
	}
	if i, ok := r.exact[name]; ok {
		return i
	}
	if i, ok := r.lower[strings.ToLower(name)]; ok {
		return i
	}
	if i, ok := r.normalized[normalize(name)]; ok {
		return i
	}
	return -1
}

// HeaderAt returns the header text at column i.
func (r *Resolver) HeaderAt(i int) (string, bool) {
	if i < 0 || i >= len(r.headers) {
		return "", false
	}
	return r.headers[i], true
}

// Size returns the number of header positions, indexed or not.
func (r *Resolver) Size() int {
	return len(r.headers)
}

// Headers returns the header row the resolver was built from.
func (r *Resolver) Headers() []string {
	return r.headers
}

func putIfAbsent(m map[string]int, key string, i int) {
	if _, exists := m[key]; !exists {
		m[key] = i
	}
}

// normalize lowercases s and drops whitespace, underscores and hyphens.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
