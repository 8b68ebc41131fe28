// Package document defines the row-oriented view the mapping engine has of
// a tabular document, independent of the codec that produced it.
package document

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Row answers what the raw value at column i is and how many columns the
// row has. Value reports false for a column the row does not carry.
type Row interface {
	Len() int
	Value(i int) (any, bool)
}

// Values is a positional row.
type Values []string

// Len implements Row.
func (v Values) Len() int { return len(v) }

// Value implements Row.
func (v Values) Value(i int) (any, bool) {
	if i < 0 || i >= len(v) {
		return nil, false
	}
	return v[i], true
}

// Sparse is a row delivered by an event-driven reader, which only reports
// the cells that hold a value.
type Sparse struct {
	Cells map[int]any
	Width int
}

// Len implements Row.
func (s Sparse) Len() int { return s.Width }

// Value implements Row.
func (s Sparse) Value(i int) (any, bool) {
	v, ok := s.Cells[i]
	return v, ok
}

// CellFunc adapts an index-addressable row accessor.
type CellFunc struct {
	N  int
	Fn func(i int) (any, bool)
}

// Len implements Row.
func (c CellFunc) Len() int { return c.N }

// Value implements Row.
func (c CellFunc) Value(i int) (any, bool) {
	if i < 0 || i >= c.N {
		return nil, false
	}
	return c.Fn(i)
}

// Strings copies a row into a positional slice of its cell text.
func Strings(r Row) []string {
	out := make([]string, r.Len())
	for i := range out {
		if v, ok := r.Value(i); ok && v != nil {
			out[i] = Text(v)
		}
	}
	return out
}

// Text renders a raw cell value. Times print as a date when they carry no
// clock and as date and time otherwise.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprint(v)
	}
}

// IsBlank reports whether every cell of r is empty or whitespace.
func IsBlank(r Row) bool {
	for i := 0; i < r.Len(); i++ {
		v, ok := r.Value(i)
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString {
			if strings.TrimSpace(s) != "" {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// EventSource delivers rows one at a time, in document order. Walk stops at
// the first error returned by fn or by the codec and returns it. index is
// the zero-based physical row position.
type EventSource interface {
	Walk(ctx context.Context, fn func(index int, row Row) error) error
	Close() error
}

// Table is a document held in memory with random access to its rows.
type Table interface {
	NumRows() int
	Row(i int) Row
	Close() error
}

// Sink accepts rendered rows, header first.
type Sink interface {
	WriteRow(values []any) error
	Close() error
}
