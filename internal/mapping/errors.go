package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrRequired is the cause recorded when a required cell is blank.
var ErrRequired = errors.New("required field is empty")

// ConfigError reports a record type whose schema cannot be built. It is
// raised before any row is read.
type ConfigError struct {
	Type      reflect.Type
	Field     string // Go field name (optional)
	Converter string // Converter factory name (optional)
	Err       error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("schema")
	if e.Type != nil {
		b.WriteString(" " + e.Type.String())
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ", field %s", e.Field)
	}
	if e.Converter != "" {
		fmt.Fprintf(&b, ", converter %q", e.Converter)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MappingError reports a row that could not be mapped into a record.
// Column and Value are empty when the cause carries its own context.
type MappingError struct {
	Row    int    // 1-based data row
	Column string // Resolved header (optional)
	Value  any    // Offending raw value (optional)
	Err    error
}

func (e *MappingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d", e.Row)
	if e.Column != "" {
		fmt.Fprintf(&b, ", column '%s'", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message())
	if e.Value != nil {
		fmt.Fprintf(&b, " (value: %v)", e.Value)
	}
	return b.String()
}

// Message returns the cause without row or column context.
func (e *MappingError) Message() string {
	if e.Err == nil {
		return "mapping failed"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *MappingError) Unwrap() error {
	return e.Err
}
