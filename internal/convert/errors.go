package convert

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnsupportedValue is wrapped when a converter receives a raw value of a
// Go type it does not know how to read.
var ErrUnsupportedValue = errors.New("unsupported value type")

// ConversionError reports a raw value that could not be coerced to its
// target type. Row and column context is attached by the caller.
type ConversionError struct {
	Type  reflect.Type // Target type
	Value any          // Raw value as received
	Err   error        // Underlying parse failure (optional)
}

func (e *ConversionError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %q to %s: %v", fmt.Sprint(e.Value), name, e.Err)
	}
	return fmt.Sprintf("cannot convert %q to %s", fmt.Sprint(e.Value), name)
}

// Unwrap returns the underlying parse failure.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

func conversionError(t reflect.Type, v any, err error) error {
	return &ConversionError{Type: t, Value: v, Err: err}
}
