package mapping

import (
	"errors"
	"time"
)

// RowError is one failed row recorded by a validation pass.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
	Cause   error  `json:"-"`
}

// NewRowError records err against row. Mapping errors contribute their
// column and offending value.
func NewRowError(row int, err error) RowError {
	re := RowError{Row: row, Message: err.Error(), Cause: err}
	var mapErr *MappingError
	if errors.As(err, &mapErr) {
		re.Row = mapErr.Row
		re.Column = mapErr.Column
		re.Value = mapErr.Value
		re.Message = mapErr.Message()
		re.Cause = mapErr.Err
	}
	return re
}

// Outcome is the result of validating a document against a record type.
type Outcome[T any] struct {
	Valid     []T
	Errors    []RowError
	TotalRows int
	Duration  time.Duration
	BytesRead int64 // Input bytes consumed, before decompression
}

// IsValid reports whether no row failed.
func (o *Outcome[T]) IsValid() bool { return len(o.Errors) == 0 }

// ValidCount returns the number of rows that mapped.
func (o *Outcome[T]) ValidCount() int { return len(o.Valid) }

// ErrorCount returns the number of rows that failed.
func (o *Outcome[T]) ErrorCount() int { return len(o.Errors) }

// SuccessRate returns the mapped share of rows as a percentage. An empty
// document is fully successful.
func (o *Outcome[T]) SuccessRate() float64 {
	if o.TotalRows == 0 {
		return 100
	}
	return float64(len(o.Valid)) * 100 / float64(o.TotalRows)
}
