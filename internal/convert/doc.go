// Package convert turns untyped cell values into typed Go values and back.
//
// Every scalar type a record field can hold is served by a [Converter]
// registered in a [Registry]. The registry is an explicit object: the mapping
// layer receives one by injection and each engine owns its own.
//
// # Built-in Types
//
//   - string (trimmed when the conversion context asks for it)
//   - int, int8, int16, int32, int64
//   - float32, float64
//   - *big.Int and pgtype.Numeric for arbitrary precision
//   - bool: true/false, yes/no, y/n, 1/0, on/off in any case
//   - [Char]: the first rune of the cell
//   - [Date], [DateTime], [TimeOfDay], [Instant] and time.Time (zoned)
//   - uuid.UUID in canonical string form
//
// Named types implementing [Enum] receive a case-insensitive converter the
// first time they are looked up; it is memoized in the registry.
//
// # Numeric Strings
//
// A string bound for an integer field is parsed as a number and truncated
// toward zero, so "42.7" maps to 42. Values outside the target width are a
// [ConversionError].
//
// # Absent Values
//
// Blank or missing input converts to nil for every converter. The caller
// leaves the field at its zero value (or nil pointer) in that case.
package convert
