package core

// error_messages.go maps technical errors to user-facing messages.
//
// Typed errors from the mapping, codec and stream packages are matched
// first with errors.Is/As. Anything else falls through to case-insensitive
// substring patterns, and finally to ERR000.
//
// Error Code Reference:
//
// VALIDATION ERRORS (VAL001-VAL004)
//   - VAL001: Required value missing
//   - VAL002: Value could not be converted
//   - VAL003: Row could not be mapped
//   - VAL004: No data rows
//
// FILE ERRORS (FILE001-FILE007)
//   - FILE001: File too large
//   - FILE002: Unsupported file format
//   - FILE003: Workbook has no usable sheet
//   - FILE004: Malformed delimited text
//   - FILE005: Unknown character encoding
//   - FILE006: Corrupt or unreadable workbook
//   - FILE007: No file in the request
//
// MAPPING ERRORS (MAP001-MAP002)
//   - MAP001: Record type misconfigured
//   - MAP002: Unknown record kind
//
// STREAM ERRORS (STR001-STR003)
//   - STR001: Reading stalled
//   - STR002: Stream already closed
//   - STR003: Document failed while streaming
//
// UPLOAD ERRORS (UPL001-UPL003)
//   - UPL001: Too many concurrent uploads
//   - UPL002: Request cancelled
//   - UPL003: Request timed out
//
// IMPORT ERRORS (DB001-DB004)
//   - DB001: Duplicate record
//   - DB002: Database unavailable
//   - DB003: Kind cannot be imported
//   - DB004: Imports disabled, no database configured
//
// FALLBACK
//   - ERR000: Unknown error (check application logs)

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/mapping"
	"github.com/JonMunkholm/rowbind/internal/stream"
)

// ErrUnknownKind is returned when a request names no registered kind.
var ErrUnknownKind = errors.New("unknown record kind")

// UserMessage contains a user-friendly error message with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // User-friendly description of what went wrong
	Action  string `json:"action"`  // Suggested action for the user to take
	Code    string `json:"code"`    // Unique code for support reference
}

var (
	msgRequired = UserMessage{
		Message: "A required value is missing",
		Action:  "Fill in the highlighted column and upload again",
		Code:    "VAL001",
	}
	msgConversion = UserMessage{
		Message: "A value has the wrong format",
		Action:  "Check numbers, dates and yes/no values in the reported row",
		Code:    "VAL002",
	}
	msgMapping = UserMessage{
		Message: "A row could not be read",
		Action:  "Review the reported row",
		Code:    "VAL003",
	}
	msgEmptyData = UserMessage{
		Message: "The document has no data rows",
		Action:  "Add rows below the header and try again",
		Code:    "VAL004",
	}
	msgUnsupportedFormat = UserMessage{
		Message: "Unsupported file format",
		Action:  "Upload an .xlsx, .csv or .tsv file",
		Code:    "FILE002",
	}
	msgNoSheets = UserMessage{
		Message: "The workbook has no usable sheet",
		Action:  "Check the sheet name or add a sheet with data",
		Code:    "FILE003",
	}
	msgConfig = UserMessage{
		Message: "This record type is misconfigured",
		Action:  "Contact support",
		Code:    "MAP001",
	}
	msgUnknownKind = UserMessage{
		Message: "Unknown record type",
		Action:  "Choose one of the listed record types",
		Code:    "MAP002",
	}
	msgStalled = UserMessage{
		Message: "Reading the file stalled",
		Action:  "Try again; split very large files if it persists",
		Code:    "STR001",
	}
	msgClosed = UserMessage{
		Message: "The upload was already finished",
		Action:  "Start a new upload",
		Code:    "STR002",
	}
	msgStream = UserMessage{
		Message: "The file could not be read to the end",
		Action:  "Check the file is complete and not corrupted",
		Code:    "STR003",
	}
	msgTooMany = UserMessage{
		Message: "The server is busy with other uploads",
		Action:  "Please wait a moment before trying again",
		Code:    "UPL001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL003",
	}
	msgNotImportable = UserMessage{
		Message: "This record type can only be validated",
		Action:  "Use validation instead of import",
		Code:    "DB003",
	}
)

// typedMatchers are checked in order before the text patterns. Stream
// errors come first because they wrap the document failure that ended
// the stream.
var typedMatchers = []struct {
	match func(error) bool
	msg   UserMessage
}{
	{is(stream.ErrStalled), msgStalled},
	{is(stream.ErrClosed), msgClosed},
	{as[*stream.StreamError], msgStream},
	{is(mapping.ErrRequired), msgRequired},
	{as[*convert.ConversionError], msgConversion},
	{as[*mapping.MappingError], msgMapping},
	{as[*mapping.ConfigError], msgConfig},
	{is(ErrEmptyData), msgEmptyData},
	{is(codec.ErrUnsupportedFormat), msgUnsupportedFormat},
	{is(codec.ErrNoSheets), msgNoSheets},
	{is(codec.ErrSheetNotFound), msgNoSheets},
	{is(ErrUnknownKind), msgUnknownKind},
	{is(ErrNotImportable), msgNotImportable},
	{is(ErrTooManyUploads), msgTooMany},
	{is(context.Canceled), msgCancelled},
	{is(context.DeadlineExceeded), msgTimeout},
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[E error](err error) bool {
	var target E
	return errors.As(err, &target)
}

// errorPattern maps a substring pattern to a user message.
// Patterns are matched case-insensitively against the error text.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors raised outside this module (HTTP limits,
// database drivers, archive readers).
var errorPatterns = []errorPattern{
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File too large",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse error on line",
		msg: UserMessage{
			Message: "The file is not valid delimited text",
			Action:  "Check quoting and delimiters, or re-export the file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "unknown charset",
		msg: UserMessage{
			Message: "Unknown character encoding",
			Action:  "Save the file as UTF-8 or pick a supported encoding",
			Code:    "FILE005",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Re-save the file as .xlsx and try again",
			Code:    "FILE006",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was uploaded",
			Action:  "Choose a file and try again",
			Code:    "FILE007",
		},
	},
	{
		pattern: "database not configured",
		msg: UserMessage{
			Message: "Imports are disabled on this server",
			Action:  "Validate the file instead, or ask an administrator to enable imports",
			Code:    "DB004",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove rows that were imported before",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Database unavailable",
			Action:  "Please try again in a few minutes",
			Code:    "DB002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors are recognised first, then known text patterns
// (case-insensitive). If nothing matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := &mapping.MappingError{Row: 3, Column: "SKU", Err: mapping.ErrRequired}
//	msg := MapError(err)
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, m := range typedMatchers {
		if m.match(err) {
			return m.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
