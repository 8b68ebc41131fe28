package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/mapping"
	"github.com/JonMunkholm/rowbind/internal/stream"
)

func TestMapError(t *testing.T) {
	conversion := &convert.ConversionError{Type: reflect.TypeFor[int](), Value: "abc", Err: errors.New("not a number")}

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"required value", &mapping.MappingError{Row: 2, Column: "SKU", Err: mapping.ErrRequired}, "VAL001"},
		{"conversion inside mapping error", &mapping.MappingError{Row: 4, Err: conversion}, "VAL002"},
		{"other mapping error", &mapping.MappingError{Row: 4, Err: errors.New("boom")}, "VAL003"},
		{"no data", fmt.Errorf("write: %w", ErrEmptyData), "VAL004"},
		{"body too large", errors.New("http: request body too large"), "FILE001"},
		{"unsupported format", fmt.Errorf("%w: notes.txt", codec.ErrUnsupportedFormat), "FILE002"},
		{"missing sheet", fmt.Errorf("%w: %q", codec.ErrSheetNotFound, "Orders"), "FILE003"},
		{"unknown charset", errors.New(`unknown charset "klingon": htmlindex: invalid encoding name`), "FILE005"},
		{"schema misconfigured", &mapping.ConfigError{Field: "Price", Converter: "money", Err: errors.New("converter not registered")}, "MAP001"},
		{"unknown kind", fmt.Errorf("%w: widgets", ErrUnknownKind), "MAP002"},
		{"stalled stream", &stream.StreamError{Err: stream.ErrStalled}, "STR001"},
		{"stream failure wins over its cause", &stream.StreamError{Err: errors.New("read csv record 3: parse error on line 3")}, "STR003"},
		{"busy", ErrTooManyUploads, "UPL001"},
		{"cancelled", fmt.Errorf("import: %w", context.Canceled), "UPL002"},
		{"duplicate key", errors.New("ERROR: DUPLICATE KEY value violates unique constraint"), "DB001"},
		{"not importable", fmt.Errorf("customer: %w", ErrNotImportable), "DB003"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() returned an empty message")
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyUploads)

	expected := "The server is busy with other uploads (Code: UPL001). Please wait a moment before trying again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", codec.ErrNoSheets, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := fmt.Errorf("upload: %w", ErrEmptyData)
	userErr := NewUserError(techErr)

	if userErr.Error() != "The document has no data rows" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, ErrEmptyData) {
		t.Error("Unwrap() should expose the technical error")
	}
}
