package config

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

// DelimiterRune returns the configured CSV separator, or 0 for the format
// default. "tab" and `\t` select a tab.
func (c *MappingConfig) DelimiterRune() (rune, error) {
	switch strings.ToLower(c.Delimiter) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(c.Delimiter)
	if size != len(c.Delimiter) {
		return 0, fmt.Errorf("delimiter %q must be a single character", c.Delimiter)
	}
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter %q is not allowed", c.Delimiter)
	}
	return r, nil
}

// Engine builds the mapping engine settings, loading the header override
// file when one is configured.
func (c *Config) Engine(logger *slog.Logger) (core.Config, error) {
	delim, err := c.Mapping.DelimiterRune()
	if err != nil {
		return core.Config{}, err
	}

	ec := core.DefaultConfig()
	ec.Mapping = mapping.Options{
		Trim:           c.Mapping.Trim,
		SkipEmptyRows:  c.Mapping.SkipEmptyRows,
		DateFormat:     c.Mapping.DateFormat,
		DateTimeFormat: c.Mapping.DateTimeFormat,
		TimeFormat:     c.Mapping.TimeFormat,
	}
	ec.HeaderRow = c.Mapping.HeaderRow
	ec.Delimiter = delim
	ec.Charset = c.Mapping.Charset
	ec.QueueSize = c.Stream.QueueSize
	ec.StallTimeout = c.Stream.StallTimeout
	ec.JoinTimeout = c.Stream.JoinTimeout
	ec.BatchSize = c.Stream.BatchSize
	ec.StreamingThreshold = c.Stream.Threshold
	ec.Logger = logger

	if c.Mapping.OverridesFile != "" {
		overrides, err := mapping.LoadOverrides(c.Mapping.OverridesFile)
		if err != nil {
			return core.Config{}, fmt.Errorf("load mapping overrides: %w", err)
		}
		ec.Overrides = overrides
	}
	return ec, nil
}
