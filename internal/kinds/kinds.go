// Package kinds registers the built-in record kinds with the core registry.
// Import this package to make them available, and call Install on every
// engine that maps them.
package kinds

import (
	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/core"
)

// UploadColumn receives the upload ID on every imported row.
const UploadColumn = "upload_id"

// Converter names used in the kinds' sheet tags.
const (
	MoneyConverter   = "money"
	USStateConverter = "us_state"
)

// Install registers the named converters the built-in kinds depend on.
// It must run before the engine builds a schema for any of them, and at
// most once per engine.
func Install(e *core.Engine) {
	reg := e.Registry()
	reg.RegisterFactory(MoneyConverter, func() (convert.Converter, error) { return money{}, nil })
	reg.RegisterFactory(USStateConverter, func() (convert.Converter, error) { return usState{}, nil })
}
