// Package core ties the mapping engine together for callers that work with
// whole documents.
//
// It is used by the web handlers, the CLI, and tests without modification.
//
// # Engine
//
// An [Engine] owns one converter registry, one schema cache and the mapping
// configuration. The generic functions take the engine as their first
// argument:
//
//	e := core.New(core.DefaultConfig())
//	opts, _ := e.ReadOptionsFor("products.xlsx")
//	products, err := core.Read[Product](ctx, e, f, opts)
//
// [Read] propagates the first row failure. [Validate] collects row failures
// into a [mapping.Outcome] instead. [Open] returns a [stream.Stream] that
// logs and skips bad rows.
//
// # Record Kinds
//
// A record kind names one record type for the service layer. Kinds are
// registered at init time using [Register]:
//
//	core.Register(core.NewKind[Product](core.KindInfo{
//	    Name:  "product",
//	    Label: "Products",
//	    Group: "Catalog",
//	    Table: "products",
//	}))
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - VAL001-VAL004: Row validation errors (required values, conversions)
//   - FILE001-FILE006: File errors (size, format, sheets, encoding)
//   - MAP001-MAP002: Mapping configuration errors
//   - STR001-STR003: Streaming errors
//   - UPL001-UPL003: Upload errors (limits, cancellation, timeout)
//   - DB001-DB003: Import errors
//   - ERR000: Unknown error (fallback)
package core
