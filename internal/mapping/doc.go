// Package mapping binds struct types to tabular rows.
//
// A record type is described by its exported fields and the `sheet` struct
// tag:
//
//	type Product struct {
//		Name    string  `sheet:"Product Name,required"`
//		Price   float64 `sheet:"Unit Price,default=0"`
//		InStock bool
//		Notes   string  `sheet:"-"`
//	}
//
// The [Cache] builds a [Schema] once per type. For each document a
// [Resolver] is built from the header row and [ResolveFields] pairs fields
// with columns. The [Mapper] then applies the same required, default and
// conversion policy to every row, whatever codec produced it.
package mapping
