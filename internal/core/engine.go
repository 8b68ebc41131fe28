package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/document"
	"github.com/JonMunkholm/rowbind/internal/mapping"
	"github.com/JonMunkholm/rowbind/internal/stream"
)

// DefaultStreamingThreshold is the workbook size above which Read walks
// the sheet row by row instead of loading it.
const DefaultStreamingThreshold = 10 << 20

var (
	// ErrUnsupportedFormat is returned for documents no codec can handle.
	ErrUnsupportedFormat = codec.ErrUnsupportedFormat

	// ErrEmptyData is returned when writing no records.
	ErrEmptyData = errors.New("no records to write")
)

// Config holds engine-wide settings.
type Config struct {
	Mapping mapping.Options

	HeaderRow int    // Zero-based row holding the headers
	Delimiter rune   // CSV delimiter, 0 for the format default
	Charset   string // Text input charset, empty for UTF-8

	QueueSize          int
	StallTimeout       time.Duration
	JoinTimeout        time.Duration
	BatchSize          int   // Records per batch on import
	StreamingThreshold int64 // Workbook bytes above which Read streams

	Overrides *mapping.Overrides // Header aliases per record kind
	Logger    *slog.Logger
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		Mapping:            mapping.DefaultOptions(),
		QueueSize:          stream.DefaultQueueSize,
		StallTimeout:       stream.DefaultStallTimeout,
		JoinTimeout:        stream.DefaultJoinTimeout,
		BatchSize:          1000,
		StreamingThreshold: DefaultStreamingThreshold,
	}
}

// Engine maps documents onto record types. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *convert.Registry
	cache    *mapping.Cache
	mapper   *mapping.Mapper
	log      *slog.Logger
}

// New returns an engine with its own converter registry and schema cache.
func New(cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.StreamingThreshold <= 0 {
		cfg.StreamingThreshold = DefaultStreamingThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	reg := convert.NewRegistry()
	return &Engine{
		cfg:      cfg,
		registry: reg,
		cache:    mapping.NewCache(reg),
		mapper:   mapping.NewMapper(reg, cfg.Mapping),
		log:      cfg.Logger,
	}
}

// Config returns the engine settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// Registry returns the engine's converter registry.
func (e *Engine) Registry() *convert.Registry {
	return e.registry
}

// Mapper returns the engine's row mapper.
func (e *Engine) Mapper() *mapping.Mapper {
	return e.mapper
}

// RegisterConverter sets the converter used for values of type t.
func (e *Engine) RegisterConverter(t reflect.Type, c convert.Converter) {
	e.registry.Register(t, c)
}

// ResetConverters restores the built-in converters and drops every cached
// schema.
func (e *Engine) ResetConverters() {
	e.registry.Reset()
	e.cache.Clear()
}

// Schema returns the cached schema for T.
func Schema[T any](e *Engine) (*mapping.Schema, error) {
	return mapping.SchemaOf[T](e.cache)
}

// Resolver indexes a header row.
func Resolver(headers []string) *mapping.Resolver {
	return mapping.NewResolver(headers)
}

// Bindings binds the fields of s to the columns of r.
func Bindings(s *mapping.Schema, r *mapping.Resolver) []mapping.Binding {
	return mapping.ResolveFields(s, r)
}

// MapRow maps one row onto a T. ok is false for a skipped blank row.
func MapRow[T any](e *Engine, s *mapping.Schema, bindings []mapping.Binding, row document.Row, rowNum int) (T, bool, error) {
	return mapping.MapRowAs[T](e.mapper, s, bindings, row, rowNum)
}

// ReadOptions describes one input document.
type ReadOptions struct {
	codec.ReadOptions
	Aliases mapping.Aliases // Alternative headers per field
}

// ReadOptionsFor detects the format of a file called name and applies the
// engine's delimiter and charset.
func (e *Engine) ReadOptionsFor(name string) (ReadOptions, error) {
	ro, err := codec.ReadOptionsFor(name)
	if err != nil {
		return ReadOptions{}, err
	}
	if e.cfg.Delimiter != 0 && ro.Format == codec.FormatCSV {
		ro.CSV.Delimiter = e.cfg.Delimiter
	}
	ro.Charset = e.cfg.Charset
	return ReadOptions{ReadOptions: ro}, nil
}

// open picks the event reader for text and for large workbooks, and the
// in-memory table otherwise. The counter reports bytes consumed from r.
func (e *Engine) open(r io.Reader, opts ReadOptions) (stream.Source, *codec.CountingReader, error) {
	counter := codec.NewCountingReader(r)
	if opts.Format == codec.FormatXLSX && opts.Size > 0 && opts.Size <= e.cfg.StreamingThreshold {
		t, err := codec.OpenTable(counter, opts.ReadOptions)
		if err != nil {
			return nil, nil, err
		}
		return t, counter, nil
	}
	src, err := codec.OpenEvents(counter, opts.ReadOptions)
	if err != nil {
		return nil, nil, err
	}
	return src, counter, nil
}

var errStop = errors.New("stop")

// rowFunc receives one data row with its 1-based number.
type rowFunc func(rowNum int, row document.Row, bindings []mapping.Binding) error

// scan resolves the header row of src against s and calls fn for every
// data row after it. fn may return errStop to end the scan early.
func (e *Engine) scan(ctx context.Context, src stream.Source, s *mapping.Schema, aliases mapping.Aliases, fn rowFunc) error {
	var bindings []mapping.Binding
	haveHeader := false

	visit := func(index int, row document.Row) error {
		if index < e.cfg.HeaderRow {
			return nil
		}
		if !haveHeader {
			bindings = aliases.ResolveFields(s, mapping.NewResolver(document.Strings(row)))
			haveHeader = true
			return nil
		}
		return fn(index-e.cfg.HeaderRow, row, bindings)
	}

	var err error
	switch v := src.(type) {
	case document.Table:
		for i := 0; i < v.NumRows() && err == nil; i++ {
			if err = ctx.Err(); err == nil {
				err = visit(i, v.Row(i))
			}
		}
	case document.EventSource:
		err = v.Walk(ctx, visit)
	default:
		err = fmt.Errorf("unsupported source %T", src)
	}
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// Read maps every data row of r onto a T. The first row that fails to map
// ends the read with its MappingError.
func Read[T any](ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) ([]T, error) {
	return readN[T](ctx, e, r, opts, -1)
}

// ReadFirst maps at most n data rows of r.
func ReadFirst[T any](ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("record limit must not be negative, got %d", n)
	}
	if n == 0 {
		return []T{}, nil
	}
	return readN[T](ctx, e, r, opts, n)
}

func readN[T any](ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, limit int) ([]T, error) {
	s, err := Schema[T](e)
	if err != nil {
		return nil, err
	}
	src, _, err := e.open(r, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	out := []T{}
	err = e.scan(ctx, src, s, opts.Aliases, func(rowNum int, row document.Row, bindings []mapping.Binding) error {
		rec, ok, err := mapping.MapRowAs[T](e.mapper, s, bindings, row, rowNum)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rec)
		}
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Validate maps every data row of r, recording failed rows instead of
// stopping at them. Only document-level failures are returned as errors.
func Validate[T any](ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) (*mapping.Outcome[T], error) {
	start := time.Now()
	s, err := Schema[T](e)
	if err != nil {
		return nil, err
	}
	src, counter, err := e.open(r, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	out := &mapping.Outcome[T]{Valid: []T{}}
	err = e.scan(ctx, src, s, opts.Aliases, func(rowNum int, row document.Row, bindings []mapping.Binding) error {
		out.TotalRows++
		rec, ok, err := mapping.MapRowAs[T](e.mapper, s, bindings, row, rowNum)
		if err != nil {
			out.Errors = append(out.Errors, mapping.NewRowError(rowNum, err))
			return nil
		}
		if ok {
			out.Valid = append(out.Valid, rec)
		}
		return nil
	})
	out.Duration = time.Since(start)
	out.BytesRead = counter.BytesRead()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Open returns a stream of T over r. The caller must Close the stream.
func Open[T any](e *Engine, r io.Reader, opts ReadOptions) (*stream.Stream[T], error) {
	counter := codec.NewCountingReader(r)
	src, err := codec.OpenEvents(counter, opts.ReadOptions)
	if err != nil {
		return nil, err
	}
	sopts := e.streamOptions(opts.Aliases)
	sopts.Input = counter
	st, err := stream.Open[T](src, e.cache, e.mapper, sopts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return st, nil
}

func (e *Engine) streamOptions(aliases mapping.Aliases) stream.Options {
	return stream.Options{
		HeaderRow:    e.cfg.HeaderRow,
		QueueSize:    e.cfg.QueueSize,
		StallTimeout: e.cfg.StallTimeout,
		JoinTimeout:  e.cfg.JoinTimeout,
		Aliases:      aliases,
		Logger:       e.log,
	}
}

// ReadMaps returns each data row as a header to value map. Cells beyond
// the header row, and headers beyond a short row, are left out.
func ReadMaps(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) ([]map[string]string, error) {
	out := []map[string]string{}
	var headers []string
	err := e.raw(ctx, r, opts, func(index int, cells []string) {
		switch {
		case index < e.cfg.HeaderRow:
		case headers == nil:
			headers = cells
		default:
			m := make(map[string]string, len(headers))
			for i := 0; i < len(headers) && i < len(cells); i++ {
				m[headers[i]] = cells[i]
			}
			out = append(out, m)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRaw returns every row of r, headers included, as text.
func ReadRaw(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) ([][]string, error) {
	out := [][]string{}
	err := e.raw(ctx, r, opts, func(_ int, cells []string) {
		out = append(out, cells)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) raw(ctx context.Context, r io.Reader, opts ReadOptions, fn func(int, []string)) error {
	src, err := codec.OpenEvents(r, opts.ReadOptions)
	if err != nil {
		return err
	}
	defer src.Close()
	return src.Walk(ctx, func(index int, row document.Row) error {
		fn(index, document.Strings(row))
		return nil
	})
}

// WriteOptions describes one output document.
type WriteOptions struct {
	Format codec.Format
	Sheet  string // Worksheet name for XLSX, default "Sheet1"
}

// Write renders records with a header row to w.
func Write[T any](e *Engine, w io.Writer, records []T, opts WriteOptions) error {
	if len(records) == 0 {
		return ErrEmptyData
	}
	s, err := Schema[T](e)
	if err != nil {
		return err
	}
	sink, err := codec.NewSink(w, opts.Format, opts.Sheet, widths(s))
	if err != nil {
		return err
	}
	if err := writeRecords(e, sink, s, records); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}

// WriteTemplate writes only the header row of T to w.
func WriteTemplate[T any](e *Engine, w io.Writer, opts WriteOptions) error {
	s, err := Schema[T](e)
	if err != nil {
		return err
	}
	sink, err := codec.NewSink(w, opts.Format, opts.Sheet, widths(s))
	if err != nil {
		return err
	}
	if err := sink.WriteRow(headerRow(s)); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}

func writeRecords[T any](e *Engine, sink document.Sink, s *mapping.Schema, records []T) error {
	if err := sink.WriteRow(headerRow(s)); err != nil {
		return err
	}
	for i, rec := range records {
		cells, err := e.mapper.CellValues(s, rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		if err := sink.WriteRow(cells); err != nil {
			return err
		}
	}
	return nil
}

func headerRow(s *mapping.Schema) []any {
	headers := s.Headers()
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

func widths(s *mapping.Schema) []int {
	out := make([]int, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Width
	}
	return out
}
