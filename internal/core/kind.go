package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

// ErrNotImportable is returned when importing a kind with no table.
var ErrNotImportable = errors.New("kind has no destination table")

// DefaultPreviewRows is the number of mapped rows a report shows.
const DefaultPreviewRows = 10

// KindInfo contains display and storage information about a record kind.
type KindInfo struct {
	Key          string // Unique identifier: "product"
	Group        string // Display group: "Catalog"
	Label        string // Display name: "Products"
	Description  string
	Table        string // Import destination, empty when the kind is validate-only
	UploadColumn string // Column receiving the upload ID, empty to omit
}

// Inserter bulk-loads rows into a table and reports how many it stored.
type Inserter interface {
	CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Report summarizes a validation pass for display.
type Report struct {
	Kind      string             `json:"kind"`
	Headers   []string           `json:"headers"`
	TotalRows int                `json:"total_rows"`
	ValidRows int                `json:"valid_rows"`
	Errors    []mapping.RowError `json:"errors"`
	Preview   [][]string         `json:"preview"`
	Duration  time.Duration      `json:"duration"`
	BytesRead int64              `json:"bytes_read"`
}

// IsValid reports whether no row failed.
func (r *Report) IsValid() bool { return len(r.Errors) == 0 }

// SuccessRate returns the mapped share of rows as a percentage.
func (r *Report) SuccessRate() float64 {
	if r.TotalRows == 0 {
		return 100
	}
	return float64(r.ValidRows) * 100 / float64(r.TotalRows)
}

// ImportResult summarizes one import.
type ImportResult struct {
	UploadID  uuid.UUID     `json:"upload_id"`
	Inserted  int64         `json:"inserted"`
	Skipped   int64         `json:"skipped"`
	BytesRead int64         `json:"bytes_read"`
	Duration  time.Duration `json:"duration"`
}

// Kind binds a record type to the operations the service layer needs.
// Build one with NewKind.
type Kind struct {
	Info KindInfo

	headers  func(e *Engine) ([]string, error)
	validate func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) (*Report, error)
	load     func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, dst Inserter) (*ImportResult, error)
	template func(e *Engine, w io.Writer, opts WriteOptions) error
	convert  func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, w io.Writer, wopts WriteOptions) (*Report, error)
}

// NewKind describes record type T.
func NewKind[T any](info KindInfo) Kind {
	return Kind{
		Info: info,
		headers: func(e *Engine) ([]string, error) {
			s, err := Schema[T](e)
			if err != nil {
				return nil, err
			}
			return s.Headers(), nil
		},
		validate: func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) (*Report, error) {
			return validateKind[T](ctx, e, info, r, opts)
		},
		load: func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, dst Inserter) (*ImportResult, error) {
			return importKind[T](ctx, e, info, r, opts, dst)
		},
		template: func(e *Engine, w io.Writer, opts WriteOptions) error {
			return WriteTemplate[T](e, w, opts)
		},
		convert: func(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, w io.Writer, wopts WriteOptions) (*Report, error) {
			return convertKind[T](ctx, e, info, r, opts, w, wopts)
		},
	}
}

// Importable reports whether the kind has a destination table.
func (k Kind) Importable() bool {
	return k.Info.Table != ""
}

// Headers returns the header row of the kind's record type.
func (k Kind) Headers(e *Engine) ([]string, error) {
	return k.headers(e)
}

// Validate maps r and reports failed rows along with a preview of the
// first mapped rows.
func (k Kind) Validate(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions) (*Report, error) {
	return k.validate(ctx, e, r, k.aliases(e, opts))
}

// Import streams r into the kind's table through dst. Rows that fail to
// map are skipped and counted.
func (k Kind) Import(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, dst Inserter) (*ImportResult, error) {
	if !k.Importable() {
		return nil, fmt.Errorf("%s: %w", k.Info.Key, ErrNotImportable)
	}
	return k.load(ctx, e, r, k.aliases(e, opts), dst)
}

// Template writes an empty document holding only the header row.
func (k Kind) Template(e *Engine, w io.Writer, format codec.Format) error {
	return k.template(e, w, WriteOptions{Format: format, Sheet: k.Info.Label})
}

// Convert maps r and writes the rows that mapped to w in format, with
// values rendered by the kind's converters. Failed rows are left out and
// listed in the returned report.
func (k Kind) Convert(ctx context.Context, e *Engine, r io.Reader, opts ReadOptions, w io.Writer, format codec.Format) (*Report, error) {
	return k.convert(ctx, e, r, k.aliases(e, opts), w, WriteOptions{Format: format, Sheet: k.Info.Label})
}

func (k Kind) aliases(e *Engine, opts ReadOptions) ReadOptions {
	if opts.Aliases == nil {
		opts.Aliases = e.cfg.Overrides.For(k.Info.Key)
	}
	return opts
}

func validateKind[T any](ctx context.Context, e *Engine, info KindInfo, r io.Reader, opts ReadOptions) (*Report, error) {
	s, err := Schema[T](e)
	if err != nil {
		return nil, err
	}
	out, err := Validate[T](ctx, e, r, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Kind:      info.Key,
		Headers:   s.Headers(),
		TotalRows: out.TotalRows,
		ValidRows: out.ValidCount(),
		Errors:    out.Errors,
		Duration:  out.Duration,
		BytesRead: out.BytesRead,
	}
	for _, rec := range out.Valid[:min(len(out.Valid), DefaultPreviewRows)] {
		cells, err := e.mapper.CellValues(s, rec)
		if err != nil {
			return nil, err
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = codec.FormatCell(c)
		}
		report.Preview = append(report.Preview, row)
	}
	return report, nil
}

func convertKind[T any](ctx context.Context, e *Engine, info KindInfo, r io.Reader, opts ReadOptions, w io.Writer, wopts WriteOptions) (*Report, error) {
	s, err := Schema[T](e)
	if err != nil {
		return nil, err
	}
	out, err := Validate[T](ctx, e, r, opts)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Kind:      info.Key,
		Headers:   s.Headers(),
		TotalRows: out.TotalRows,
		ValidRows: out.ValidCount(),
		Errors:    out.Errors,
		Duration:  out.Duration,
		BytesRead: out.BytesRead,
	}
	if err := Write(e, w, out.Valid, wopts); err != nil {
		return report, err
	}
	return report, nil
}

func importKind[T any](ctx context.Context, e *Engine, info KindInfo, r io.Reader, opts ReadOptions, dst Inserter) (*ImportResult, error) {
	start := time.Now()
	st, err := Open[T](e, r, opts)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	s := st.Schema()
	columns := make([]string, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		columns = append(columns, ColumnName(f.Name))
	}
	if info.UploadColumn != "" {
		columns = append(columns, info.UploadColumn)
	}

	res := &ImportResult{UploadID: uuid.New()}
	batches, err := st.Batches(e.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	for batches.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch := batches.Batch()
		rows := make([][]any, 0, len(batch))
		for _, rec := range batch {
			values, err := s.Values(rec)
			if err != nil {
				return res, err
			}
			if info.UploadColumn != "" {
				values = append(values, res.UploadID)
			}
			rows = append(rows, values)
		}

		n, err := dst.CopyRows(ctx, info.Table, columns, rows)
		res.Inserted += n
		if err != nil {
			return res, fmt.Errorf("import %s: %w", info.Key, err)
		}
		e.log.Debug("imported batch", "kind", info.Key, "rows", n)
	}
	if err := batches.Err(); err != nil {
		return res, err
	}

	stats := st.Stats()
	res.Skipped = stats.Skipped
	res.BytesRead = stats.BytesRead
	res.Duration = time.Since(start)
	return res, nil
}

// ColumnName converts a Go field name to a snake_case column name.
// Acronyms stay together: CustomerID becomes customer_id.
func ColumnName(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
