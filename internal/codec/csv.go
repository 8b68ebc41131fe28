package codec

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/rowbind/internal/document"
)

// CSVOptions configures delimited-text reading.
type CSVOptions struct {
	Delimiter rune // Defaults to ','
	Comment   rune // Lines starting with Comment are ignored, 0 to disable

	// Unguard strips the ="..." wrapper spreadsheet exports put around
	// values that must stay text, such as zero-padded codes.
	Unguard bool
}

func (o CSVOptions) reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if o.Delimiter != 0 {
		cr.Comma = o.Delimiter
	}
	cr.Comment = o.Comment
	return cr
}

// CSVSource reads delimited text one record at a time.
type CSVSource struct {
	r      *csv.Reader
	opts   CSVOptions
	closer io.Closer
}

// NewCSVSource reads from r. If r is an io.Closer it is closed with the
// source.
func NewCSVSource(r io.Reader, opts CSVOptions) *CSVSource {
	s := &CSVSource{r: opts.reader(r), opts: opts}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Walk implements document.EventSource.
func (s *CSVSource) Walk(ctx context.Context, fn func(int, document.Row) error) error {
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv record %d: %w", index+1, err)
		}

		for i := range rec {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.opts.Unguard {
				rec[i] = unguard(rec[i])
			}
		}

		if err := fn(index, document.Values(rec)); err != nil {
			return err
		}
	}
}

// Close implements document.EventSource.
func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// CSVTable is a delimited-text document read fully into memory.
type CSVTable struct {
	rows [][]string
}

// LoadCSV reads every record of r.
func LoadCSV(r io.Reader, opts CSVOptions) (*CSVTable, error) {
	rows, err := opts.reader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if opts.Unguard {
		for _, row := range rows {
			for i := range row {
				row[i] = unguard(row[i])
			}
		}
	}
	return &CSVTable{rows: rows}, nil
}

// NumRows implements document.Table.
func (t *CSVTable) NumRows() int { return len(t.rows) }

// Row implements document.Table.
func (t *CSVTable) Row(i int) document.Row { return document.Values(t.rows[i]) }

// Close implements document.Table.
func (t *CSVTable) Close() error { return nil }

// unguard removes a leading = and the quotes of ="..." from a cell.
func unguard(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, `="`) && strings.HasSuffix(t, `"`) && len(t) >= 3 {
		return t[2 : len(t)-1]
	}
	return s
}

// CSVSink writes rows as delimited text.
type CSVSink struct {
	w *csv.Writer
}

// NewCSVSink writes to w with the given delimiter (',' when 0).
func NewCSVSink(w io.Writer, delimiter rune) *CSVSink {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	return &CSVSink{w: cw}
}

// WriteRow implements document.Sink.
func (s *CSVSink) WriteRow(values []any) error {
	rec := make([]string, len(values))
	for i, v := range values {
		rec[i] = FormatCell(v)
	}
	return s.w.Write(rec)
}

// Close flushes buffered output. The underlying writer is left open.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return s.w.Error()
}

// FormatCell renders a cell value as text.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
