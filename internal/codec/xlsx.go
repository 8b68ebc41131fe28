package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/document"
)

// XLSXOptions selects the worksheet to read. Sheet wins over SheetIndex.
type XLSXOptions struct {
	Sheet      string
	SheetIndex int
}

// cellOpts reads the stored cell text rather than the display-formatted
// value, so numbers round-trip without locale formatting. Date-formatted
// serials are converted by dateCells.
var cellOpts = excelize.Options{RawCellValue: true}

// SheetNotFoundError names the requested worksheet and the ones the
// workbook has.
type SheetNotFoundError struct {
	Sheet  string
	Index  int
	Sheets []string
}

func (e *SheetNotFoundError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("sheet %q not found (workbook has %s)", e.Sheet, strings.Join(e.Sheets, ", "))
	}
	return fmt.Sprintf("sheet index %d out of range (workbook has %d)", e.Index, len(e.Sheets))
}

// Is matches ErrSheetNotFound.
func (e *SheetNotFoundError) Is(target error) bool {
	return target == ErrSheetNotFound
}

// XLSXSource reads one worksheet row by row. Numeric cells under a date or
// time number format are delivered as time.Time in UTC.
type XLSXSource struct {
	f     *excelize.File
	sheet string
	dates *dateCells
}

// OpenXLSX opens a workbook from r and selects a worksheet.
func OpenXLSX(r io.Reader, opts XLSXOptions) (*XLSXSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &XLSXSource{f: f, sheet: sheet, dates: newDateCells(f, sheet)}, nil
}

func pickSheet(f *excelize.File, opts XLSXOptions) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrNoSheets
	}
	if opts.Sheet != "" {
		for _, s := range sheets {
			if s == opts.Sheet {
				return s, nil
			}
		}
		return "", &SheetNotFoundError{Sheet: opts.Sheet, Sheets: sheets}
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(sheets) {
		return "", &SheetNotFoundError{Index: opts.SheetIndex, Sheets: sheets}
	}
	return sheets[opts.SheetIndex], nil
}

// Sheet returns the selected worksheet name.
func (s *XLSXSource) Sheet() string {
	return s.sheet
}

// Walk implements document.EventSource. Cells are checked for cancellation
// one at a time so a very wide row cannot delay shutdown.
func (s *XLSXSource) Walk(ctx context.Context, fn func(int, document.Row) error) (err error) {
	rows, err := s.f.Rows(s.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", s.sheet, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for index := 0; rows.Next(); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cols, err := rows.Columns(cellOpts)
		if err != nil {
			return fmt.Errorf("read sheet %q row %d: %w", s.sheet, index+1, err)
		}

		row := document.Sparse{Cells: make(map[int]any, len(cols)), Width: len(cols)}
		for i, v := range cols {
			if err := ctx.Err(); err != nil {
				return err
			}
			if v != "" {
				row.Cells[i] = s.dates.value(i, index, v)
			}
		}

		if err := fn(index, row); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read sheet %q: %w", s.sheet, err)
	}
	return nil
}

// Table loads the selected worksheet into memory.
func (s *XLSXSource) Table() (*XLSXTable, error) {
	rows, err := s.f.GetRows(s.sheet, cellOpts)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", s.sheet, err)
	}
	return &XLSXTable{rows: rows, src: s}, nil
}

// Close implements document.EventSource.
func (s *XLSXSource) Close() error {
	return s.f.Close()
}

// XLSXTable is a worksheet held in memory. Rows may be ragged; trailing
// empty cells are not stored.
type XLSXTable struct {
	rows [][]string
	src  *XLSXSource
}

// NumRows implements document.Table.
func (t *XLSXTable) NumRows() int { return len(t.rows) }

// Row implements document.Table.
func (t *XLSXTable) Row(i int) document.Row {
	cells := t.rows[i]
	return document.CellFunc{N: len(cells), Fn: func(c int) (any, bool) {
		if cells[c] == "" {
			return nil, false
		}
		return t.src.dates.value(c, i, cells[c]), true
	}}
}

// Close releases the workbook.
func (t *XLSXTable) Close() error {
	return t.src.Close()
}

// Workbook builds an XLSX file one sheet at a time through excelize's
// stream writer. Only one sheet is open for writing at a time; adding a
// sheet finishes the previous one.
type Workbook struct {
	f       *excelize.File
	current *SheetSink
	sheets  int
	styles  cellStyles
}

// cellStyles are the style IDs a sheet applies to headers and temporal
// values.
type cellStyles struct {
	header   int
	date     int
	dateTime int
	clock    int
}

// Built-in number formats for dates and times of day.
const (
	numFmtDate  = 14
	numFmtClock = 21
)

const dateTimeFormat = "yyyy-mm-dd hh:mm:ss"

// NewWorkbook returns an empty workbook.
func NewWorkbook() (*Workbook, error) {
	f := excelize.NewFile()
	dateTime := dateTimeFormat
	wb := &Workbook{f: f}
	for _, spec := range []struct {
		id    *int
		style *excelize.Style
	}{
		{&wb.styles.header, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&wb.styles.date, &excelize.Style{NumFmt: numFmtDate}},
		{&wb.styles.dateTime, &excelize.Style{CustomNumFmt: &dateTime}},
		{&wb.styles.clock, &excelize.Style{NumFmt: numFmtClock}},
	} {
		id, err := f.NewStyle(spec.style)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create cell style: %w", err)
		}
		*spec.id = id
	}
	return wb, nil
}

// AddSheet starts a new worksheet. widths sets column widths in character
// units; a zero entry keeps the default width.
func (w *Workbook) AddSheet(name string, widths []int) (*SheetSink, error) {
	if err := w.finishCurrent(); err != nil {
		return nil, err
	}

	if w.sheets == 0 {
		// A new file starts with one default sheet; rename it.
		if err := w.f.SetSheetName(w.f.GetSheetName(0), name); err != nil {
			return nil, fmt.Errorf("name sheet %q: %w", name, err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("add sheet %q: %w", name, err)
	}
	w.sheets++

	sw, err := w.f.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("open sheet %q: %w", name, err)
	}
	for i, width := range widths {
		if width <= 0 {
			continue
		}
		if err := sw.SetColWidth(i+1, i+1, float64(width)); err != nil {
			return nil, fmt.Errorf("set width of column %d: %w", i+1, err)
		}
	}

	w.current = &SheetSink{sw: sw, name: name, styles: w.styles}
	return w.current, nil
}

func (w *Workbook) finishCurrent() error {
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

// WriteTo finishes the open sheet and writes the workbook to out.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	if err := w.finishCurrent(); err != nil {
		return 0, err
	}
	if w.sheets == 0 {
		return 0, ErrNoSheets
	}
	return w.f.WriteTo(out)
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// SheetSink writes rows to one worksheet. The first row is styled as a
// header. Temporal values become date cells: zoned times are stored as
// their UTC wall clock.
type SheetSink struct {
	sw      *excelize.StreamWriter
	name    string
	row     int
	styles  cellStyles
	flushed bool
}

var errSheetClosed = errors.New("sheet already finished")

// WriteRow implements document.Sink.
func (s *SheetSink) WriteRow(values []any) error {
	if s.flushed {
		return errSheetClosed
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}

	var opts []excelize.RowOpts
	if s.row == 1 {
		opts = append(opts, excelize.RowOpts{StyleID: s.styles.header})
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = s.cell(v)
	}
	if err := s.sw.SetRow(cell, cells, opts...); err != nil {
		return fmt.Errorf("write sheet %q row %d: %w", s.name, s.row, err)
	}
	return nil
}

// cell maps temporal values to styled serials. Dates before 1900 have no
// serial and are written as text.
func (s *SheetSink) cell(v any) any {
	var (
		t     time.Time
		style int
	)
	switch x := v.(type) {
	case convert.TimeOfDay:
		return excelize.Cell{StyleID: s.styles.clock, Value: clockSerial(x.Time)}
	case convert.Date:
		t, style = x.Time, s.styles.date
	case convert.DateTime:
		t, style = x.Time, s.styles.dateTime
	case convert.Instant:
		t, style = x.UTC(), s.styles.dateTime
	case time.Time:
		t, style = x.UTC(), s.styles.dateTime
	default:
		return v
	}
	serial, ok := timeSerial(t)
	if !ok {
		return FormatCell(v)
	}
	return excelize.Cell{StyleID: style, Value: serial}
}

// Close finishes the sheet. Later writes fail.
func (s *SheetSink) Close() error {
	if s.flushed {
		return nil
	}
	s.flushed = true
	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("finish sheet %q: %w", s.name, err)
	}
	return nil
}

// XLSXSink writes a single-sheet workbook to an io.Writer on Close.
type XLSXSink struct {
	wb    *Workbook
	sheet *SheetSink
	out   io.Writer
}

// NewXLSXSink starts a workbook with one sheet.
func NewXLSXSink(out io.Writer, sheet string, widths []int) (*XLSXSink, error) {
	wb, err := NewWorkbook()
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	ss, err := wb.AddSheet(sheet, widths)
	if err != nil {
		wb.Close()
		return nil, err
	}
	return &XLSXSink{wb: wb, sheet: ss, out: out}, nil
}

// WriteRow implements document.Sink.
func (s *XLSXSink) WriteRow(values []any) error {
	return s.sheet.WriteRow(values)
}

// Close writes the workbook and releases it.
func (s *XLSXSink) Close() error {
	_, err := s.wb.WriteTo(s.out)
	if cerr := s.wb.Close(); err == nil {
		err = cerr
	}
	return err
}
