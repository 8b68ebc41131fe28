package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/rowbind/internal/codec"
)

// ErrSingleSheet is returned when adding a second sheet to a text workbook.
var ErrSingleSheet = errors.New("delimited text holds a single sheet")

// Workbook collects one sheet per record set and writes them as a single
// document. Text formats accept exactly one sheet.
type Workbook struct {
	e      *Engine
	format codec.Format
	xlsx   *codec.Workbook
	text   bytes.Buffer
	sheets int
}

// NewWorkbook starts an empty workbook in format.
func (e *Engine) NewWorkbook(format codec.Format) (*Workbook, error) {
	wb := &Workbook{e: e, format: format}
	switch {
	case format == codec.FormatXLSX:
		x, err := codec.NewWorkbook()
		if err != nil {
			return nil, err
		}
		wb.xlsx = x
	case format.IsText():
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return wb, nil
}

// AddSheet writes records as a new sheet called name.
func AddSheet[T any](wb *Workbook, name string, records []T) error {
	if len(records) == 0 {
		return ErrEmptyData
	}
	if wb.xlsx == nil && wb.sheets > 0 {
		return ErrSingleSheet
	}
	s, err := Schema[T](wb.e)
	if err != nil {
		return err
	}

	if wb.xlsx == nil {
		sink := codec.NewCSVSink(&wb.text, wb.format.Delimiter())
		if err := writeRecords(wb.e, sink, s, records); err != nil {
			return err
		}
		wb.sheets++
		return sink.Close()
	}

	sheet, err := wb.xlsx.AddSheet(name, widths(s))
	if err != nil {
		return err
	}
	wb.sheets++
	return writeRecords(wb.e, sheet, s, records)
}

// Sheets returns the number of sheets added.
func (wb *Workbook) Sheets() int {
	return wb.sheets
}

// WriteTo writes the finished document to w.
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	if wb.sheets == 0 {
		return 0, ErrEmptyData
	}
	if wb.xlsx != nil {
		return wb.xlsx.WriteTo(w)
	}
	return wb.text.WriteTo(w)
}

// Close releases the workbook.
func (wb *Workbook) Close() error {
	if wb.xlsx != nil {
		return wb.xlsx.Close()
	}
	return nil
}
