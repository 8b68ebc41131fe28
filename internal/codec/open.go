package codec

import (
	"fmt"
	"io"

	"github.com/JonMunkholm/rowbind/internal/document"
)

// ReadOptions describes how to open a document.
type ReadOptions struct {
	Format      Format
	Compression Compression
	Charset     string // Text formats only
	Size        int64  // Document size in bytes, 0 when unknown
	CSV         CSVOptions
	XLSX        XLSXOptions
}

// ReadOptionsFor detects format and compression from name.
func ReadOptionsFor(name string) (ReadOptions, error) {
	format, comp, err := DetectFormat(name)
	if err != nil {
		return ReadOptions{}, err
	}
	return ReadOptions{
		Format:      format,
		Compression: comp,
		CSV:         CSVOptions{Delimiter: format.Delimiter()},
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// OpenEvents opens r as an event source. Wrap r in a CountingReader to
// follow progress.
func OpenEvents(r io.Reader, opts ReadOptions) (document.EventSource, error) {
	body, err := Decompress(r, opts.Compression)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Format.IsText():
		text, err := WrapInput(body, InputOptions{Charset: opts.Charset})
		if err != nil {
			body.Close()
			return nil, err
		}
		csvOpts := opts.CSV
		if csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = opts.Format.Delimiter()
		}
		return NewCSVSource(readCloser{text, body}, csvOpts), nil

	case opts.Format == FormatXLSX:
		defer body.Close()
		src, err := OpenXLSX(body, opts.XLSX)
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	body.Close()
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
}

// OpenTable reads r fully into memory.
func OpenTable(r io.Reader, opts ReadOptions) (document.Table, error) {
	body, err := Decompress(r, opts.Compression)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	switch {
	case opts.Format.IsText():
		text, err := WrapInput(body, InputOptions{Charset: opts.Charset})
		if err != nil {
			return nil, err
		}
		csvOpts := opts.CSV
		if csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = opts.Format.Delimiter()
		}
		return LoadCSV(text, csvOpts)

	case opts.Format == FormatXLSX:
		src, err := OpenXLSX(body, opts.XLSX)
		if err != nil {
			return nil, err
		}
		t, err := src.Table()
		if err != nil {
			src.Close()
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
}

// NewSink returns a single-sheet sink for format writing to w.
func NewSink(w io.Writer, format Format, sheet string, widths []int) (document.Sink, error) {
	switch {
	case format.IsText():
		return NewCSVSink(w, format.Delimiter()), nil
	case format == FormatXLSX:
		return NewXLSXSink(w, sheet, widths)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}
