// Package codec reads and writes the document formats the mapping engine
// understands: delimited text through encoding/csv and XLSX workbooks
// through excelize. Sources yield document rows; sinks accept rendered rows.
package codec

import (
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	// ErrUnsupportedFormat is returned for file names no codec handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoSheets is returned for a workbook without worksheets.
	ErrNoSheets = errors.New("workbook has no sheets")

	// ErrSheetNotFound is returned when the requested worksheet is missing.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Format identifies a document codec.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// Delimiter returns the field separator for a text format.
func (f Format) Delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// IsText reports whether the format is delimited text.
func (f Format) IsText() bool {
	return f == FormatCSV || f == FormatTSV
}

// ContentType returns the MIME type used when serving a document.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatTSV:
		return "text/tab-separated-values"
	default:
		return "text/csv"
	}
}

// Compression identifies a compression wrapper around a document.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionZstd
	CompressionXZ
)

var compressionExt = map[string]Compression{
	".gz":  CompressionGzip,
	".bz2": CompressionBzip2,
	".zst": CompressionZstd,
	".xz":  CompressionXZ,
}

// ParseFormat maps a format name ("csv", "tsv", "xlsx") to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "csv":
		return FormatCSV, nil
	case "tsv", "tab":
		return FormatTSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// DetectFormat infers the format and compression from a file name, such as
// "orders.csv" or "orders.tsv.gz". Legacy binary .xls files are rejected.
func DetectFormat(name string) (Format, Compression, error) {
	lower := strings.ToLower(name)
	comp := CompressionNone

	ext := filepath.Ext(lower)
	if c, ok := compressionExt[ext]; ok {
		comp = c
		lower = strings.TrimSuffix(lower, ext)
		ext = filepath.Ext(lower)
	}

	switch ext {
	case ".csv":
		return FormatCSV, comp, nil
	case ".tsv", ".tab":
		return FormatTSV, comp, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, comp, nil
	}
	return FormatUnknown, comp, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Decompress wraps r according to c. Closing the result releases decoder
// resources but not r itself.
func Decompress(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open xz stream: %w", err)
		}
		return io.NopCloser(xr), nil
	}
	return nil, fmt.Errorf("unknown compression %d", c)
}
