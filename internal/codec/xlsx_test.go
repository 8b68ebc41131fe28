package codec

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/document"
)

// dateWorkbook holds a header row and one row of date cells written the
// way spreadsheet applications store them.
func dateWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	dayFirst := "dd/mm/yyyy"
	custom, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dayFirst})
	require.NoError(t, err)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Day", "Stamp", "Custom", "Plain"}))
	require.NoError(t, f.SetCellValue(sheet, "A2", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, f.SetCellValue(sheet, "B2", time.Date(2024, 3, 5, 10, 30, 15, 0, time.UTC)))
	require.NoError(t, f.SetCellValue(sheet, "C2", 45356))
	require.NoError(t, f.SetCellStyle(sheet, "C2", "C2", custom))
	require.NoError(t, f.SetCellValue(sheet, "D2", 45356))

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestXLSXDateCells(t *testing.T) {
	data := dateWorkbook(t)
	want := []any{
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 10, 30, 15, 0, time.UTC),
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"45356",
	}
	values := func(r document.Row) []any {
		out := make([]any, r.Len())
		for i := range out {
			out[i], _ = r.Value(i)
		}
		return out
	}

	t.Run("walk", func(t *testing.T) {
		src, err := OpenXLSX(bytes.NewReader(data), XLSXOptions{})
		require.NoError(t, err)
		defer src.Close()

		var rows [][]any
		err = src.Walk(context.Background(), func(_ int, r document.Row) error {
			rows = append(rows, values(r))
			return nil
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []any{"Day", "Stamp", "Custom", "Plain"}, rows[0])
		assert.Equal(t, want, rows[1])
	})

	t.Run("table", func(t *testing.T) {
		src, err := OpenXLSX(bytes.NewReader(data), XLSXOptions{})
		require.NoError(t, err)
		table, err := src.Table()
		require.NoError(t, err)
		defer table.Close()

		require.Equal(t, 2, table.NumRows())
		assert.Equal(t, want, values(table.Row(1)))
		assert.Equal(t, []string{"2024-03-05", "2024-03-05 10:30:15", "2024-03-05", "45356"}, document.Strings(table.Row(1)))
	})
}

func TestSheetSinkWritesDateCells(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewXLSXSink(&buf, "Dates", nil)
	require.NoError(t, err)
	require.NoError(t, sink.WriteRow([]any{"Day", "Stamp", "Clock", "Moment", "Old"}))
	require.NoError(t, sink.WriteRow([]any{
		convert.NewDate(2024, time.March, 5),
		convert.NewDateTime(2024, time.March, 5, 12, 0, 0, 0),
		convert.NewTimeOfDay(18, 0, 0, 0),
		convert.NewInstant(time.Date(2024, 3, 5, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))),
		convert.NewDate(1899, time.December, 31),
	}))
	require.NoError(t, sink.Close())

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	for cell, want := range map[string]struct {
		raw    string
		numFmt int
	}{
		"A2": {"45356", numFmtDate},
		"B2": {"45356.5", 0},
		"C2": {"0.75", numFmtClock},
		"D2": {"45356.5", 0},
		"E2": {"1899-12-31", 0},
	} {
		raw, err := f.GetCellValue("Dates", cell, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		assert.Equal(t, want.raw, raw, cell)

		id, err := f.GetCellStyle("Dates", cell)
		require.NoError(t, err)
		style, err := f.GetStyle(id)
		require.NoError(t, err)
		if want.numFmt != 0 {
			assert.Equal(t, want.numFmt, style.NumFmt, cell)
		}
		if cell == "B2" || cell == "D2" {
			require.NotNil(t, style.CustomNumFmt, cell)
			assert.Equal(t, dateTimeFormat, *style.CustomNumFmt)
		}
	}

	src, err := OpenXLSX(bytes.NewReader(buf.Bytes()), XLSXOptions{})
	require.NoError(t, err)
	defer src.Close()
	rows := walkAll(t, src)
	assert.Equal(t, []string{"2024-03-05", "2024-03-05 12:00:00", "1899-12-30 18:00:00", "2024-03-05 12:00:00", "1899-12-31"}, rows[1])
}

func TestSerialConversion(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		serial   float64
		date1904 bool
		want     time.Time
	}{
		{1, false, day(1900, time.January, 1)},
		{59, false, day(1900, time.February, 28)},
		{61, false, day(1900, time.March, 1)},
		{45356, false, day(2024, time.March, 5)},
		{45356.5, false, day(2024, time.March, 5).Add(12 * time.Hour)},
		{0.25, false, day(1899, time.December, 30).Add(6 * time.Hour)},
		{0, true, day(1904, time.January, 1)},
	}
	for _, tt := range tests {
		got, ok := serialTime(tt.serial, tt.date1904)
		require.True(t, ok, "serial %v", tt.serial)
		assert.Equal(t, tt.want, got, "serial %v", tt.serial)

		if !tt.date1904 && tt.serial >= 1 {
			back, ok := timeSerial(got)
			require.True(t, ok)
			assert.InDelta(t, tt.serial, back, 1e-9, "serial %v", tt.serial)
		}
	}

	// Milliseconds survive the float round trip.
	stamp := time.Date(2024, 3, 5, 10, 30, 15, 500_000_000, time.UTC)
	serial, ok := timeSerial(stamp)
	require.True(t, ok)
	got, ok := serialTime(serial, false)
	require.True(t, ok)
	assert.Equal(t, stamp, got)

	for _, bad := range []float64{-1, maxSerial + 1} {
		_, ok := serialTime(bad, false)
		assert.False(t, ok, "serial %v", bad)
	}
	_, ok = timeSerial(day(1899, time.December, 31))
	assert.False(t, ok)
}

func TestIsDateFormat(t *testing.T) {
	for code, want := range map[string]bool{
		"yyyy-mm-dd":              true,
		"dd/mm/yyyy hh:mm":        true,
		"[h]:mm:ss":               true,
		"mm:ss.0":                 true,
		"[$-409]d-mmm-yy":         true,
		"General":                 false,
		"#,##0.00":                false,
		"0.00E+00":                false,
		`#,##0 "days"`:            false,
		`0\d`:                     false,
		"[Red]#,##0;[Blue]0":      false,
		`_(* #,##0_);_(* (#,##0)`: false,
	} {
		assert.Equal(t, want, isDateFormat(code), code)
	}

	assert.True(t, isDateNumFmt(14))
	assert.True(t, isDateNumFmt(22))
	assert.False(t, isDateNumFmt(2))
}
