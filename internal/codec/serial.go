package codec

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

// maxStyles bounds the scan of a workbook's cell formats.
const maxStyles = 1 << 16

// maxSerial is 9999-12-31, the last day a worksheet can hold.
const maxSerial = 2958465

var (
	epoch1900 = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Serials below 61 sit before the fictitious 1900-02-29 and count from
	// one day later.
	leapBugEpoch = time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)
	leapBugEnd   = time.Date(1900, time.March, 1, 0, 0, 0, 0, time.UTC)
	firstDay     = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// dateCells turns numeric cells carrying a date or time number format into
// time.Time values. A workbook without any such format never touches the
// worksheet model.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool

	mu sync.Mutex
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	for id := 0; id < maxStyles; id++ {
		style, err := f.GetStyle(id)
		if err != nil {
			break
		}
		if dateStyle(style) {
			d.styles[id] = true
		}
	}
	return d
}

// value returns the cell at zero-based col and row: a time.Time when raw is
// a serial under a date format, otherwise raw itself.
func (d *dateCells) value(col, row int, raw string) any {
	if len(d.styles) == 0 {
		return raw
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || !d.isDate(col, row) {
		return raw
	}
	t, ok := serialTime(serial, d.date1904)
	if !ok {
		return raw
	}
	return t
}

func (d *dateCells) isDate(col, row int) bool {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.f.GetCellStyle(d.sheet, name)
	if err != nil {
		return false
	}
	return d.styles[id]
}

func dateStyle(s *excelize.Style) bool {
	if s == nil {
		return false
	}
	if s.CustomNumFmt != nil {
		return isDateFormat(*s.CustomNumFmt)
	}
	return isDateNumFmt(s.NumFmt)
}

// isDateNumFmt reports whether a built-in number format ID renders a date
// or a time.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58,
		id >= 71 && id <= 81:
		return true
	}
	return false
}

// isDateFormat reports whether a custom format code uses a date or time
// token outside quoted literals, escapes and bracketed sections.
func isDateFormat(code string) bool {
	var quoted, bracketed bool
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case quoted:
			quoted = c != '"'
		case bracketed:
			bracketed = c != ']'
		case c == '"':
			quoted = true
		case c == '[':
			// [h], [mm] and [ss] are elapsed time.
			if i+1 < len(code) && strings.IndexByte("hHmMsS", code[i+1]) >= 0 {
				return true
			}
			bracketed = true
		case c == '\\', c == '_', c == '*':
			i++
		default:
			switch c | 0x20 {
			case 'y', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}

// serialTime converts a worksheet serial to UTC, keeping millisecond
// precision.
func serialTime(serial float64, date1904 bool) (time.Time, bool) {
	if math.IsNaN(serial) || serial < 0 || serial > maxSerial {
		return time.Time{}, false
	}
	epoch := epoch1900
	switch {
	case date1904:
		epoch = epoch1904
	case serial >= 1 && serial < 61:
		epoch = leapBugEpoch
	}
	days := math.Floor(serial)
	ms := math.Round((serial - days) * 86400e3)
	return epoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond), true
}

// timeSerial converts the wall clock of t to a 1900-system serial. Times
// before 1900 have no serial.
func timeSerial(t time.Time) (float64, bool) {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	if wall.Before(firstDay) {
		return 0, false
	}
	epoch := epoch1900
	if wall.Before(leapBugEnd) {
		epoch = leapBugEpoch
	}
	secs := wall.Unix() - epoch.Unix()
	return float64(secs)/86400 + float64(wall.Nanosecond())/86400e9, true
}

// clockSerial converts a time of day to a fraction of a day.
func clockSerial(t time.Time) float64 {
	d := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return d.Hours() / 24
}
