package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/document"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

type item struct {
	SKU   string `sheet:"SKU,required"`
	Count int
}

// events is an in-memory event source.
type events struct {
	rows   [][]string
	err    error
	block  bool
	closed atomic.Bool
}

func (e *events) Walk(ctx context.Context, fn func(int, document.Row) error) error {
	for i, r := range e.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, document.Values(r)); err != nil {
			return err
		}
	}
	if e.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.err
}

func (e *events) Close() error {
	e.closed.Store(true)
	return nil
}

// table is an in-memory random-access document.
type table struct {
	rows   [][]string
	closed bool
}

func (t *table) NumRows() int           { return len(t.rows) }
func (t *table) Row(i int) document.Row { return document.Values(t.rows[i]) }
func (t *table) Close() error           { t.closed = true; return nil }

func itemRows(n int, malformed map[int]bool) [][]string {
	rows := [][]string{{"SKU", "Count"}}
	for i := 1; i <= n; i++ {
		sku := fmt.Sprintf("SKU-%d", i)
		if malformed[i] {
			sku = ""
		}
		rows = append(rows, []string{sku, strconv.Itoa(i)})
	}
	return rows
}

func open(t *testing.T, src Source, opts Options) *Stream[item] {
	t.Helper()
	reg := convert.NewRegistry()
	s, err := Open[item](src, mapping.NewCache(reg), mapping.NewMapper(reg, mapping.DefaultOptions()), opts)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, s *Stream[item]) ([]item, error) {
	t.Helper()
	it, err := s.Iter()
	require.NoError(t, err)
	var out []item
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

func TestStreamAllRows(t *testing.T) {
	src := &events{rows: itemRows(250, nil)}
	s := open(t, src, DefaultOptions())
	defer s.Close()

	got, err := collect(t, s)
	require.NoError(t, err)
	require.Len(t, got, 250)
	assert.Equal(t, item{SKU: "SKU-1", Count: 1}, got[0])
	assert.Equal(t, item{SKU: "SKU-250", Count: 250}, got[249])
	assert.Equal(t, Stats{Mapped: 250}, s.Stats())
}

func TestStreamSkipsMalformedRows(t *testing.T) {
	bad := map[int]bool{3: true, 10: true, 11: true}
	s := open(t, &events{rows: itemRows(20, bad)}, DefaultOptions())
	defer s.Close()

	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Len(t, got, 17)
	assert.Equal(t, Stats{Mapped: 17, Skipped: 3}, s.Stats())
}

func TestStreamHeaderRowOffset(t *testing.T) {
	rows := append([][]string{{"report title"}, {""}}, itemRows(4, nil)...)
	opts := DefaultOptions()
	opts.HeaderRow = 2

	s := open(t, &events{rows: rows}, opts)
	defer s.Close()

	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestStreamEarlyClose(t *testing.T) {
	src := &events{rows: itemRows(1000, nil)}
	opts := DefaultOptions()
	opts.JoinTimeout = 2 * time.Second
	s := open(t, src, opts)

	it, err := s.Iter()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.True(t, it.Next())
	}

	start := time.Now()
	require.NoError(t, s.Close())
	assert.Less(t, time.Since(start), opts.JoinTimeout)

	select {
	case <-s.done:
	default:
		t.Fatal("producer still running after Close")
	}
	assert.True(t, src.closed.Load())

	assert.False(t, it.Next())
	_, err = s.Iter()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close(), "second Close is a no-op")
}

func TestStreamSourceFailure(t *testing.T) {
	boom := errors.New("corrupt archive")
	s := open(t, &events{rows: itemRows(3, nil), err: boom}, DefaultOptions())
	defer s.Close()

	got, err := collect(t, s)
	assert.Len(t, got, 3)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, boom)

	_, err = collect(t, s)
	assert.NoError(t, err, "source failure is reported once")
}

func TestStreamStall(t *testing.T) {
	opts := DefaultOptions()
	opts.StallTimeout = 50 * time.Millisecond
	s := open(t, &events{rows: itemRows(2, nil), block: true}, opts)
	defer s.Close()

	got, err := collect(t, s)
	assert.Len(t, got, 2)
	assert.ErrorIs(t, err, ErrStalled)
}

func TestStreamStallTimerAfterProducerFinished(t *testing.T) {
	opts := DefaultOptions()
	opts.StallTimeout = time.Nanosecond

	// The timer and the closed channel race, so repeat to reach both paths.
	for i := 0; i < 50; i++ {
		for _, n := range []int{0, 3} {
			s := open(t, &events{rows: itemRows(n, nil)}, opts)
			it, err := s.Iter()
			require.NoError(t, err)
			<-s.done

			var got []item
			for it.Next() {
				got = append(got, it.Record())
			}
			require.NoError(t, it.Err())
			require.Len(t, got, n, "buffered records survive the timer")
			assert.False(t, it.Next())
			require.NoError(t, s.Close())
		}
	}
}

func TestStreamBatches(t *testing.T) {
	s := open(t, &events{rows: itemRows(25, nil)}, DefaultOptions())
	defer s.Close()

	batches, err := s.Batches(10)
	require.NoError(t, err)

	var sizes []int
	for batches.Next() {
		sizes = append(sizes, len(batches.Batch()))
	}
	require.NoError(t, batches.Err())
	assert.Equal(t, []int{10, 10, 5}, sizes)

	_, err = s.Batches(0)
	assert.Error(t, err)
}

func TestStreamTableDirect(t *testing.T) {
	src := &table{rows: itemRows(30, map[int]bool{7: true})}
	s := open(t, src, DefaultOptions())

	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Len(t, got, 29)
	assert.Equal(t, Stats{Mapped: 29, Skipped: 1}, s.Stats())
	assert.Nil(t, s.done, "no producer for a table")

	require.NoError(t, s.Close())
	assert.True(t, src.closed)
	_, err = s.Iter()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenRejectsBadSchema(t *testing.T) {
	reg := convert.NewRegistry()
	_, err := Open[int](&events{}, mapping.NewCache(reg), mapping.NewMapper(reg, mapping.DefaultOptions()), DefaultOptions())
	var cfgErr *mapping.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
