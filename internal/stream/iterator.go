package stream

import (
	"time"

	"github.com/JonMunkholm/rowbind/internal/document"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

// Iterator pulls records from a stream.
//
//	it, err := s.Iter()
//	for it.Next() {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] struct {
	s    *Stream[T]
	cur  T
	err  error
	done bool

	// Direct iteration over a table.
	row        int
	bindings   []mapping.Binding
	haveHeader bool
}

// Next advances to the next record. It returns false at the end of the
// stream, after Close, or on failure; Err distinguishes the cases.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	if it.s.isClosed() {
		it.finish(nil)
		return false
	}
	if it.s.table != nil {
		return it.nextRow()
	}
	return it.receive()
}

// Record returns the record Next advanced to.
func (it *Iterator[T]) Record() T {
	return it.cur
}

// Err returns the failure that ended iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

func (it *Iterator[T]) finish(err error) {
	var zero T
	it.cur = zero
	it.done = true
	it.err = err
}

func (it *Iterator[T]) receive() bool {
	s := it.s
	timer := time.NewTimer(s.opts.StallTimeout)
	defer timer.Stop()

	select {
	case rec, ok := <-s.records:
		return it.take(rec, ok)
	case <-s.ctx.Done():
		it.finish(nil)
		return false
	case <-timer.C:
		select {
		case <-s.done:
			// records is closed, so buffered records drain without blocking.
			rec, ok := <-s.records
			return it.take(rec, ok)
		default:
			it.finish(&StreamError{Err: ErrStalled})
			return false
		}
	}
}

func (it *Iterator[T]) take(rec T, ok bool) bool {
	if !ok {
		it.finish(it.s.failure())
		return false
	}
	it.cur = rec
	return true
}

func (it *Iterator[T]) nextRow() bool {
	s := it.s
	for it.row < s.table.NumRows() {
		if s.ctx.Err() != nil {
			it.finish(nil)
			return false
		}

		index := it.row
		it.row++
		if index < s.opts.HeaderRow {
			continue
		}

		row := s.table.Row(index)
		if !it.haveHeader {
			resolver := mapping.NewResolver(document.Strings(row))
			it.bindings = s.opts.Aliases.ResolveFields(s.schema, resolver)
			it.haveHeader = true
			continue
		}

		if rec, ok := s.mapRow(it.bindings, row, index-s.opts.HeaderRow); ok {
			it.cur = rec
			return true
		}
	}
	it.finish(nil)
	return false
}

// Batches groups consecutive records from one iterator.
type Batches[T any] struct {
	it    *Iterator[T]
	size  int
	batch []T
}

// Next fills the next batch. The last batch may be shorter than the size.
func (b *Batches[T]) Next() bool {
	b.batch = make([]T, 0, b.size)
	for len(b.batch) < b.size && b.it.Next() {
		b.batch = append(b.batch, b.it.Record())
	}
	return len(b.batch) > 0
}

// Batch returns the batch Next filled.
func (b *Batches[T]) Batch() []T {
	return b.batch
}

// Err returns the failure that ended iteration, if any.
func (b *Batches[T]) Err() error {
	return b.it.Err()
}
