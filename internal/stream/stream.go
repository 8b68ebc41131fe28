// Package stream delivers mapped records from a document under bounded
// memory.
//
// An event-driven document is read by one producer goroutine that maps each
// row and hands records to the consumer over a buffered channel. The
// channel capacity bounds memory and blocks the producer when the consumer
// falls behind. A document already held in memory is iterated directly
// without a goroutine.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/rowbind/internal/document"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

const (
	DefaultQueueSize    = 100
	DefaultStallTimeout = 60 * time.Second
	DefaultJoinTimeout  = 5 * time.Second
)

var (
	// ErrClosed is returned when iterating a stream after Close.
	ErrClosed = errors.New("stream has been closed")

	// ErrStalled is wrapped in a StreamError when the producer delivers
	// nothing within the stall timeout but is still running.
	ErrStalled = errors.New("timed out waiting for next row")
)

// StreamError is a document-level failure that ended the stream.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %v", e.Err)
}

// Unwrap returns the underlying failure.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Options configures a stream.
type Options struct {
	HeaderRow    int             // Zero-based physical row holding the headers
	QueueSize    int             // Records buffered between producer and consumer
	StallTimeout time.Duration   // Longest wait for the next record
	JoinTimeout  time.Duration   // Longest wait for the producer on Close
	Aliases      mapping.Aliases // Alternative headers per field (optional)
	Input        ByteCounter     // Reports input consumed (optional)
	Logger       *slog.Logger
}

// ByteCounter reports how many input bytes have been read.
type ByteCounter interface {
	BytesRead() int64
}

// DefaultOptions returns the default queue size and timeouts.
func DefaultOptions() Options {
	return Options{
		QueueSize:    DefaultQueueSize,
		StallTimeout: DefaultStallTimeout,
		JoinTimeout:  DefaultJoinTimeout,
	}
}

func (o *Options) normalize() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.HeaderRow < 0 {
		o.HeaderRow = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Source is a document a stream can read: a document.EventSource or a
// document.Table.
type Source interface {
	Close() error
}

// Stats counts the rows a stream has handled so far.
type Stats struct {
	Mapped    int64
	Skipped   int64
	BytesRead int64 // Zero without Options.Input
}

// Stream reads records of type T from one document.
type Stream[T any] struct {
	schema *mapping.Schema
	mapper *mapping.Mapper
	opts   Options
	log    *slog.Logger

	events document.EventSource
	table  document.Table
	source Source

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	started bool

	records  chan T
	done     chan struct{}
	srcErr   error // Set by the producer before records is closed
	reported atomic.Bool

	mapped  atomic.Int64
	skipped atomic.Int64
}

// Open prepares a stream of T over src. The schema is built here so that
// configuration errors surface before any row is read. Nothing is read
// until the first call to Iter.
func Open[T any](src Source, cache *mapping.Cache, mapper *mapping.Mapper, opts Options) (*Stream[T], error) {
	schema, err := mapping.SchemaOf[T](cache)
	if err != nil {
		return nil, err
	}
	opts.normalize()

	s := &Stream[T]{
		schema: schema,
		mapper: mapper,
		opts:   opts,
		log:    opts.Logger,
		source: src,
	}
	switch v := src.(type) {
	case document.Table:
		s.table = v
	case document.EventSource:
		s.events = v
		s.records = make(chan T, opts.QueueSize)
		s.done = make(chan struct{})
	default:
		return nil, fmt.Errorf("unsupported stream source %T", src)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Schema returns the schema records are mapped with.
func (s *Stream[T]) Schema() *mapping.Schema {
	return s.schema
}

// Iter returns an iterator over the stream. The first call starts the
// producer. Iterators share the stream's single producer.
func (s *Stream[T]) Iter() (*Iterator[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.events != nil && !s.started {
		s.started = true
		go s.produce()
	}
	return &Iterator[T]{s: s}, nil
}

// Batches returns a view grouping consecutive records into slices of size.
func (s *Stream[T]) Batches(size int) (*Batches[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	it, err := s.Iter()
	if err != nil {
		return nil, err
	}
	return &Batches[T]{it: it, size: size}, nil
}

// Stats returns the mapped and skipped row counts and the input consumed
// so far.
func (s *Stream[T]) Stats() Stats {
	st := Stats{Mapped: s.mapped.Load(), Skipped: s.skipped.Load()}
	if s.opts.Input != nil {
		st.BytesRead = s.opts.Input.BytesRead()
	}
	return st
}

// Close stops the producer and releases the document. It waits at most the
// join timeout for the producer to exit. Only the first call has effect.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.cancel()

	if !started {
		return s.source.Close()
	}

	timer := time.NewTimer(s.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return s.source.Close()
	case <-timer.C:
		s.log.Warn("stream producer did not stop within join timeout",
			"timeout", s.opts.JoinTimeout,
		)
		go func() {
			<-s.done
			if err := s.source.Close(); err != nil {
				s.log.Warn("close stream source", "error", err)
			}
		}()
		return nil
	}
}

func (s *Stream[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// produce walks the event source, mapping rows onto the records channel.
func (s *Stream[T]) produce() {
	defer close(s.done)
	defer close(s.records)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in stream producer", "panic", r)
			s.srcErr = fmt.Errorf("internal error: %v", r)
		}
	}()

	var bindings []mapping.Binding
	haveHeader := false

	err := s.events.Walk(s.ctx, func(index int, row document.Row) error {
		if index < s.opts.HeaderRow {
			return nil
		}
		if !haveHeader {
			resolver := mapping.NewResolver(document.Strings(row))
			bindings = s.opts.Aliases.ResolveFields(s.schema, resolver)
			haveHeader = true
			return nil
		}

		rowNum := index - s.opts.HeaderRow
		rec, ok := s.mapRow(bindings, row, rowNum)
		if !ok {
			return nil
		}

		select {
		case s.records <- rec:
			return nil
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	})

	if err != nil && s.ctx.Err() == nil {
		s.log.Warn("stream source failed", "error", err)
		s.srcErr = err
	}
}

// mapRow maps one data row, counting and logging rows that fail.
func (s *Stream[T]) mapRow(bindings []mapping.Binding, row document.Row, rowNum int) (T, bool) {
	var zero T
	v, err := s.mapper.MapRow(s.schema, bindings, row, rowNum)
	if err != nil {
		s.skipped.Add(1)
		s.log.Debug("skipping row", "row", rowNum, "error", err)
		return zero, false
	}
	if !v.IsValid() {
		return zero, false
	}
	s.mapped.Add(1)
	return v.Elem().Interface().(T), true
}

// failure returns the recorded source error the first time it is asked for.
func (s *Stream[T]) failure() error {
	if s.srcErr == nil || !s.reported.CompareAndSwap(false, true) {
		return nil
	}
	return &StreamError{Err: s.srcErr}
}
