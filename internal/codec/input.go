package codec

// input.go prepares raw upload bytes for the text codecs without buffering
// the whole document:
//
//   - charset decoding: converts legacy encodings (windows-1252, latin1...) to UTF-8
//   - bomReader: drops a leading UTF-8 byte order mark
//   - sanitizer: replaces invalid UTF-8 with U+FFFD
//
// Use WrapInput to apply them in order. CountingReader sits in front of the
// decompressor and tracks the upload bytes consumed.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CountingReader counts the bytes read through it. The count is safe to
// read from another goroutine.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n.Load()
}

// bomReader skips a UTF-8 byte order mark at the start of the stream.
type bomReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{br: bufio.NewReader(r)}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.br.Peek(len(utf8BOM))
		if bytes.Equal(head, utf8BOM) {
			if _, err := b.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		} else if err != nil && err != io.EOF && len(head) == 0 {
			return 0, err
		}
	}
	return b.br.Read(p)
}

// sanitizer replaces invalid UTF-8 sequences with U+FFFD. A multi-byte
// sequence split across reads is held back until it completes.
type sanitizer struct {
	src io.Reader
	tmp []byte
	raw []byte // Undecoded input
	out []byte // Decoded output not yet returned
	err error
}

func newSanitizer(r io.Reader) *sanitizer {
	return &sanitizer{src: r, tmp: make([]byte, 32*1024)}
}

func (s *sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.src.Read(s.tmp)
		s.raw = append(s.raw, s.tmp[:n]...)
		s.err = err
		s.decode(err != nil)
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// decode moves complete runes from raw to out. At the end of input every
// remaining byte is flushed.
func (s *sanitizer) decode(final bool) {
	if isASCII(s.raw) || utf8.Valid(s.raw) {
		s.out = append(s.out, s.raw...)
		s.raw = s.raw[:0]
		return
	}

	i := 0
	for i < len(s.raw) {
		r, size := utf8.DecodeRune(s.raw[i:])
		if r == utf8.RuneError && size <= 1 {
			if !final && !utf8.FullRune(s.raw[i:]) {
				break
			}
			s.out = append(s.out, "\uFFFD"...)
			i++
			continue
		}
		s.out = append(s.out, s.raw[i:i+size]...)
		i += size
	}
	s.raw = append(s.raw[:0], s.raw[i:]...)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// InputOptions configures WrapInput.
type InputOptions struct {
	Charset string // IANA or WHATWG encoding label, empty for UTF-8
}

// WrapInput prepares r for a text codec. The order matters: bytes are
// decoded to UTF-8, stripped of a BOM and finally sanitized.
func WrapInput(r io.Reader, opts InputOptions) (io.Reader, error) {
	decoded := r
	if cs := strings.ToLower(strings.TrimSpace(opts.Charset)); cs != "" && cs != "utf-8" && cs != "utf8" {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q: %w", opts.Charset, err)
		}
		decoded = enc.NewDecoder().Reader(r)
	}

	return newSanitizer(newBOMReader(decoded)), nil
}
