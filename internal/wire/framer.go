package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxLineBytes bounds a single line before it is discarded.
const DefaultMaxLineBytes = 4096

// ErrLineTooLong is returned once for a line that exceeded MaxLineBytes. The
// oversized bytes are dropped up to and including the next terminator.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// PartialLineError carries bytes left unterminated when the stream ended.
type PartialLineError struct {
	Raw []byte
}

func (e *PartialLineError) Error() string {
	return fmt.Sprintf("stream ended with %d unterminated bytes", len(e.Raw))
}

func (e *PartialLineError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// FramerOptions tune line framing.
type FramerOptions struct {
	Charset      Charset
	AcceptBareLF bool
	MaxLineBytes int
	DetectBOM    bool
}

func (o FramerOptions) normalized() FramerOptions {
	if o.Charset == "" {
		o.Charset = CharsetUTF8
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	return o
}

// Framer splits a byte stream into CRLF-terminated messages. Bytes after the
// last terminator stay buffered across read errors, so a read timeout never
// loses a partial line.
type Framer struct {
	opts       FramerOptions
	r          *bufio.Reader
	pending    []byte
	discarding bool
	lines      uint64
}

// NewFramer wraps r.
func NewFramer(r io.Reader, opts FramerOptions) *Framer {
	f := &Framer{opts: opts.normalized()}
	f.r = bufio.NewReaderSize(f.source(r), 512)
	return f
}

func (f *Framer) source(r io.Reader) io.Reader {
	if f.opts.DetectBOM {
		return NewBOMReader(r)
	}
	return r
}

// Reset discards buffered state and reads from r.
func (f *Framer) Reset(r io.Reader) {
	f.r.Reset(f.source(r))
	f.pending = f.pending[:0]
	f.discarding = false
}

// Lines reports how many messages were produced.
func (f *Framer) Lines() uint64 {
	return f.lines
}

// Buffered reports the bytes of the line currently being assembled.
func (f *Framer) Buffered() int {
	return len(f.pending) + f.r.Buffered()
}

// Next returns the next complete message. At end of stream it returns a
// *PartialLineError for unterminated bytes, then io.EOF. Other read errors
// are returned as-is and the partial line is kept.
func (f *Framer) Next() (Message, error) {
	for {
		chunk, err := f.r.ReadSlice('\n')
		f.pending = append(f.pending, chunk...)
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				f.enforceLimit()
				continue
			}
			if errors.Is(err, io.EOF) && len(f.pending) > 0 {
				raw := append([]byte(nil), f.pending...)
				discarded := f.discarding
				f.pending = f.pending[:0]
				f.discarding = false
				if discarded {
					return Message{}, ErrLineTooLong
				}
				return Message{}, &PartialLineError{Raw: raw}
			}
			return Message{}, err
		}

		n := len(f.pending)
		crlf := n >= 2 && f.pending[n-2] == '\r'
		if !crlf && !f.opts.AcceptBareLF {
			f.enforceLimit()
			continue
		}
		cut := n - 1
		if crlf {
			cut = n - 2
		}
		line := append([]byte(nil), f.pending[:cut]...)
		f.pending = f.pending[:0]
		if f.discarding || len(line) > f.opts.MaxLineBytes {
			f.discarding = false
			return Message{}, ErrLineTooLong
		}
		text, err := Decode(line, f.opts.Charset)
		if err != nil {
			return Message{}, err
		}
		f.lines++
		return Parse(text), nil
	}
}

// enforceLimit drops an oversized line but keeps its last byte so a CR
// split from its LF is still recognised.
func (f *Framer) enforceLimit() {
	if len(f.pending) <= f.opts.MaxLineBytes+1 {
		return
	}
	last := f.pending[len(f.pending)-1]
	f.pending = append(f.pending[:0], last)
	f.discarding = true
}
