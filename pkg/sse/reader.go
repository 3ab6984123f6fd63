package sse

import (
	"errors"
	"fmt"
	"io"
)

const defaultChunkSize = 32 * 1024

// TeeError wraps a failure writing to the tee destination. It usually means
// the downstream client went away.
type TeeError struct {
	Err error
}

func (e *TeeError) Error() string {
	return fmt.Sprintf("writing to tee destination: %v", e.Err)
}

func (e *TeeError) Unwrap() error {
	return e.Err
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTee writes every raw chunk read from the source verbatim to dest
// before it is framed.
func WithTee(dest io.Writer) ReaderOption {
	return func(r *Reader) {
		r.dest = dest
	}
}

// WithChunkSize overrides the size of a single read from the source.
func WithChunkSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// Reader reads SSE events from a source io.Reader, optionally writing all
// raw bytes verbatim to a destination io.Writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │  Reader.Next()   │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
type Reader struct {
	src       io.Reader
	dest      io.Writer
	chunkSize int

	framer  *Framer
	pending []Block
	chunk   []byte
	done    bool
}

// NewReader returns a Reader that frames SSE events from src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:       src,
		chunkSize: defaultChunkSize,
		framer:    NewFramer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.chunk = make([]byte, r.chunkSize)

	return r
}

// Next returns the next parsed SSE event. It blocks until a complete event
// is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted. An unterminated
// trailing event is dropped at that point; see Remainder.
//
// Read failures from the source are returned as-is, failures writing to
// the tee destination are returned as *TeeError.
func (r *Reader) Next() (*Event, error) {
	for {
		for len(r.pending) > 0 {
			b := r.pending[0]
			r.pending = r.pending[1:]
			if ev, ok := ParseBlock(b); ok {
				return ev, nil
			}
		}

		if r.done {
			return nil, nil
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			if r.dest != nil {
				if _, werr := r.dest.Write(r.chunk[:n]); werr != nil {
					return nil, &TeeError{Err: werr}
				}
			}
			r.pending = append(r.pending, r.framer.Feed(r.chunk[:n])...)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				continue
			}
			return nil, err
		}
	}
}

// Tees reports whether raw bytes are forwarded to a destination.
func (r *Reader) Tees() bool {
	return r.dest != nil
}

// Remainder returns the incomplete trailing bytes that were buffered when
// the source ended without a terminating blank line.
func (r *Reader) Remainder() string {
	return r.framer.Remainder()
}
