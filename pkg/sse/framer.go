package sse

import (
	"bytes"
	"strings"
)

var delimiter = []byte("\n\n")

// Framer splits a sequence of raw chunks into Blocks on the "\n\n"
// delimiter. It keeps its own carry-over buffer so a block may arrive
// across any number of chunks, and one chunk may hold many blocks.
//
// A Framer is not safe for concurrent use; one stream has one reader.
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the carry-over buffer and returns every Block that
// is now complete, in order. Surrounding line breaks are trimmed from each
// block; spaces are kept since streamed tokens often end in one. Blank
// blocks and heartbeat blocks made only of comment lines are discarded.
func (f *Framer) Feed(chunk []byte) []Block {
	f.buf = append(f.buf, chunk...)

	var blocks []Block
	consumed := 0
	for {
		i := bytes.Index(f.buf[consumed:], delimiter)
		if i < 0 {
			break
		}

		raw := strings.Trim(string(f.buf[consumed:consumed+i]), "\r\n")
		consumed += i + len(delimiter)

		if strings.TrimSpace(raw) == "" || isHeartbeat(raw) {
			continue
		}
		blocks = append(blocks, Block(raw))
	}

	if consumed > 0 {
		f.buf = append(f.buf[:0], f.buf[consumed:]...)
	}

	return blocks
}

// Remainder returns the buffered bytes that have not been terminated by a
// blank line yet. At end of stream this is the incomplete trailing event,
// which is never emitted.
func (f *Framer) Remainder() string {
	return strings.TrimSpace(string(f.buf))
}

// Reset discards any buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// isHeartbeat reports whether every line of raw is an SSE comment.
func isHeartbeat(raw string) bool {
	for line := range strings.SplitSeq(raw, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), ":") {
			return false
		}
	}
	return true
}
