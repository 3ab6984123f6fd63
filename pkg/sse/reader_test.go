package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// failingWriter rejects every write, standing in for a disconnected client.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func drain(r *Reader) []*Event {
	var events []*Event
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, ev)
	}
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("parses a single event", func() {
			r := NewReader(strings.NewReader("data: TEXT:hello world\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("TEXT:hello world"))

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("parses events delivered one byte at a time", func() {
			input := "data: TEXT:Hello \n\ndata: TEXT:world\n\ndata: DONE\n\n"
			r := NewReader(iotest.OneByteReader(strings.NewReader(input)))

			events := drain(r)
			Expect(events).To(HaveLen(3))
			Expect(events[0].Data).To(Equal("TEXT:Hello "))
			Expect(events[1].Data).To(Equal("TEXT:world"))
			Expect(events[2].Data).To(Equal("DONE"))
		})

		It("skips heartbeat blocks", func() {
			r := NewReader(strings.NewReader(": ping\n\ndata: TEXT:a\n\n"))
			events := drain(r)
			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("TEXT:a"))
		})

		It("drops an unterminated trailing event at end of stream", func() {
			r := NewReader(strings.NewReader("data: TEXT:a\n\ndata: TEXT:cut"))
			events := drain(r)
			Expect(events).To(HaveLen(1))
			Expect(r.Remainder()).To(Equal("data: TEXT:cut"))
		})

		It("returns nil on empty input", func() {
			r := NewReader(strings.NewReader(""))
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("surfaces source read errors", func() {
			boom := errors.New("connection reset")
			src := io.MultiReader(strings.NewReader("data: TEXT:a\n\n"), iotest.ErrReader(boom))
			r := NewReader(src, WithChunkSize(4))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("TEXT:a"))

			_, err = r.Next()
			Expect(err).To(MatchError(boom))
		})
	})

	Describe("tee", func() {
		It("forwards all bytes verbatim to the destination", func() {
			input := ": ping\n\nevent: hedge_conversation_created\ndata: {\"hedgeConversationId\":\"c1\"}\n\ndata: TEXT:Hi\n\ndata: DONE\n\n"
			dst := &bytes.Buffer{}
			r := NewReader(strings.NewReader(input), WithTee(dst), WithChunkSize(7))

			drain(r)
			Expect(dst.String()).To(Equal(input))
		})

		It("reports destination failures as a TeeError", func() {
			r := NewReader(strings.NewReader("data: TEXT:Hi\n\n"), WithTee(failingWriter{}))

			_, err := r.Next()
			var teeErr *TeeError
			Expect(errors.As(err, &teeErr)).To(BeTrue())
			Expect(errors.Is(err, io.ErrClosedPipe)).To(BeTrue())
		})
	})
})
