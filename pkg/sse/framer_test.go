package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Framer", func() {
	var f *Framer

	BeforeEach(func() {
		f = NewFramer()
	})

	Describe("Feed", func() {
		It("emits a single complete block", func() {
			blocks := f.Feed([]byte("data: TEXT:hello\n\n"))
			Expect(blocks).To(Equal([]Block{"data: TEXT:hello"}))
			Expect(f.Remainder()).To(BeEmpty())
		})

		It("emits multiple blocks arriving in one chunk", func() {
			blocks := f.Feed([]byte("data: TEXT:a\n\ndata: TEXT:b\n\ndata: DONE\n\n"))
			Expect(blocks).To(Equal([]Block{"data: TEXT:a", "data: TEXT:b", "data: DONE"}))
		})

		It("holds a block split across chunks until its delimiter arrives", func() {
			Expect(f.Feed([]byte("event: hedge_conv"))).To(BeEmpty())
			Expect(f.Feed([]byte("ersation_created\ndata: {\"hedgeConv"))).To(BeEmpty())
			blocks := f.Feed([]byte("ersationId\":\"abc123\"}\n\n"))
			Expect(blocks).To(Equal([]Block{"event: hedge_conversation_created\ndata: {\"hedgeConversationId\":\"abc123\"}"}))
		})

		It("detects a delimiter split between two chunks", func() {
			Expect(f.Feed([]byte("data: TEXT:x\n"))).To(BeEmpty())
			Expect(f.Feed([]byte("\ndata: TEXT:y"))).To(Equal([]Block{"data: TEXT:x"}))
			Expect(f.Remainder()).To(Equal("data: TEXT:y"))
		})

		It("keeps trailing spaces of the last line", func() {
			blocks := f.Feed([]byte("data: TEXT:Hello \n\n"))
			Expect(blocks).To(Equal([]Block{"data: TEXT:Hello "}))
		})

		It("discards empty blocks", func() {
			Expect(f.Feed([]byte("\n\n\n\n  \n\n"))).To(BeEmpty())
		})

		It("discards heartbeat comment blocks", func() {
			blocks := f.Feed([]byte(": ping\n\n:keep-alive\n: again\n\ndata: TEXT:ok\n\n"))
			Expect(blocks).To(Equal([]Block{"data: TEXT:ok"}))
		})

		It("keeps an unterminated trailing event out of the output", func() {
			Expect(f.Feed([]byte("data: TEXT:never finished"))).To(BeEmpty())
			Expect(f.Remainder()).To(Equal("data: TEXT:never finished"))
		})
	})

	Describe("Reset", func() {
		It("drops buffered bytes", func() {
			f.Feed([]byte("data: partial"))
			f.Reset()
			Expect(f.Remainder()).To(BeEmpty())
			Expect(f.Feed([]byte("data: TEXT:fresh\n\n"))).To(Equal([]Block{"data: TEXT:fresh"}))
		})
	})
})

var _ = Describe("ParseBlock", func() {
	It("parses a data-only block", func() {
		ev, ok := ParseBlock("data: TEXT:Hello ")
		Expect(ok).To(BeTrue())
		Expect(ev.Type).To(BeEmpty())
		Expect(ev.Data).To(Equal("TEXT:Hello "))
	})

	It("parses event type and data", func() {
		ev, ok := ParseBlock("event: hedge_conversation_created\ndata: {\"hedgeConversationId\":\"abc123\"}")
		Expect(ok).To(BeTrue())
		Expect(ev.Type).To(Equal("hedge_conversation_created"))
		Expect(ev.Data).To(Equal("{\"hedgeConversationId\":\"abc123\"}"))
	})

	It("parses data with no space after the colon", func() {
		ev, ok := ParseBlock("data:DONE")
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("DONE"))
	})

	It("matches the data payload greedily to the end of the block", func() {
		ev, ok := ParseBlock("data: TEXT:line one\nline two")
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("TEXT:line one\nline two"))
	})

	It("joins repeated data lines with a newline", func() {
		ev, ok := ParseBlock("data: TEXT:first\ndata: second")
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("TEXT:first\nsecond"))
	})

	It("reads an event line that follows the data line", func() {
		ev, ok := ParseBlock("data: {\"hedgeConversationId\":\"abc123\"}\nevent: hedge_conversation_created")
		Expect(ok).To(BeTrue())
		Expect(ev.Type).To(Equal("hedge_conversation_created"))
		Expect(ev.Data).To(Equal("{\"hedgeConversationId\":\"abc123\"}"))
	})

	It("keeps payload lines around a trailing id line", func() {
		ev, ok := ParseBlock("data: TEXT:one\nid: 7\ntwo")
		Expect(ok).To(BeTrue())
		Expect(ev.ID).To(Equal("7"))
		Expect(ev.Data).To(Equal("TEXT:one\ntwo"))
	})

	It("captures the event id", func() {
		ev, ok := ParseBlock("id: 42\ndata: TEXT:hi")
		Expect(ok).To(BeTrue())
		Expect(ev.ID).To(Equal("42"))
	})

	It("ignores comment lines inside a block", func() {
		ev, ok := ParseBlock(": comment\ndata: TEXT:hi")
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("TEXT:hi"))
	})

	It("reports no event for comment-only blocks", func() {
		_, ok := ParseBlock(": heartbeat")
		Expect(ok).To(BeFalse())
	})

	It("reports no event for blocks with only unknown fields", func() {
		_, ok := ParseBlock("retry: 3000")
		Expect(ok).To(BeFalse())
	})
})
