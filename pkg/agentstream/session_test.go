package agentstream

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingSink collects every completion it receives.
type recordingSink struct {
	mu          sync.Mutex
	completions []Completion
	err         error
}

func (r *recordingSink) Persist(_ context.Context, c Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, c)
	return r.err
}

func (r *recordingSink) all() []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Completion, len(r.completions))
	copy(out, r.completions)
	return out
}

var _ = Describe("Session", func() {
	var (
		ctx  context.Context
		sink *recordingSink
		s    *Session
	)

	text := func(c string) Event { return Event{Kind: KindText, Content: c} }
	thought := func(c string) Event { return Event{Kind: KindThought, Content: c} }
	tool := func(name, status string) Event { return Event{Kind: KindTool, ToolName: name, ToolStatus: status} }
	done := Event{Kind: KindDone}

	BeforeEach(func() {
		ctx = context.Background()
		sink = &recordingSink{}
		s = NewSession(WithSink(sink))
	})

	Describe("text accumulation", func() {
		It("concatenates text payloads without think markers", func() {
			for _, part := range []string{"Hello ", "world", "\nsecond line"} {
				s.Apply(ctx, text(part))
			}
			Expect(s.FinalText()).To(Equal("Hello world\nsecond line"))
			Expect(s.Display().String()).To(Equal(s.FinalText()))
		})

		It("excludes a think span split across payloads from the display", func() {
			s.Apply(ctx, text("before<thi"))
			s.Apply(ctx, text("nk>hidden</think>after"))
			s.Apply(ctx, done)

			Expect(s.FinalText()).To(Equal("beforeafter"))
			Expect(s.Display().String()).To(Equal("beforeafter"))
			Expect(s.Phases()).To(Equal([]string{"hidden"}))
		})

		It("strips a closer without a preceding opener", func() {
			s.Apply(ctx, text("plain</think> answer"))
			Expect(s.FinalText()).To(Equal("plain answer"))
			Expect(s.ThinkMode()).To(Equal(ThinkOutside))
		})

		It("flushes an unterminated think span as a final phase", func() {
			s.Apply(ctx, text("ok<think>still reasoning"))
			Expect(s.ThinkMode()).To(Equal(ThinkInside))
			Expect(s.Finish(ctx, ReasonEOF, nil)).To(Succeed())

			c, ok := s.Completion()
			Expect(ok).To(BeTrue())
			Expect(c.FinalText).To(Equal("ok"))
			Expect(c.Phases).To(Equal([]string{"still reasoning"}))
		})
	})

	Describe("phases", func() {
		It("flushes exactly one trailing phase on DONE when the open buffer has text", func() {
			s.Apply(ctx, thought("first"))
			s.Apply(ctx, tool("search", ToolRunning))
			s.Apply(ctx, thought("second"))
			Expect(s.Phases()).To(HaveLen(1))

			s.Apply(ctx, done)
			Expect(s.Phases()).To(Equal([]string{"first", "second"}))
		})

		It("flushes no phase on DONE when the open buffer is empty", func() {
			s.Apply(ctx, thought("first"))
			s.Apply(ctx, tool("search", ToolRunning))
			Expect(s.Phases()).To(HaveLen(1))

			s.Apply(ctx, done)
			Expect(s.Phases()).To(HaveLen(1))
		})

		It("closes the open phase on an error event", func() {
			s.Apply(ctx, thought("looking"))
			s.Apply(ctx, Event{Kind: KindError, Content: "upstream timeout"})

			Expect(s.Phases()).To(Equal([]string{"looking"}))
			Expect(s.Err()).To(Equal("upstream timeout"))
			Expect(s.Terminal()).To(BeFalse())
		})
	})

	Describe("tools", func() {
		It("keeps the last reported status per tool", func() {
			s.Apply(ctx, tool("buildIndex", ToolRunning))
			s.Apply(ctx, tool("buildIndex", ToolCompleted))
			Expect(s.Tools()).To(Equal(map[string]string{"buildIndex": ToolCompleted}))
		})
	})

	Describe("conversation ids", func() {
		It("adopts the created id when none was given", func() {
			s.Apply(ctx, Event{Kind: KindConversationCreated, ConversationID: "abc123"})
			Expect(s.ConversationID()).To(Equal("abc123"))
			Expect(s.FinalText()).To(BeEmpty())
			Expect(s.Phases()).To(BeEmpty())
			Expect(s.OpenPhase()).To(BeEmpty())
		})

		It("keeps a pinned id", func() {
			s = NewSession(WithSink(sink), WithConversationID("pinned"))
			s.Apply(ctx, Event{Kind: KindConversationCreated, ConversationID: "abc123"})
			Expect(s.ConversationID()).To(Equal("pinned"))
		})

		It("records the provider id separately", func() {
			s.Apply(ctx, Event{Kind: KindConversationInfo, ConversationID: "prov-1"})
			s.Apply(ctx, done)

			c, _ := s.Completion()
			Expect(c.ConversationID).To(BeEmpty())
			Expect(c.ProviderConversationID).To(Equal("prov-1"))
		})
	})

	Describe("completion", func() {
		It("delivers exactly one completion for DONE followed by end of stream", func() {
			s.Apply(ctx, text("answer"))
			s.Apply(ctx, done)
			Expect(s.Finish(ctx, ReasonEOF, nil)).To(Succeed())

			completions := sink.all()
			Expect(completions).To(HaveLen(1))
			Expect(completions[0].Reason).To(Equal(ReasonDone))
			Expect(completions[0].FinalText).To(Equal("answer"))
		})

		It("delivers exactly one completion when terminal signals race", func() {
			s.Apply(ctx, text("answer"))

			var wg sync.WaitGroup
			for i := range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if i%2 == 0 {
						s.Apply(ctx, done)
						return
					}
					_ = s.Finish(ctx, ReasonEOF, nil)
				}()
			}
			wg.Wait()

			Expect(sink.all()).To(HaveLen(1))
		})

		It("ignores events after a terminal signal", func() {
			s.Apply(ctx, text("a"))
			s.Apply(ctx, done)
			s.Apply(ctx, text("b"))
			s.Apply(ctx, tool("late", ToolRunning))

			Expect(s.FinalText()).To(Equal("a"))
			Expect(s.Tools()).To(BeEmpty())
		})

		It("flags transport failures on the completion", func() {
			s.Apply(ctx, text("partial"))
			Expect(s.Finish(ctx, ReasonTransportError, errors.New("connection reset"))).To(Succeed())

			c, ok := s.Completion()
			Expect(ok).To(BeTrue())
			Expect(c.Failed()).To(BeTrue())
			Expect(c.TransportError).To(Equal("connection reset"))
			Expect(c.FinalText).To(Equal("partial"))
		})

		It("hands the sink a snapshot it cannot use to mutate the session", func() {
			s.Apply(ctx, tool("search", ToolRunning))
			s.Apply(ctx, done)

			c := sink.all()[0]
			c.Tools["search"] = "mutated"

			again, _ := s.Completion()
			Expect(again.Tools).To(Equal(map[string]string{"search": ToolRunning}))
		})

		It("surfaces a sink failure without rolling back the transcript", func() {
			sink.err = errors.New("disk full")
			s.Apply(ctx, text("seen"))

			err := s.Finish(ctx, ReasonEOF, nil)
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(s.SinkErr()).To(MatchError("disk full"))
			Expect(s.FinalText()).To(Equal("seen"))
			Expect(s.Finish(ctx, ReasonEOF, nil)).To(Succeed())
			Expect(sink.all()).To(HaveLen(1))
		})
	})

	Describe("Abort", func() {
		It("delivers nothing and discards state", func() {
			s.Apply(ctx, text("partial"))
			s.Abort()

			Expect(s.Finish(ctx, ReasonEOF, nil)).To(Succeed())
			Expect(sink.all()).To(BeEmpty())
			Expect(s.Aborted()).To(BeTrue())
			Expect(s.FinalText()).To(BeEmpty())
			_, ok := s.Completion()
			Expect(ok).To(BeFalse())
		})

		It("has no effect after completion", func() {
			s.Apply(ctx, done)
			s.Abort()
			Expect(s.Aborted()).To(BeFalse())
			Expect(sink.all()).To(HaveLen(1))
		})
	})

	It("calls the event hook after applying each event", func() {
		var seen []string
		s = NewSession(WithEventHook(func(ev Event) {
			seen = append(seen, ev.Kind.String())
		}))
		s.Apply(ctx, text("x"))
		s.Apply(ctx, done)
		Expect(seen).To(HaveLen(2))
	})
})

var _ = Describe("Emitter", func() {
	It("returns ErrNilSink without a sink", func() {
		e := NewEmitter(nil)
		fired, err := e.Emit(context.Background(), Completion{})
		Expect(fired).To(BeTrue())
		Expect(err).To(MatchError(ErrNilSink))
	})

	It("does not emit after being disarmed", func() {
		calls := 0
		e := NewEmitter(SinkFunc(func(context.Context, Completion) error {
			calls++
			return nil
		}))
		Expect(e.Disarm()).To(BeTrue())

		fired, err := e.Emit(context.Background(), Completion{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fired).To(BeFalse())
		Expect(calls).To(BeZero())
		Expect(e.Fired()).To(BeFalse())
	})

	It("cannot be disarmed after firing", func() {
		e := NewEmitter(SinkFunc(func(context.Context, Completion) error { return nil }))
		_, _ = e.Emit(context.Background(), Completion{})
		Expect(e.Disarm()).To(BeFalse())
		Expect(e.Fired()).To(BeTrue())
	})
})
