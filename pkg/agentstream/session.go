package agentstream

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/hedge/pkg/logger"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSink sets where the completion is delivered.
func WithSink(sink Sink) SessionOption {
	return func(s *Session) {
		s.emitter = NewEmitter(sink)
	}
}

// WithConversationID pins the conversation id. A later ConversationCreated
// event does not replace it.
func WithConversationID(id string) SessionOption {
	return func(s *Session) {
		s.conversationID = id
	}
}

// WithDisplay sets the buffer that receives answer text.
func WithDisplay(d *DisplayBuffer) SessionOption {
	return func(s *Session) {
		s.display = d
	}
}

// WithEventHook registers fn to observe every applied event, after the
// session state was updated.
func WithEventHook(fn func(Event)) SessionOption {
	return func(s *Session) {
		s.onEvent = fn
	}
}

// Session is the state of one chat stream: think mode, tool statuses,
// reasoning phases, and answer text. It is driven by a single reader; the
// lock only makes racing terminal signals safe.
type Session struct {
	mu sync.Mutex

	logger  *slog.Logger
	emitter *Emitter
	display *DisplayBuffer
	onEvent func(Event)

	conversationID         string
	providerConversationID string

	think  ThinkState
	phases Phases
	tools  map[string]string
	final  strings.Builder
	err    string

	terminal   bool
	aborted    bool
	completion *Completion
	sinkErr    error
}

// NewSession creates a Session. Without WithSink the completion is
// computed but delivered nowhere.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		tools: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.emitter == nil {
		s.emitter = NewEmitter(SinkFunc(func(context.Context, Completion) error { return nil }))
	}
	if s.display == nil {
		s.display = NewDisplayBuffer(nil)
	}

	return s
}

// Apply folds one event into the session. Events after a terminal signal
// are ignored.
func (s *Session) Apply(ctx context.Context, ev Event) {
	s.mu.Lock()
	if s.terminal || s.aborted {
		s.mu.Unlock()
		return
	}

	done := false
	switch ev.Kind {
	case KindText:
		s.applyText(ev.Content)
	case KindThought:
		s.phases.Close()
		s.phases.Append(ev.Content + "\n\n")
	case KindTool:
		s.phases.Close()
		s.tools[ev.ToolName] = ev.ToolStatus
	case KindError:
		s.phases.Close()
		s.err = ev.Content
		s.logger.Warn("agent reported error", "conversation_id", s.conversationID, "error", ev.Content)
	case KindDone:
		done = true
	case KindConversationCreated:
		if s.conversationID == "" {
			s.conversationID = ev.ConversationID
		}
		s.logger.Debug("conversation created", "conversation_id", ev.ConversationID)
	case KindConversationInfo:
		s.providerConversationID = ev.ConversationID
	default:
		s.logger.Debug("ignoring unknown stream event", "raw", ev.Raw)
	}
	s.mu.Unlock()

	if s.onEvent != nil {
		s.onEvent(ev)
	}

	if done {
		_ = s.Finish(ctx, ReasonDone, nil)
	}
}

// applyText routes TEXT content through the think state machine.
func (s *Session) applyText(content string) {
	before := s.think.StrayClosers()
	s.route(s.think.Feed(content))

	if s.think.StrayClosers() > before {
		s.logger.Debug("dropped think closer outside a think span", "conversation_id", s.conversationID)
	}
}

func (s *Session) route(segments []Segment) {
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentDisplay:
			s.final.WriteString(seg.Text)
			s.display.Append(seg.Text)
		case SegmentThought:
			s.phases.Append(seg.Text)
		case SegmentExit:
			s.phases.Close()
		case SegmentEnter:
		}
	}
}

// Finish ends the session with the given terminal reason and delivers the
// completion to the sink. Only the first terminal signal has any effect;
// later calls, and calls after Abort, return nil and do nothing.
//
// The returned error is a sink failure. The session state is kept as is.
func (s *Session) Finish(ctx context.Context, reason CompletionReason, cause error) error {
	s.mu.Lock()
	if s.terminal || s.aborted {
		s.mu.Unlock()
		return nil
	}
	s.terminal = true

	s.route(s.think.Drain())
	s.phases.Close()

	c := Completion{
		ConversationID:         s.conversationID,
		ProviderConversationID: s.providerConversationID,
		FinalText:              s.final.String(),
		Phases:                 s.phases.Closed(),
		Tools:                  maps.Clone(s.tools),
		Error:                  s.err,
		Reason:                 reason,
		CompletedAt:            time.Now().UTC(),
	}
	if cause != nil {
		c.TransportError = cause.Error()
	}
	s.completion = &c
	s.mu.Unlock()

	s.display.Flush()

	emitted, err := s.emitter.Emit(ctx, c)
	if !emitted {
		return nil
	}
	if err != nil {
		s.mu.Lock()
		s.sinkErr = err
		s.mu.Unlock()

		s.logger.Error("failed to persist completion",
			"conversation_id", c.ConversationID,
			"reason", string(reason),
			"error", err,
		)
		return fmt.Errorf("persisting completion: %w", err)
	}

	s.logger.Debug("session completed",
		"conversation_id", c.ConversationID,
		"reason", string(reason),
		"phases", len(c.Phases),
		"tools", len(c.Tools),
	)
	return nil
}

// Abort abandons the session. No completion is delivered afterwards and
// partially accumulated state is discarded.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal || s.aborted {
		return
	}
	s.aborted = true
	s.emitter.Disarm()

	s.think = ThinkState{}
	s.phases = Phases{}
	s.tools = make(map[string]string)
	s.final.Reset()
}

// ConversationID returns the current conversation id.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID assigns an id if none is known yet. It has no effect
// once the session is terminal.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" && !s.terminal {
		s.conversationID = id
	}
}

// ThinkMode returns the current think mode.
func (s *Session) ThinkMode() ThinkMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.think.Mode()
}

// FinalText returns the answer text accumulated so far.
func (s *Session) FinalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final.String()
}

// Phases returns the closed reasoning phases.
func (s *Session) Phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phases.Closed()
}

// OpenPhase returns the reasoning text of the phase still being built.
func (s *Session) OpenPhase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phases.Open()
}

// Tools returns a copy of the tool status map.
func (s *Session) Tools() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.tools)
}

// Err returns the last ERROR message reported by the agent.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Terminal reports whether a terminal signal has been processed.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Aborted reports whether the session was abandoned.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Completion returns the snapshot built at termination, if any.
func (s *Session) Completion() (Completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == nil {
		return Completion{}, false
	}
	return snapshot(*s.completion), true
}

// SinkErr returns the sink failure, if delivery failed.
func (s *Session) SinkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinkErr
}

// Display returns the session's display buffer.
func (s *Session) Display() *DisplayBuffer {
	return s.display
}
