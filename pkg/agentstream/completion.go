package agentstream

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"
)

// ErrNilSink is returned when an Emitter is built without a Sink.
var ErrNilSink = errors.New("nil completion sink")

// CompletionReason identifies which terminal signal ended a session.
type CompletionReason string

const (
	// ReasonDone is an explicit DONE event from the agent.
	ReasonDone CompletionReason = "done"
	// ReasonEOF is a natural end of the transport without DONE.
	ReasonEOF CompletionReason = "eof"
	// ReasonTransportError is a transport failure mid-stream.
	ReasonTransportError CompletionReason = "transport_error"
)

// Completion is the immutable snapshot of a finished session.
type Completion struct {
	ConversationID string `json:"conversation_id"`

	// ProviderConversationID is the agent provider's own id, informational only.
	ProviderConversationID string `json:"provider_conversation_id,omitempty"`

	// FinalText is the accumulated answer text, never think-span content.
	FinalText string `json:"final_text"`

	// Phases are the reasoning phases in order, including the phase that
	// was still open when the session terminated.
	Phases []string `json:"phases"`

	// Tools maps tool name to its last reported status.
	Tools map[string]string `json:"tools"`

	// Error is the last ERROR event message, if any.
	Error string `json:"error,omitempty"`

	Reason CompletionReason `json:"reason"`

	// TransportError describes the transport failure for ReasonTransportError.
	TransportError string `json:"transport_error,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// Failed reports whether the completion was produced by a transport error.
func (c Completion) Failed() bool {
	return c.Reason == ReasonTransportError
}

// Sink receives the completion of a session. It is called at most once per
// session and owns durable storage from then on.
type Sink interface {
	Persist(ctx context.Context, c Completion) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, c Completion) error

// Persist calls f.
func (f SinkFunc) Persist(ctx context.Context, c Completion) error {
	return f(ctx, c)
}

const (
	emitterArmed int32 = iota
	emitterFired
	emitterDisarmed
)

// Emitter hands a completion to its sink at most once, no matter how many
// terminal signals race to trigger it.
type Emitter struct {
	sink  Sink
	state atomic.Int32
}

// NewEmitter returns an armed Emitter for sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit delivers c to the sink if nothing was delivered before and the
// emitter was not disarmed. It reports whether this call delivered.
func (e *Emitter) Emit(ctx context.Context, c Completion) (bool, error) {
	if !e.state.CompareAndSwap(emitterArmed, emitterFired) {
		return false, nil
	}
	if e.sink == nil {
		return true, ErrNilSink
	}
	return true, e.sink.Persist(ctx, snapshot(c))
}

// Disarm prevents any future emission. It reports false if a completion
// had already been delivered.
func (e *Emitter) Disarm() bool {
	if e.state.CompareAndSwap(emitterArmed, emitterDisarmed) {
		return true
	}
	return e.state.Load() == emitterDisarmed
}

// Fired reports whether a completion was delivered.
func (e *Emitter) Fired() bool {
	return e.state.Load() == emitterFired
}

// snapshot deep-copies the mutable parts of c.
func snapshot(c Completion) Completion {
	phases := make([]string, len(c.Phases))
	copy(phases, c.Phases)
	c.Phases = phases

	tools := make(map[string]string, len(c.Tools))
	maps.Copy(tools, c.Tools)
	c.Tools = tools

	return c
}
