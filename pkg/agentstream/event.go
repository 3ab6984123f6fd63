// Package agentstream decodes the chat stream produced by the upstream
// analysis agent. Raw SSE blocks are classified once, at the boundary, into
// typed Events; a Session then folds those events into the live answer
// text, the ordered reasoning phases, and the tool status map, and hands a
// single immutable Completion to a Sink when the stream terminates.
package agentstream

// Kind identifies the variant of a decoded Event.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindThought
	KindTool
	KindError
	KindDone
	KindConversationCreated
	KindConversationInfo
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindThought:
		return "thought"
	case KindTool:
		return "tool"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	case KindConversationCreated:
		return "conversation_created"
	case KindConversationInfo:
		return "conversation_info"
	default:
		return "unknown"
	}
}

const (
	// EventConversationCreated is the out-of-band SSE event type the agent
	// sends once it has allocated a conversation for this chat.
	EventConversationCreated = "hedge_conversation_created"

	// EventConversationInfo is the provider's own conversation event type.
	// Its identifier is informational only.
	EventConversationInfo = "conversation_info"
)

// Data prefixes carried in the "data:" field as PREFIX:content.
const (
	prefixText    = "TEXT"
	prefixThought = "THOUGHT"
	prefixTool    = "TOOL"
	prefixError   = "ERROR"
	prefixDone    = "DONE"
)

// Tool status values. Any other string reported by the agent is stored as-is.
const (
	ToolRunning   = "running"
	ToolCompleted = "completed"
	ToolFailed    = "failed"
	ToolUnknown   = "unknown"
)

// Event is a decoded stream event. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// Content is the unescaped payload of Text, Thought and Error events.
	Content string

	// ToolName and ToolStatus are set for Tool events.
	ToolName   string
	ToolStatus string

	// ConversationID is set for ConversationCreated and ConversationInfo events.
	ConversationID string

	// Raw is the undecoded data payload, kept for diagnostics.
	Raw string
}
