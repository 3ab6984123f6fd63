package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessagePersisted is emitted after an assistant answer is persisted.
	EventTypeMessagePersisted = "hedge.message.persisted"
)

// MessagePersistedEvent is a transport-neutral event payload for a
// persisted assistant answer.
type MessagePersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Message       MessageMeta `json:"message"`
}

// EventSource identifies where the answer originated.
type EventSource struct {
	// Agent is the upstream agent endpoint that streamed the answer.
	Agent string `json:"agent,omitempty"`

	// ProviderConversationID is the agent provider's own conversation id.
	ProviderConversationID string `json:"provider_conversation_id,omitempty"`
}

// MessageMeta summarizes the persisted message without its content.
type MessageMeta struct {
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Status         string            `json:"status"`
	Reason         string            `json:"reason"`
	ContentLength  int               `json:"content_length"`
	PhaseCount     int               `json:"phase_count"`
	Tools          map[string]string `json:"tools,omitempty"`
	Error          string            `json:"error,omitempty"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// NewMessagePersistedEvent returns a v1 event for meta with a fresh id.
func NewMessagePersistedEvent(source EventSource, meta MessageMeta) *MessagePersistedEvent {
	return &MessagePersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessagePersisted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Message:       meta,
	}
}
