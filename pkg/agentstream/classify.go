package agentstream

import (
	"encoding/json"
	"strings"

	"github.com/papercomputeco/hedge/pkg/sse"
)

// conversationCreatedPayload is the JSON body of a hedge_conversation_created event.
type conversationCreatedPayload struct {
	HedgeConversationID string `json:"hedgeConversationId"`
}

// conversationInfoPayload accepts the id spellings seen from the provider.
type conversationInfoPayload struct {
	ConversationID      string `json:"conversationId"`
	ConversationIDSnake string `json:"conversation_id"`
	ID                  string `json:"id"`
}

func (p conversationInfoPayload) id() string {
	switch {
	case p.ConversationID != "":
		return p.ConversationID
	case p.ConversationIDSnake != "":
		return p.ConversationIDSnake
	default:
		return p.ID
	}
}

// Classify turns one parsed SSE event into exactly one Event. Malformed or
// unrecognized input yields KindUnknown; Classify never fails.
func Classify(ev *sse.Event) Event {
	if ev == nil {
		return Event{Kind: KindUnknown}
	}

	switch ev.Type {
	case EventConversationCreated:
		var p conversationCreatedPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil || p.HedgeConversationID == "" {
			return Event{Kind: KindUnknown, Raw: ev.Data}
		}
		return Event{Kind: KindConversationCreated, ConversationID: p.HedgeConversationID, Raw: ev.Data}

	case EventConversationInfo:
		var p conversationInfoPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil || p.id() == "" {
			return Event{Kind: KindUnknown, Raw: ev.Data}
		}
		return Event{Kind: KindConversationInfo, ConversationID: p.id(), Raw: ev.Data}
	}

	return classifyData(ev.Data)
}

func classifyData(data string) Event {
	prefix, content, ok := strings.Cut(data, ":")
	if !ok {
		if strings.TrimSpace(data) == prefixDone {
			return Event{Kind: KindDone, Raw: data}
		}
		return Event{Kind: KindUnknown, Raw: data}
	}

	switch strings.TrimSpace(prefix) {
	case prefixText:
		return Event{Kind: KindText, Content: unescapeNewlines(content), Raw: data}
	case prefixThought:
		return Event{Kind: KindThought, Content: unescapeNewlines(content), Raw: data}
	case prefixError:
		return Event{Kind: KindError, Content: unescapeNewlines(content), Raw: data}
	case prefixDone:
		return Event{Kind: KindDone, Raw: data}
	case prefixTool:
		name, status, _ := strings.Cut(content, ":")
		name = strings.TrimSpace(name)
		status = strings.TrimSpace(status)
		if status == "" {
			status = ToolUnknown
		}
		return Event{Kind: KindTool, ToolName: name, ToolStatus: status, Raw: data}
	default:
		return Event{Kind: KindUnknown, Raw: data}
	}
}

// unescapeNewlines turns literal backslash-n pairs into line breaks.
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
