// Package chat holds the wire types shared by the relay, the read API and
// the chat client.
package chat

// Request is the body of a relayed chat message.
type Request struct {
	// ConversationID continues an existing conversation. Empty starts a
	// new one; the agent then announces the id in the stream.
	ConversationID string `json:"conversation_id,omitempty"`

	// Message is the user prompt.
	Message string `json:"message"`

	// Wallet is passed through to the agent unchanged.
	Wallet string `json:"wallet,omitempty"`

	// AgentConversationID accepts the agent's own key so clients built for
	// the agent endpoint can point at the relay unchanged.
	AgentConversationID string `json:"conversationId,omitempty"`
}

// ID returns the conversation to continue, preferring conversation_id.
func (r Request) ID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.AgentConversationID
}

// ErrorResponse is the JSON error body of every hedge HTTP endpoint.
type ErrorResponse struct {
	Error string `json:"error"`

	// Detail carries the upstream cause, if any.
	Detail string `json:"detail,omitempty"`
}
