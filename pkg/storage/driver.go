// Package storage
package storage

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message statuses. An assistant message is incomplete when the stream
// ended without DONE, and error when the transport failed mid-stream.
const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
	StatusError      = "error"
)

// Conversation is one chat thread. UpdatedAt is bumped on every appended
// message and is the ordering key for listings.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one persisted transcript entry.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`

	// Content is the user prompt or the final answer text.
	Content string `json:"content"`

	// Thoughts are the ordered reasoning phases of an assistant message.
	Thoughts []string `json:"thoughts,omitempty"`

	// Tools maps tool name to its last reported status.
	Tools map[string]string `json:"tools,omitempty"`

	// Error is the agent reported error, if any.
	Error string `json:"error,omitempty"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Driver defines the interface for persisting and retrieving chat
// transcripts in a storage backend.
type Driver interface {
	// EnsureConversation creates the conversation if it does not exist and
	// returns it. An existing conversation keeps its title.
	EnsureConversation(ctx context.Context, id, title string) (*Conversation, error)

	// AppendMessage stores a message at the end of its conversation and
	// bumps the conversation's UpdatedAt. Returns NotFoundError if the
	// conversation does not exist.
	AppendMessage(ctx context.Context, msg *Message) error

	// AppendMessages stores msgs in order as one unit: when any of them
	// cannot be stored, none is.
	AppendMessages(ctx context.Context, msgs ...*Message) error

	// GetConversation retrieves a conversation by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns conversations, most recently updated first.
	// A limit <= 0 returns all of them.
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)

	// ListMessages returns the messages of a conversation in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Close closes the store and releases any resources.
	Close() error
}
