// Package inmemory provides a map-backed storage driver for tests and
// ephemeral runs.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/hedge/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding conversations and messages
	mu sync.RWMutex

	conversations map[string]*storage.Conversation

	// messages holds each conversation's messages in insertion order
	messages map[string][]*storage.Message
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*storage.Conversation),
		messages:      make(map[string][]*storage.Message),
	}
}

// EnsureConversation creates the conversation if it is missing.
func (d *Driver) EnsureConversation(_ context.Context, id, title string) (*storage.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}

	now := time.Now().UTC()
	c := &storage.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.conversations[id] = c

	cp := *c
	return &cp, nil
}

// AppendMessage stores msg and bumps its conversation.
func (d *Driver) AppendMessage(ctx context.Context, msg *storage.Message) error {
	return d.AppendMessages(ctx, msg)
}

// AppendMessages stores msgs in order. Nothing is stored unless every
// message is valid.
func (d *Driver) AppendMessages(_ context.Context, msgs ...*storage.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, msg := range msgs {
		if msg == nil {
			return storage.ErrNilMessage
		}
		if _, ok := d.conversations[msg.ConversationID]; !ok {
			return storage.NotFoundError{ID: msg.ConversationID}
		}
	}

	for _, msg := range msgs {
		stored := cloneMessage(msg)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		d.messages[msg.ConversationID] = append(d.messages[msg.ConversationID], stored)

		c := d.conversations[msg.ConversationID]
		c.MessageCount++
		c.UpdatedAt = stored.CreatedAt
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (d *Driver) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	cp := *c
	return &cp, nil
}

// ListConversations returns conversations, most recently updated first.
func (d *Driver) ListConversations(_ context.Context, limit int) ([]*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		cp := *c
		result = append(result, &cp)
	}

	slices.SortFunc(result, func(a, b *storage.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListMessages returns the messages of a conversation in insertion order.
func (d *Driver) ListMessages(_ context.Context, conversationID string) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return nil, storage.NotFoundError{ID: conversationID}
	}

	msgs := d.messages[conversationID]
	result := make([]*storage.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, cloneMessage(m))
	}
	return result, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func cloneMessage(m *storage.Message) *storage.Message {
	cp := *m
	cp.Thoughts = slices.Clone(m.Thoughts)
	cp.Tools = maps.Clone(m.Tools)
	return &cp
}
