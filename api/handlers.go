package api

import (
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/hedge/pkg/chat"
	"github.com/papercomputeco/hedge/pkg/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ConversationList is the response of the conversation listing.
type ConversationList struct {
	Count         int                     `json:"count"`
	Conversations []*storage.Conversation `json:"conversations"`
}

// TranscriptResponse is the replayable transcript of one conversation.
type TranscriptResponse struct {
	Conversation *storage.Conversation `json:"conversation"`
	Messages     []TranscriptMessage   `json:"messages"`
}

// TranscriptMessage is a persisted message shaped for display.
type TranscriptMessage struct {
	ID        string       `json:"id"`
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Phases    []Phase      `json:"phases,omitempty"`
	Tools     []ToolStatus `json:"tools,omitempty"`
	Error     string       `json:"error,omitempty"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Phase is one reasoning phase. PhaseNumber starts at 1 and only exists
// for display; storage order is the ordering.
type Phase struct {
	PhaseNumber int    `json:"phase_number"`
	Text        string `json:"text"`
}

// ToolStatus is the last reported status of one tool.
type ToolStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListConversations returns conversations, most recently updated first.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "limit must be positive"})
	}
	limit = min(limit, maxListLimit)

	convs, err := s.storer.ListConversations(c.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Error: "failed to list conversations"})
	}
	if convs == nil {
		convs = []*storage.Conversation{}
	}

	return c.JSON(ConversationList{
		Count:         len(convs),
		Conversations: convs,
	})
}

// handleGetConversation returns a single conversation by id.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	conv, err := s.storer.GetConversation(c.Context(), id)
	if err != nil {
		return s.storageError(c, err)
	}

	return c.JSON(conv)
}

// handleListMessages returns the transcript of a conversation.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	ctx := c.Context()
	id := c.Params("id")

	conv, err := s.storer.GetConversation(ctx, id)
	if err != nil {
		return s.storageError(c, err)
	}

	msgs, err := s.storer.ListMessages(ctx, id)
	if err != nil {
		return s.storageError(c, err)
	}

	out := make([]TranscriptMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcriptMessage(m))
	}

	return c.JSON(TranscriptResponse{
		Conversation: conv,
		Messages:     out,
	})
}

func (s *Server) storageError(c *fiber.Ctx, err error) error {
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(chat.ErrorResponse{Error: "conversation not found"})
	}

	s.logger.Error("storage request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(chat.ErrorResponse{Error: "storage error"})
}

// transcriptMessage numbers the phases and sorts the tools by name.
func transcriptMessage(m *storage.Message) TranscriptMessage {
	tm := TranscriptMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Error:     m.Error,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}

	for i, text := range m.Thoughts {
		tm.Phases = append(tm.Phases, Phase{PhaseNumber: i + 1, Text: text})
	}

	for name, status := range m.Tools {
		tm.Tools = append(tm.Tools, ToolStatus{Name: name, Status: status})
	}
	slices.SortFunc(tm.Tools, func(a, b ToolStatus) int {
		return strings.Compare(a.Name, b.Name)
	})

	return tm
}
