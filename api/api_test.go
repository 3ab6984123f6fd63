package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/hedge/pkg/chat"
	"github.com/papercomputeco/hedge/pkg/logger"
	"github.com/papercomputeco/hedge/pkg/storage"
	"github.com/papercomputeco/hedge/pkg/storage/inmemory"
)

func getJSON(s *Server, path string, out any) int {
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	if out != nil {
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp.StatusCode
}

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop())

		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		for i, id := range []string{"older", "newer"} {
			_, err := driver.EnsureConversation(ctx, id, "chat "+id)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.AppendMessage(ctx, &storage.Message{
				ID:             id + "-q",
				ConversationID: id,
				Role:           storage.RoleUser,
				Content:        "question",
				Status:         storage.StatusComplete,
				CreatedAt:      base.Add(time.Duration(i) * time.Hour),
			})).To(Succeed())
		}

		Expect(driver.AppendMessage(ctx, &storage.Message{
			ID:             "newer-a",
			ConversationID: "newer",
			Role:           storage.RoleAssistant,
			Content:        "answer",
			Thoughts:       []string{"first", "second"},
			Tools:          map[string]string{"search": "completed", "fetch": "failed"},
			Error:          "partial outage",
			Status:         storage.StatusComplete,
			CreatedAt:      base.Add(2 * time.Hour),
		})).To(Succeed())
	})

	It("answers pings", func() {
		var body string
		Expect(getJSON(server, "/ping", &body)).To(Equal(http.StatusOK))
		Expect(body).To(Equal("pong"))
	})

	Describe("GET /v1/conversations", func() {
		It("lists conversations by last update", func() {
			var list ConversationList
			Expect(getJSON(server, "/v1/conversations", &list)).To(Equal(http.StatusOK))
			Expect(list.Count).To(Equal(2))
			Expect(list.Conversations[0].ID).To(Equal("newer"))
			Expect(list.Conversations[1].ID).To(Equal("older"))
		})

		It("honours the limit", func() {
			var list ConversationList
			Expect(getJSON(server, "/v1/conversations?limit=1", &list)).To(Equal(http.StatusOK))
			Expect(list.Conversations).To(HaveLen(1))
		})

		It("rejects a non-positive limit", func() {
			var body chat.ErrorResponse
			Expect(getJSON(server, "/v1/conversations?limit=0", &body)).To(Equal(http.StatusBadRequest))
			Expect(body.Error).To(ContainSubstring("limit"))
		})
	})

	Describe("GET /v1/conversations/:id", func() {
		It("returns the conversation", func() {
			var conv storage.Conversation
			Expect(getJSON(server, "/v1/conversations/newer", &conv)).To(Equal(http.StatusOK))
			Expect(conv.Title).To(Equal("chat newer"))
			Expect(conv.MessageCount).To(Equal(2))
		})

		It("returns 404 for unknown ids", func() {
			var body chat.ErrorResponse
			Expect(getJSON(server, "/v1/conversations/nope", &body)).To(Equal(http.StatusNotFound))
			Expect(body.Error).To(Equal("conversation not found"))
		})
	})

	Describe("GET /v1/conversations/:id/messages", func() {
		It("returns the replayable transcript", func() {
			var tr TranscriptResponse
			Expect(getJSON(server, "/v1/conversations/newer/messages", &tr)).To(Equal(http.StatusOK))

			Expect(tr.Conversation.ID).To(Equal("newer"))
			Expect(tr.Messages).To(HaveLen(2))
			Expect(tr.Messages[0].Role).To(Equal(storage.RoleUser))

			answer := tr.Messages[1]
			Expect(answer.Content).To(Equal("answer"))
			Expect(answer.Phases).To(Equal([]Phase{
				{PhaseNumber: 1, Text: "first"},
				{PhaseNumber: 2, Text: "second"},
			}))
			Expect(answer.Tools).To(Equal([]ToolStatus{
				{Name: "fetch", Status: "failed"},
				{Name: "search", Status: "completed"},
			}))
			Expect(answer.Error).To(Equal("partial outage"))
		})

		It("returns 404 for unknown ids", func() {
			Expect(getJSON(server, "/v1/conversations/nope/messages", nil)).To(Equal(http.StatusNotFound))
		})
	})
})
