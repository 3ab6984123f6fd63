// Package storagetest holds behaviour shared by every storage.Driver
// implementation, run from each driver's own suite.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/hedge/pkg/storage"
)

// DescribeDriver registers the driver contract specs. newDriver is called
// before each spec and must return an empty store.
func DescribeDriver(newDriver func(ctx context.Context) storage.Driver) {
	Describe("storage.Driver contract", func() {
		var (
			ctx    context.Context
			driver storage.Driver
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver(ctx)
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("EnsureConversation", func() {
			It("creates a new conversation", func() {
				c, err := driver.EnsureConversation(ctx, "conv-1", "First chat")
				Expect(err).NotTo(HaveOccurred())
				Expect(c.ID).To(Equal("conv-1"))
				Expect(c.Title).To(Equal("First chat"))
				Expect(c.MessageCount).To(BeZero())
				Expect(c.CreatedAt).NotTo(BeZero())
			})

			It("is idempotent and keeps the original title", func() {
				_, err := driver.EnsureConversation(ctx, "conv-1", "First chat")
				Expect(err).NotTo(HaveOccurred())

				c, err := driver.EnsureConversation(ctx, "conv-1", "Other title")
				Expect(err).NotTo(HaveOccurred())
				Expect(c.Title).To(Equal("First chat"))

				all, err := driver.ListConversations(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(1))
			})
		})

		Describe("GetConversation", func() {
			It("returns NotFoundError for unknown ids", func() {
				_, err := driver.GetConversation(ctx, "missing")
				Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("AppendMessage", func() {
			BeforeEach(func() {
				_, err := driver.EnsureConversation(ctx, "conv-1", "chat")
				Expect(err).NotTo(HaveOccurred())
			})

			It("rejects nil messages", func() {
				Expect(driver.AppendMessage(ctx, nil)).To(MatchError(storage.ErrNilMessage))
			})

			It("returns NotFoundError for an unknown conversation", func() {
				err := driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-1",
					ConversationID: "missing",
					Role:           storage.RoleUser,
					Content:        "hi",
					Status:         storage.StatusComplete,
				})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("stores messages in insertion order with their transcript", func() {
				base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

				Expect(driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-1",
					ConversationID: "conv-1",
					Role:           storage.RoleUser,
					Content:        "what is the weather?",
					Status:         storage.StatusComplete,
					CreatedAt:      base,
				})).To(Succeed())

				Expect(driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-2",
					ConversationID: "conv-1",
					Role:           storage.RoleAssistant,
					Content:        "sunny",
					Thoughts:       []string{"check forecast", "summarize"},
					Tools:          map[string]string{"weather": "completed"},
					Status:         storage.StatusComplete,
					CreatedAt:      base.Add(time.Second),
				})).To(Succeed())

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(2))

				Expect(msgs[0].ID).To(Equal("m-1"))
				Expect(msgs[0].Role).To(Equal(storage.RoleUser))
				Expect(msgs[0].Thoughts).To(BeEmpty())
				Expect(msgs[0].Tools).To(BeEmpty())

				Expect(msgs[1].ID).To(Equal("m-2"))
				Expect(msgs[1].Content).To(Equal("sunny"))
				Expect(msgs[1].Thoughts).To(Equal([]string{"check forecast", "summarize"}))
				Expect(msgs[1].Tools).To(Equal(map[string]string{"weather": "completed"}))
				Expect(msgs[1].CreatedAt.Equal(base.Add(time.Second))).To(BeTrue())
			})

			It("keeps the error and status of a failed answer", func() {
				Expect(driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-err",
					ConversationID: "conv-1",
					Role:           storage.RoleAssistant,
					Content:        "partial",
					Error:          "rate limited",
					Status:         storage.StatusError,
				})).To(Succeed())

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(1))
				Expect(msgs[0].Error).To(Equal("rate limited"))
				Expect(msgs[0].Status).To(Equal(storage.StatusError))
			})

			It("bumps the conversation's last updated time and count", func() {
				before, err := driver.GetConversation(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())

				later := before.UpdatedAt.Add(time.Hour)
				Expect(driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-1",
					ConversationID: "conv-1",
					Role:           storage.RoleAssistant,
					Content:        "done",
					Status:         storage.StatusComplete,
					CreatedAt:      later,
				})).To(Succeed())

				after, err := driver.GetConversation(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(after.MessageCount).To(Equal(1))
				Expect(after.UpdatedAt.Equal(later)).To(BeTrue())
			})
		})

		Describe("AppendMessages", func() {
			BeforeEach(func() {
				_, err := driver.EnsureConversation(ctx, "conv-1", "chat")
				Expect(err).NotTo(HaveOccurred())
			})

			prompt := func() *storage.Message {
				return &storage.Message{
					ID:             "m-q",
					ConversationID: "conv-1",
					Role:           storage.RoleUser,
					Content:        "what moved?",
					Status:         storage.StatusComplete,
				}
			}

			It("stores a prompt and its answer in order", func() {
				Expect(driver.AppendMessages(ctx, prompt(), &storage.Message{
					ID:             "m-a",
					ConversationID: "conv-1",
					Role:           storage.RoleAssistant,
					Content:        "rates",
					Status:         storage.StatusComplete,
				})).To(Succeed())

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(2))
				Expect(msgs[0].ID).To(Equal("m-q"))
				Expect(msgs[1].ID).To(Equal("m-a"))

				conv, err := driver.GetConversation(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.MessageCount).To(Equal(2))
			})

			It("stores nothing when a later message cannot be stored", func() {
				err := driver.AppendMessages(ctx, prompt(), &storage.Message{
					ID:             "m-a",
					ConversationID: "missing",
					Role:           storage.RoleAssistant,
					Content:        "rates",
					Status:         storage.StatusComplete,
				})
				Expect(storage.IsNotFound(err)).To(BeTrue())

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(BeEmpty())

				conv, err := driver.GetConversation(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.MessageCount).To(Equal(0))
			})

			It("stores nothing when any message is nil", func() {
				Expect(driver.AppendMessages(ctx, prompt(), nil)).To(MatchError(storage.ErrNilMessage))

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(BeEmpty())
			})

			It("accepts an empty batch", func() {
				Expect(driver.AppendMessages(ctx)).To(Succeed())
			})
		})

		Describe("ListConversations", func() {
			It("orders by last update and honours the limit", func() {
				base := time.Now().UTC().Add(time.Hour)
				for i, id := range []string{"a", "b", "c"} {
					_, err := driver.EnsureConversation(ctx, id, id)
					Expect(err).NotTo(HaveOccurred())
					Expect(driver.AppendMessage(ctx, &storage.Message{
						ID:             "m-" + id,
						ConversationID: id,
						Role:           storage.RoleUser,
						Content:        id,
						Status:         storage.StatusComplete,
						CreatedAt:      base.Add(time.Duration(i) * time.Minute),
					})).To(Succeed())
				}

				// "a" is touched last
				Expect(driver.AppendMessage(ctx, &storage.Message{
					ID:             "m-a2",
					ConversationID: "a",
					Role:           storage.RoleAssistant,
					Content:        "again",
					Status:         storage.StatusComplete,
					CreatedAt:      base.Add(time.Hour),
				})).To(Succeed())

				all, err := driver.ListConversations(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(all))
				for _, c := range all {
					ids = append(ids, c.ID)
				}
				Expect(ids).To(Equal([]string{"a", "c", "b"}))

				limited, err := driver.ListConversations(ctx, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(limited).To(HaveLen(2))
			})
		})

		Describe("ListMessages", func() {
			It("returns NotFoundError for unknown conversations", func() {
				_, err := driver.ListMessages(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("returns an empty list for a new conversation", func() {
				_, err := driver.EnsureConversation(ctx, "conv-1", "")
				Expect(err).NotTo(HaveOccurred())

				msgs, err := driver.ListMessages(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(BeEmpty())
			})
		})
	})
}
