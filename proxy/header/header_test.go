package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UpstreamRequestHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("forwards credentials and custom headers to the agent", func() {
		var got map[string]string

		app.Post("/test", func(c *fiber.Ctx) error {
			got = hh.UpstreamRequestHeaders(c)
			return c.SendStatus(fiber.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("Authorization", "Bearer token123")
		req.Header.Set("X-Api-Key", "secret")

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(got).To(HaveKeyWithValue("Authorization", "Bearer token123"))
		Expect(got).To(HaveKeyWithValue("X-Api-Key", "secret"))
	})

	It("drops hop-by-hop and body framing headers", func() {
		var got map[string]string

		app.Post("/test", func(c *fiber.Ctx) error {
			got = hh.UpstreamRequestHeaders(c)
			return c.SendStatus(fiber.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.Header.Set("Connection", "keep-alive")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Accept", "*/*")

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(got).NotTo(HaveKey("Connection"))
		Expect(got).NotTo(HaveKey("Content-Type"))
		Expect(got).NotTo(HaveKey("Accept-Encoding"))
		Expect(got).NotTo(HaveKey("Accept"))
		Expect(got).NotTo(HaveKey("Host"))
	})
})

var _ = Describe("SetStreamResponseHeaders", func() {
	It("marks the response as an uncached event stream", func() {
		app := fiber.New()
		defer app.Shutdown()

		app.Get("/test", func(c *fiber.Ctx) error {
			NewHandler().SetStreamResponseHeaders(c, "conv-1")
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get(ConversationIDHeader)).To(Equal("conv-1"))
	})
})
