// Package header provides header filtering for the hedge relay.
//
// The relay sits between a chat client and the upstream agent like so:
//
//	Client <--> Relay <--> Upstream Agent
//
// and headers are handled accordingly as each leg negotiates hops, body
// framing, and encoding independently.
package header

import (
	"github.com/gofiber/fiber/v2"
)

// ConversationIDHeader echoes the conversation id back to the client when
// the request carried one.
const ConversationIDHeader = "X-Hedge-Conversation-Id"

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> relay --> agent)
// that are not forwarded to the upstream agent.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},
	"Keep-Alive": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL.
	"Host": {},

	// The relay re-encodes the body as the agent's own request shape, so
	// the client's body framing does not apply.
	"Content-Length":    {},
	"Content-Type":      {},
	"Transfer-Encoding": {},

	// The transport always asks the agent for an event stream.
	"Accept": {},

	// Stripped so Go's http.Transport negotiates and decompresses itself.
	"Accept-Encoding": {},
}

// UpstreamRequestHeaders returns the client request headers that should be
// forwarded to the agent, such as Authorization and cookies.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) map[string]string {
	out := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			out[k] = string(value)
		}
	})
	return out
}

// SetStreamResponseHeaders prepares the client response for a relayed
// event stream.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx, conversationID string) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	// Disable response buffering in nginx-style reverse proxies.
	c.Set("X-Accel-Buffering", "no")
	if conversationID != "" {
		c.Set(ConversationIDHeader, conversationID)
	}
}
