// Package proxy provides the chat relay: it forwards a chat message to the
// upstream agent, streams the agent's SSE answer back to the client byte for
// byte, and decodes the same bytes into a transcript that is persisted once
// the stream ends.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/hedge/pkg/agentstream"
	"github.com/papercomputeco/hedge/pkg/chat"
	"github.com/papercomputeco/hedge/pkg/eventstream"
	"github.com/papercomputeco/hedge/pkg/sse"
	"github.com/papercomputeco/hedge/pkg/storage"
	"github.com/papercomputeco/hedge/proxy/header"
	"github.com/papercomputeco/hedge/proxy/worker"
)

// Proxy is a chat relay in front of a single upstream agent.
// The relay is transparent: the client receives the agent's stream verbatim
// while finished answers are enqueued for async storage via its worker pool.
type Proxy struct {
	config        Config
	transport     *agentstream.Transport
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy.
// The driver is injected to handle async persistence of answers; publisher
// may be nil.
func New(config Config, driver storage.Driver, publisher eventstream.Publisher, logger *slog.Logger) (*Proxy, error) {
	if config.AgentURL == "" {
		return nil, errors.New("agent URL is required")
	}

	transport, err := agentstream.NewTransport(agentstream.TransportConfig{
		Target:  config.AgentURL,
		Path:    config.AgentPath,
		Timeout: config.AgentTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create agent transport: %w", err)
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  publisher,
		Agent:      transport.URL(),
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	p := &Proxy{
		config:        config,
		transport:     transport,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	app.Get("/ping", p.handlePing)
	app.Post("/v1/chat", p.handleChat)

	return p, nil
}

// Run starts the relay server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		"listen", p.config.ListenAddr,
		"agent", p.transport.URL(),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"agent", p.transport.URL(),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the relay and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

func (p *Proxy) handlePing(c *fiber.Ctx) error {
	return c.JSON(map[string]string{"status": "ok"})
}

// handleChat relays one chat message and streams the agent's answer back.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "message is required"})
	}

	conversationID := req.ID()

	// Use a background context instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, but the stream is
	// consumed asynchronously and needs the upstream connection open.
	ctx, cancel := context.WithCancel(context.Background())

	body, err := p.transport.Open(ctx, agentstream.Request{
		ConversationID: conversationID,
		Message:        req.Message,
		Wallet:         req.Wallet,
		Headers:        p.headerHandler.UpstreamRequestHeaders(c),
	})
	if err != nil {
		cancel()
		p.logger.Error("agent request failed",
			"conversation_id", conversationID,
			"error", err,
		)
		return c.Status(fiber.StatusBadGateway).JSON(chat.ErrorResponse{
			Error:  "agent request failed",
			Detail: err.Error(),
		})
	}

	session := agentstream.NewSession(
		agentstream.WithLogger(p.logger),
		agentstream.WithConversationID(conversationID),
		agentstream.WithSink(p.workerPool.Sink(req.Message, startTime)),
	)

	p.headerHandler.SetStreamResponseHeaders(c, conversationID)

	// io.Pipe gives direct backpressure: pw.Write blocks until fasthttp
	// has flushed the previous chunk to the client.
	pr, pw := io.Pipe()
	go p.relay(ctx, cancel, body, pw, session, startTime)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// relay drives session from the agent body while teeing the raw bytes to
// the client. A client that goes away aborts the session.
func (p *Proxy) relay(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, pw *io.PipeWriter, session *agentstream.Session, startTime time.Time) {
	defer cancel()
	defer body.Close()

	err := agentstream.Consume(ctx, body, session, sse.WithTee(pw))

	var teeErr *sse.TeeError
	switch {
	case errors.As(err, &teeErr):
		p.logger.Info("client disconnected, answer discarded",
			"conversation_id", session.ConversationID(),
		)
		pw.CloseWithError(err)
		return
	case err != nil:
		p.logger.Warn("relayed stream ended with error",
			"conversation_id", session.ConversationID(),
			"error", err,
		)
	default:
		p.logger.Debug("relayed stream complete",
			"conversation_id", session.ConversationID(),
			"duration", time.Since(startTime),
		)
	}

	pw.Close()
}
