package agentstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAgentPath    = "/api/chat"
	defaultAgentTimeout = 5 * time.Minute
	maxErrorBodyBytes   = 4096
)

// TransportError is a failure to open the agent stream: a connection error
// or a non-OK response. No session exists when it is returned.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent request failed: %v", e.Err)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Request is the outbound chat message sent to the agent.
type Request struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	Wallet         string `json:"wallet,omitempty"`

	// Headers are set on this request only, after the transport's own.
	Headers map[string]string `json:"-"`
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Target is the agent base URL, e.g. "http://localhost:8000".
	Target string

	// Path is appended to Target. Defaults to "/api/chat".
	Path string

	// Timeout bounds the whole request including the streamed body.
	Timeout time.Duration

	// Headers are set on every request.
	Headers map[string]string

	// Client overrides the HTTP client.
	Client *http.Client
}

// Transport opens chat streams against the agent endpoint.
type Transport struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewTransport creates a Transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Target == "" {
		return nil, errors.New("agent target is required")
	}

	path := cfg.Path
	if path == "" {
		path = defaultAgentPath
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultAgentTimeout
		}
		client = &http.Client{
			// Agent answers stream for as long as tools keep running
			Timeout: timeout,
		}
	}

	return &Transport{
		url:     strings.TrimSuffix(cfg.Target, "/") + path,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// Open sends req and returns the response body as the raw stream. The
// caller must close it; cancelling ctx aborts the read.
func (t *Transport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return resp.Body, nil
}

// URL returns the agent endpoint.
func (t *Transport) URL() string {
	return t.url
}
