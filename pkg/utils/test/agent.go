// Package testutils holds fakes shared by hedge package tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/papercomputeco/hedge/pkg/agentstream"
)

// FakeAgent is an http.Handler that replays a fixed list of SSE event
// blocks to every request and records what it was sent.
type FakeAgent struct {
	mu       sync.Mutex
	requests []agentstream.Request
	headers  []http.Header
	events   []string
	status   int
}

// NewFakeAgent returns an agent that streams the given raw event blocks.
func NewFakeAgent(events ...string) *FakeAgent {
	return &FakeAgent{events: events}
}

// SetEvents replaces the blocks streamed on subsequent requests.
func (f *FakeAgent) SetEvents(events ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// SetStatus makes subsequent requests fail with the given status code.
func (f *FakeAgent) SetStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *FakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req agentstream.Request
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.headers = append(f.headers, r.Header.Clone())
	status := f.status
	events := f.events
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		http.Error(w, "agent exploded", status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, ev := range events {
		fmt.Fprint(w, ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Requests returns a copy of every decoded request body received so far.
func (f *FakeAgent) Requests() []agentstream.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agentstream.Request(nil), f.requests...)
}

// LastRequest returns the most recent request body. It panics when no
// request has been received.
func (f *FakeAgent) LastRequest() agentstream.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// Header returns the headers of the i-th request.
func (f *FakeAgent) Header(i int) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[i]
}
