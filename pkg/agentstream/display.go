package agentstream

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DisplayBuffer is the append-only answer text shown to the user. Appended
// text is handed to the flush callback in arrival order, either right away
// or batched on a fixed interval via Run. Nothing is reordered or dropped.
type DisplayBuffer struct {
	// flushMu serializes callbacks so pieces are delivered in order.
	flushMu sync.Mutex

	mu      sync.Mutex
	text    strings.Builder
	flushed int
	onFlush func(string)
	batched bool
}

// NewDisplayBuffer returns a buffer that calls onFlush with each newly
// visible piece of text. onFlush may be nil.
func NewDisplayBuffer(onFlush func(string)) *DisplayBuffer {
	return &DisplayBuffer{onFlush: onFlush}
}

// Append adds text. Without a running Run loop the text is flushed
// synchronously.
func (d *DisplayBuffer) Append(text string) {
	if text == "" {
		return
	}

	d.mu.Lock()
	d.text.WriteString(text)
	batched := d.batched
	d.mu.Unlock()

	if !batched {
		d.Flush()
	}
}

// Flush hands any text not yet flushed to the callback.
func (d *DisplayBuffer) Flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	all := d.text.String()
	pending := all[d.flushed:]
	d.flushed = len(all)
	d.mu.Unlock()

	if pending != "" && d.onFlush != nil {
		d.onFlush(pending)
	}
}

// Run flushes on every tick of interval until ctx is done, then performs a
// final flush. Append does not flush on its own while Run is active.
func (d *DisplayBuffer) Run(ctx context.Context, interval time.Duration) {
	d.mu.Lock()
	d.batched = true
	d.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer func() {
		d.mu.Lock()
		d.batched = false
		d.mu.Unlock()
		d.Flush()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush()
		}
	}
}

// String returns everything appended so far.
func (d *DisplayBuffer) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.String()
}
