// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// framer and tee-reader for agent chat streams. It splits an upstream byte
// stream into event blocks on the blank-line delimiter, tolerating blocks
// that straddle network chunk boundaries, and can forward the raw bytes
// verbatim to a downstream client in a tee pipe fashion.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// Block is one complete, delimiter-terminated unit of an SSE stream with
// surrounding line breaks trimmed. A Block is never produced until its
// terminating blank line has been observed.
type Block string

// Event represents a single parsed SSE event block.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the payload of the "data:" field with the single optional
	// space after the colon removed. Trailing spaces are significant and
	// kept. Lines that follow the first data line belong to the payload,
	// other than "event:" and "id:" lines: further "data:" lines are joined
	// with "\n" per the SSE spec, any other line is kept verbatim.
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// ParseBlock parses a Block into an Event. It returns false when the block
// carries no fields, e.g. a heartbeat made only of ":" comment lines.
//
// "event:" and "id:" lines are read wherever they appear in the block. The
// data payload starts at the first "data:" line and runs to the end of the
// block, skipping only those field lines.
func ParseBlock(b Block) (*Event, bool) {
	lines := strings.Split(string(b), "\n")

	ev := &Event{}
	found := false
	var payload []string

	for _, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			switch field {
			case "event":
				ev.Type = strings.TrimSpace(value)
				found = true
				continue
			case "id":
				ev.ID = strings.TrimSpace(value)
				found = true
				continue
			}
		}

		if payload == nil {
			if hasColon && field == "data" {
				payload = []string{strings.TrimPrefix(value, " ")}
				found = true
			}
			continue
		}
		payload = append(payload, line)
	}

	if payload != nil {
		ev.Data = joinData(payload[0], payload[1:])
	}
	return ev, found
}

// joinData matches the data payload greedily to the end of the block.
func joinData(first string, rest []string) string {
	if len(rest) == 0 {
		return first
	}

	var sb strings.Builder
	sb.WriteString(first)
	for _, line := range rest {
		sb.WriteByte('\n')
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			sb.WriteString(strings.TrimPrefix(after, " "))
			continue
		}
		sb.WriteString(line)
	}
	return sb.String()
}
