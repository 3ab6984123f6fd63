package agentstream

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkMode records whether the decoder is inside an unterminated think span.
type ThinkMode int

const (
	ThinkOutside ThinkMode = iota
	ThinkInside
)

// SegmentKind tells the session where a piece of TEXT content goes.
type SegmentKind int

const (
	// SegmentDisplay is answer text outside any think span.
	SegmentDisplay SegmentKind = iota
	// SegmentThought is reasoning text inside a think span.
	SegmentThought
	// SegmentEnter marks the transition into a think span.
	SegmentEnter
	// SegmentExit marks the transition out of a think span.
	SegmentExit
)

// Segment is one routed piece of TEXT content.
type Segment struct {
	Kind SegmentKind
	Text string
}

// ThinkState is the session-scoped think-span state machine. It is fed TEXT
// payloads in arrival order and splits them into display and thought
// segments. A marker cut across two payloads ("<thi" + "nk>") is held back
// until the next payload decides it.
//
// A repeated opener inside a span and a closer outside any span are both
// consumed without emitting text, so markup never reaches the answer.
type ThinkState struct {
	mode ThinkMode
	held string

	strayClosers int
}

// Mode returns the current think mode.
func (t *ThinkState) Mode() ThinkMode {
	return t.mode
}

// StrayClosers counts closers seen while outside any span.
func (t *ThinkState) StrayClosers() int {
	return t.strayClosers
}

// Feed routes text and returns the resulting segments in order.
func (t *ThinkState) Feed(text string) []Segment {
	s := t.held + text
	t.held = ""

	var out []Segment
	for len(s) > 0 {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			out = t.emit(out, s)
			break
		}
		if i > 0 {
			out = t.emit(out, s[:i])
			s = s[i:]
		}

		switch {
		case strings.HasPrefix(s, thinkOpen):
			s = s[len(thinkOpen):]
			if t.mode == ThinkOutside {
				t.mode = ThinkInside
				out = append(out, Segment{Kind: SegmentEnter})
			}
		case strings.HasPrefix(s, thinkClose):
			s = s[len(thinkClose):]
			if t.mode == ThinkInside {
				t.mode = ThinkOutside
				out = append(out, Segment{Kind: SegmentExit})
			} else {
				t.strayClosers++
			}
		case isPartialMarker(s):
			t.held = s
			s = ""
		default:
			out = t.emit(out, "<")
			s = s[1:]
		}
	}

	return out
}

// Drain releases any held partial marker as literal text in the current
// mode. It is called once when the stream terminates.
func (t *ThinkState) Drain() []Segment {
	if t.held == "" {
		return nil
	}
	held := t.held
	t.held = ""
	return t.emit(nil, held)
}

// emit appends text in the current mode, merging with a preceding segment
// of the same kind.
func (t *ThinkState) emit(out []Segment, text string) []Segment {
	if text == "" {
		return out
	}

	kind := SegmentDisplay
	if t.mode == ThinkInside {
		kind = SegmentThought
	}

	if n := len(out); n > 0 && out[n-1].Kind == kind {
		out[n-1].Text += text
		return out
	}
	return append(out, Segment{Kind: kind, Text: text})
}

// isPartialMarker reports whether s is a proper prefix of a think marker.
func isPartialMarker(s string) bool {
	return (len(s) < len(thinkOpen) && strings.HasPrefix(thinkOpen, s)) ||
		(len(s) < len(thinkClose) && strings.HasPrefix(thinkClose, s))
}
