package agentstream

import "strings"

// Phases accumulates reasoning text into ordered phases. Exactly one phase
// is open at a time; closed phases are immutable.
type Phases struct {
	closed []string
	open   strings.Builder
}

// Append adds raw text to the open phase without trimming.
func (p *Phases) Append(text string) {
	p.open.WriteString(text)
}

// Close ends the open phase. It is a no-op when the open phase is blank;
// otherwise the trimmed text is appended to the ordered list and a new
// empty phase is opened.
func (p *Phases) Close() bool {
	text := strings.TrimSpace(p.open.String())
	p.open.Reset()
	if text == "" {
		return false
	}
	p.closed = append(p.closed, text)
	return true
}

// Open returns the text of the open phase.
func (p *Phases) Open() string {
	return p.open.String()
}

// Closed returns a copy of the closed phases in order.
func (p *Phases) Closed() []string {
	out := make([]string, len(p.closed))
	copy(out, p.closed)
	return out
}

// Len returns the number of closed phases.
func (p *Phases) Len() int {
	return len(p.closed)
}
