package stream

import (
	"github.com/nstogner/uistream/pkg/protocol"
)

// toolConverter maps tool results onto tool output events.
type toolConverter struct {
	newID func(prefix string) string
	// chunkSize splits result content into deltas of at most this many
	// runes. Zero sends the whole content as one delta.
	chunkSize int
}

func (t *toolConverter) start(p *partState) protocol.Event {
	p.id = t.newID("output")
	return protocol.ToolOutputStart{ToolCallID: p.toolCallID, ID: p.id}
}

func (t *toolConverter) deltas(p *partState, content string) []protocol.Event {
	p.text.WriteString(content)
	var evs []protocol.Event
	for _, s := range split(content, t.chunkSize) {
		evs = append(evs, protocol.ToolOutputDelta{ToolCallID: p.toolCallID, ID: p.id, Delta: s})
	}
	return evs
}

// end makes the output available, as JSON when the content parses.
func (t *toolConverter) end(p *partState) protocol.Event {
	out, _ := protocol.JSONOrString(p.text.String())
	return protocol.ToolOutputAvailable{ToolCallID: p.toolCallID, Output: out}
}

func split(s string, n int) []string {
	if s == "" {
		return nil
	}
	if n <= 0 {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > n {
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return append(out, string(runes))
}
