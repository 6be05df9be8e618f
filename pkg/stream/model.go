package stream

import (
	"encoding/json"
	"fmt"

	"github.com/nstogner/uistream/pkg/protocol"
)

type toolKey struct {
	messageID string
	index     int
}

// modelConverter maps text, reasoning and tool call fragments onto part
// lifecycle events. It owns the per-stream index to toolCallId map.
type modelConverter struct {
	newID func(prefix string) string

	toolIDs   map[toolKey]string
	toolNames map[string]string
	// finalized holds tool calls whose input has been made available.
	finalized map[string]bool
}

func newModelConverter(newID func(string) string) *modelConverter {
	return &modelConverter{
		newID:     newID,
		toolIDs:   make(map[toolKey]string),
		toolNames: make(map[string]string),
		finalized: make(map[string]bool),
	}
}

// toolCallID resolves the stable id of the call a fragment belongs to,
// assigning one on the first fragment of an index. Indexes are scoped to
// their model message.
func (m *modelConverter) toolCallID(c ToolCallChunk) (string, error) {
	key := toolKey{messageID: c.MessageID, index: c.Index}
	id, ok := m.toolIDs[key]
	if !ok {
		id = c.ID
		if id == "" {
			id = m.newID("call")
		}
		m.toolIDs[key] = id
	}
	if c.Name != "" && m.toolNames[id] == "" {
		m.toolNames[id] = c.Name
	}
	if m.finalized[id] {
		return "", fmt.Errorf("%w: fragment for finalized tool call %s", ErrMalformedChunk, id)
	}
	return id, nil
}

func (m *modelConverter) start(p *partState) protocol.Event {
	switch p.kind {
	case kindText:
		p.id = m.newID("text")
		return protocol.TextStart{ID: p.id}
	case kindReasoning:
		p.id = m.newID("reasoning")
		return protocol.ReasoningStart{ID: p.id}
	default:
		p.id = p.toolCallID
		p.toolName = m.toolNames[p.toolCallID]
		return protocol.ToolInputStart{ToolCallID: p.toolCallID, ToolName: p.toolName}
	}
}

func (m *modelConverter) delta(p *partState, s string) protocol.Event {
	p.text.WriteString(s)
	switch p.kind {
	case kindText:
		return protocol.TextDelta{ID: p.id, Delta: s}
	case kindReasoning:
		return protocol.ReasoningDelta{ID: p.id, Delta: s}
	default:
		return protocol.ToolInputDelta{ToolCallID: p.toolCallID, InputTextDelta: s}
	}
}

// end closes a part. Tool input is parsed from the accumulated argument
// text; an empty buffer means no arguments and unparseable text is passed
// through as a string marked invalid.
func (m *modelConverter) end(p *partState) protocol.Event {
	switch p.kind {
	case kindText:
		return protocol.TextEnd{ID: p.id}
	case kindReasoning:
		return protocol.ReasoningEnd{ID: p.id}
	}

	m.finalized[p.toolCallID] = true
	if p.toolName == "" {
		p.toolName = m.toolNames[p.toolCallID]
	}
	ev := protocol.ToolInputAvailable{ToolCallID: p.toolCallID, ToolName: p.toolName}
	args := p.text.String()
	switch {
	case args == "":
		ev.Input = json.RawMessage(`{}`)
	case json.Valid([]byte(args)):
		ev.Input = json.RawMessage(args)
	default:
		ev.Input, _ = protocol.JSONOrString(args)
		ev.Invalid = true
	}
	return ev
}
