// Package history converts persisted message history to and from the
// UIMessage shape produced by live streams.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
)

// ImageMediaType is the media type given to image_url content.
const ImageMediaType = "image/*"

// Normalize merges a linear message history into UIMessages.
//
// System and user messages map one to one. Consecutive assistant and tool
// messages merge into a single assistant UIMessage: assistant content and
// tool calls append parts in order, and each tool result promotes the
// matching tool part to output-available. A result without a matching call
// is appended as a standalone tool part. Messages with other roles are
// skipped. The input is not modified.
func Normalize(msgs []domain.Message) []protocol.UIMessage {
	out := make([]protocol.UIMessage, 0, len(msgs))
	var acc *protocol.UIMessage

	flush := func() {
		if acc == nil {
			return
		}
		if len(acc.Parts) == 0 {
			acc.Parts = append(acc.Parts, protocol.TextPart(""))
		}
		out = append(out, *acc)
		acc = nil
	}
	open := func(id string) {
		if acc == nil {
			acc = &protocol.UIMessage{ID: id, Role: domain.RoleAssistant, Parts: []protocol.Part{}}
		}
	}

	for i, m := range msgs {
		switch role := domain.ParseRole(string(m.Role)); role {
		case domain.RoleSystem, domain.RoleUser:
			flush()
			out = append(out, protocol.UIMessage{ID: m.ID, Role: role, Parts: contentParts(m.Content, true)})
		case domain.RoleAssistant:
			open(m.ID)
			acc.Parts = append(acc.Parts, contentParts(m.Content, false)...)
			acc.Parts = append(acc.Parts, toolCallParts(i, m)...)
		case domain.RoleTool:
			open(m.ID)
			mergeResult(acc, m)
		}
	}
	flush()
	return out
}

// contentParts expands content into text and file parts. With keepEmpty,
// content without parts yields a single empty text part.
func contentParts(c domain.Content, keepEmpty bool) []protocol.Part {
	var parts []protocol.Part
	if !c.IsMultipart() {
		if c.Text != "" || keepEmpty {
			parts = append(parts, protocol.TextPart(c.Text))
		}
		return parts
	}
	for _, p := range c.Parts {
		switch p.Type {
		case domain.ContentTypeText:
			if p.Text != "" || keepEmpty {
				parts = append(parts, protocol.TextPart(p.Text))
			}
		case domain.ContentTypeImageURL:
			parts = append(parts, protocol.FilePart(ImageMediaType, p.URL))
		}
	}
	if len(parts) == 0 && keepEmpty {
		parts = append(parts, protocol.TextPart(""))
	}
	return parts
}

// toolCallParts returns the tool parts declared by assistant message i.
// Complete tool calls take precedence over streamed fragments.
func toolCallParts(i int, m domain.Message) []protocol.Part {
	calls := m.ToolCalls
	if len(calls) == 0 {
		calls = mergeChunks(m.ToolCallChunks)
	}
	var parts []protocol.Part
	for j, tc := range calls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", i, j)
		}
		parts = append(parts, protocol.ToolPart(id, tc.Name, toolInput(tc.Args)))
	}
	return parts
}

// mergeChunks joins fragments by index, in order of first appearance.
func mergeChunks(chunks []domain.ToolCallChunk) []domain.ToolCall {
	type merged struct {
		id, name string
		args     []byte
	}
	var order []int
	byIndex := make(map[int]*merged)
	for _, c := range chunks {
		m, ok := byIndex[c.Index]
		if !ok {
			m = &merged{}
			byIndex[c.Index] = m
			order = append(order, c.Index)
		}
		if m.id == "" {
			m.id = c.ID
		}
		if m.name == "" {
			m.name = c.Name
		}
		m.args = append(m.args, c.Args...)
	}

	calls := make([]domain.ToolCall, 0, len(order))
	for _, idx := range order {
		m := byIndex[idx]
		calls = append(calls, domain.ToolCall{ID: m.id, Name: m.name, Args: json.RawMessage(m.args)})
	}
	return calls
}

func toolInput(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	in, _ := protocol.JSONOrString(string(args))
	return in
}

func mergeResult(acc *protocol.UIMessage, m domain.Message) {
	output, _ := protocol.JSONOrString(m.Content.String())
	for i := len(acc.Parts) - 1; i >= 0; i-- {
		p := acc.Parts[i]
		if p.IsTool() && p.ToolCallID == m.ToolCallID && p.State == protocol.StateInputAvailable {
			acc.Parts[i] = p.WithOutput(output)
			return
		}
	}
	acc.Parts = append(acc.Parts, protocol.ToolPart(m.ToolCallID, m.Name, nil).WithOutput(output))
}
