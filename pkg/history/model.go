package history

import (
	"encoding/json"
	"strings"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
)

// ToModelMessages expands UIMessages back into a linear message history:
// each assistant UIMessage becomes assistant messages carrying text and tool
// calls, each followed by a tool message per available output. Reasoning
// parts are dropped. Normalize(ToModelMessages(ms)) reproduces ms for any
// ms returned by Normalize, except for string outputs that are themselves
// valid JSON.
func ToModelMessages(ui []protocol.UIMessage) []domain.Message {
	var out []domain.Message
	for _, m := range ui {
		switch m.Role {
		case domain.RoleSystem, domain.RoleUser:
			out = append(out, domain.Message{ID: m.ID, Role: m.Role, Content: partsContent(m.Parts)})
		case domain.RoleAssistant:
			out = append(out, assistantMessages(m)...)
		}
	}
	return out
}

func partsContent(parts []protocol.Part) domain.Content {
	if len(parts) == 1 && parts[0].Type == protocol.PartText {
		return domain.TextContent(parts[0].Text)
	}
	cps := []domain.ContentPart{}
	for _, p := range parts {
		switch {
		case p.Type == protocol.PartText:
			cps = append(cps, domain.ContentPart{Type: domain.ContentTypeText, Text: p.Text})
		case p.Type == protocol.PartFile && strings.HasPrefix(p.MediaType, "image/"):
			cps = append(cps, domain.ContentPart{Type: domain.ContentTypeImageURL, URL: p.URL})
		}
	}
	return domain.Content{Parts: cps}
}

func assistantMessages(m protocol.UIMessage) []domain.Message {
	var (
		out     []domain.Message
		cur     *domain.Message
		texts   []domain.ContentPart
		results []domain.Message
	)
	id := m.ID
	nextID := func() string {
		defer func() { id = "" }()
		return id
	}
	flush := func() {
		if cur != nil {
			switch len(texts) {
			case 0:
			case 1:
				cur.Content = domain.TextContent(texts[0].Text)
			default:
				cur.Content = domain.Content{Parts: texts}
			}
			out = append(out, *cur)
		}
		out = append(out, results...)
		cur, texts, results = nil, nil, nil
	}
	current := func() *domain.Message {
		if len(results) > 0 {
			flush()
		}
		if cur == nil {
			cur = &domain.Message{ID: nextID(), Role: domain.RoleAssistant}
		}
		return cur
	}

	for _, p := range m.Parts {
		switch {
		case p.Type == protocol.PartText:
			current()
			texts = append(texts, domain.ContentPart{Type: domain.ContentTypeText, Text: p.Text})
		case p.IsTool() && p.Input == nil:
			// A result without a call.
			flush()
			results = append(results, toolMessage(nextID(), p))
		case p.IsTool():
			c := current()
			c.ToolCalls = append(c.ToolCalls, domain.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Args: p.Input})
			if p.State == protocol.StateOutputAvailable {
				results = append(results, toolMessage("", p))
			}
		}
	}
	flush()
	return out
}

func toolMessage(id string, p protocol.Part) domain.Message {
	content := string(p.Output)
	var s string
	if err := json.Unmarshal(p.Output, &s); err == nil {
		content = s
	}
	return domain.Message{
		ID:         id,
		Role:       domain.RoleTool,
		Content:    domain.TextContent(content),
		ToolCallID: p.ToolCallID,
		Name:       p.ToolName,
	}
}
