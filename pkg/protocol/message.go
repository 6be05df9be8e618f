package protocol

import (
	"encoding/json"
	"strings"

	"github.com/nstogner/uistream/pkg/domain"
)

// Part types.
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartFile      = "file"

	// PartToolPrefix prefixes tool parts: "tool-<toolName>".
	PartToolPrefix = "tool-"
	// PartToolResult is the type of a tool part whose tool name is unknown.
	PartToolResult = "tool-result"
)

// Tool part states.
const (
	StateInputStreaming  = "input-streaming"
	StateInputAvailable  = "input-available"
	StateOutputAvailable = "output-available"
)

// UIMessage is the consumer-facing message shape shared by live streams and
// normalized history.
type UIMessage struct {
	ID    string      `json:"id,omitempty"`
	Role  domain.Role `json:"role"`
	Parts []Part      `json:"parts"`
}

// Part is one ordered element of a UIMessage.
type Part struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func FilePart(mediaType, url string) Part {
	return Part{Type: PartFile, MediaType: mediaType, URL: url}
}

// ToolPart returns a tool part in the input-available state.
func ToolPart(toolCallID, toolName string, input json.RawMessage) Part {
	typ := PartToolResult
	if toolName != "" {
		typ = PartToolPrefix + toolName
	}
	return Part{
		Type:       typ,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		State:      StateInputAvailable,
		Input:      input,
	}
}

// IsTool reports whether the part describes a tool invocation.
func (p Part) IsTool() bool {
	return strings.HasPrefix(p.Type, PartToolPrefix)
}

// WithOutput returns a copy of a tool part promoted to output-available.
func (p Part) WithOutput(output json.RawMessage) Part {
	p.State = StateOutputAvailable
	p.Output = output
	return p
}

// MarshalJSON always writes "text" for text and reasoning parts, so empty
// text survives the round trip.
func (p Part) MarshalJSON() ([]byte, error) {
	type plain Part
	switch p.Type {
	case PartText, PartReasoning:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	default:
		return json.Marshal(plain(p))
	}
}
