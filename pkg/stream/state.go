package stream

import "strings"

type partKind int

const (
	kindText partKind = iota + 1
	kindReasoning
	kindToolInput
	kindToolOutput
)

func (k partKind) String() string {
	switch k {
	case kindText:
		return "text"
	case kindReasoning:
		return "reasoning"
	case kindToolInput:
		return "tool-input"
	case kindToolOutput:
		return "tool-output"
	}
	return "unknown"
}

// partState tracks the single open part of a stream.
type partState struct {
	id         string
	kind       partKind
	toolCallID string
	toolName   string
	text       strings.Builder
}

// is reports whether the part has the given kind and, for tool parts, the
// given tool call.
func (p *partState) is(kind partKind, toolCallID string) bool {
	return p != nil && p.kind == kind && p.toolCallID == toolCallID
}
