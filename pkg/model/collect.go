package model

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/stream"
)

// Accumulator folds the chunks of one model response into the assistant
// message they describe. Reasoning is not kept.
type Accumulator struct {
	id    string
	text  strings.Builder
	order []int
	calls map[int]*domain.ToolCall
	args  map[int]*strings.Builder
}

// Add records a chunk. Chunks other than text and tool calls are ignored.
func (a *Accumulator) Add(c stream.Chunk) {
	switch c := c.(type) {
	case stream.TextChunk:
		a.setID(c.MessageID)
		a.text.WriteString(c.Text)
	case stream.ToolCallChunk:
		a.setID(c.MessageID)
		if a.calls == nil {
			a.calls = make(map[int]*domain.ToolCall)
			a.args = make(map[int]*strings.Builder)
		}
		tc, ok := a.calls[c.Index]
		if !ok {
			tc = &domain.ToolCall{}
			a.calls[c.Index] = tc
			a.args[c.Index] = &strings.Builder{}
			a.order = append(a.order, c.Index)
		}
		if tc.ID == "" {
			tc.ID = c.ID
		}
		if tc.Name == "" {
			tc.Name = c.Name
		}
		a.args[c.Index].WriteString(c.ArgsFragment)
	}
}

func (a *Accumulator) setID(id string) {
	if a.id == "" {
		a.id = id
	}
}

// Message returns the assistant message built so far.
func (a *Accumulator) Message() domain.Message {
	msg := domain.Message{
		ID:      a.id,
		Role:    domain.RoleAssistant,
		Content: domain.TextContent(a.text.String()),
	}
	for _, idx := range a.order {
		tc := *a.calls[idx]
		args := a.args[idx].String()
		switch {
		case args == "":
			tc.Args = json.RawMessage(`{}`)
		case json.Valid([]byte(args)):
			tc.Args = json.RawMessage(args)
		default:
			tc.Args, _ = json.Marshal(args)
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return msg
}

// Collect drains chunks into a single assistant message.
func Collect(chunks iter.Seq2[stream.Chunk, error]) (domain.Message, error) {
	var a Accumulator
	for c, err := range chunks {
		if err != nil {
			return domain.Message{}, err
		}
		a.Add(c)
	}
	return a.Message(), nil
}
