// Package model defines the interface to LLM providers. Providers stream
// their output as stream chunks so a response can be forwarded to clients
// while it is generated.
package model

import (
	"context"
	"iter"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/stream"
)

// Request is a single generation request.
type Request struct {
	// Model identifies which model to use (e.g. "gemini-2.5-flash").
	Model string
	// Instructions is the system prompt.
	Instructions string
	// Messages is the conversation history. System messages are folded into
	// the instructions by providers that do not accept them inline.
	Messages []domain.Message
	// Tools declares the tools the model may call.
	Tools []ToolSpec
}

// ToolSpec declares a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter is one named argument of a tool. Type is a JSON schema scalar
// type: "string", "number", "integer" or "boolean".
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Provider represents a service that provides LLMs (e.g. Gemini).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Stream starts a generation. All chunks of one call share a MessageID
	// and the final generation chunk is marked Last.
	Stream(ctx context.Context, req Request) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// Chunks yields text, reasoning and tool call chunks as they arrive. It
	// may only be ranged over once.
	Chunks() iter.Seq2[stream.Chunk, error]

	// Close releases resources associated with this stream.
	Close() error
}

// Lookahead wraps a chunk sequence so the final generation chunk is marked
// Last. A sequence that produced nothing yields a single empty last text
// chunk for msgID.
func Lookahead(msgID string, chunks iter.Seq2[stream.Chunk, error]) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		var held stream.Chunk
		for c, err := range chunks {
			if err != nil {
				if held != nil && !yield(held, nil) {
					return
				}
				yield(nil, err)
				return
			}
			if held != nil && !yield(held, nil) {
				return
			}
			held = c
		}
		if held == nil {
			held = stream.TextChunk{MessageID: msgID}
		}
		yield(markLast(held), nil)
	}
}

func markLast(c stream.Chunk) stream.Chunk {
	switch c := c.(type) {
	case stream.TextChunk:
		c.Last = true
		return c
	case stream.ReasoningChunk:
		c.Last = true
		return c
	case stream.ToolCallChunk:
		c.Last = true
		return c
	}
	return c
}
