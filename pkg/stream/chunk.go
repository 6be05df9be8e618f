// Package stream converts a producer's incremental generation chunks into an
// ordered UI message stream.
package stream

import "encoding/json"

// Chunk is one incremental unit emitted by a generation pipeline. The set of
// implementations is closed: TextChunk, ReasoningChunk, ToolCallChunk,
// ToolResultMessage and StateSnapshot.
type Chunk interface {
	chunk()
}

// TextChunk is a fragment of generated text. MessageID identifies the model
// message (generation step) it belongs to.
type TextChunk struct {
	MessageID string
	Text      string
	// Last marks the final chunk of its model message.
	Last bool
}

// ReasoningChunk is a fragment of the model's reasoning.
type ReasoningChunk struct {
	MessageID string
	Text      string
	Last      bool
}

// ToolCallChunk is a fragment of a tool call's arguments. Fragments sharing
// MessageID and Index belong to the same call; ID and Name are usually only
// present on the first fragment.
type ToolCallChunk struct {
	MessageID    string
	Index        int
	ID           string
	Name         string
	ArgsFragment string
	Last         bool
}

// ToolResultMessage is the outcome of executing a tool call.
type ToolResultMessage struct {
	ID         string
	ToolCallID string
	Name       string
	Content    string
}

// StateSnapshot marks a persisted state checkpoint. Config and ParentConfig
// are opaque JSON configurations; ParentConfig is empty for the first
// snapshot.
type StateSnapshot struct {
	Config       json.RawMessage
	ParentConfig json.RawMessage
}

func (TextChunk) chunk()         {}
func (ReasoningChunk) chunk()    {}
func (ToolCallChunk) chunk()     {}
func (ToolResultMessage) chunk() {}
func (StateSnapshot) chunk()     {}
