// Package protocol defines the UI message stream wire format: the typed events
// a chat client consumes, the UIMessage shape they assemble into, and the
// JSON codec used on the wire.
package protocol

import "encoding/json"

// Event is a single UI message stream chunk.
type Event interface {
	// EventType returns the wire discriminator written to the "type" field.
	EventType() string
}

// Wire event types.
const (
	TypeStart               = "start"
	TypeStartStep           = "start-step"
	TypeFinishStep          = "finish-step"
	TypeTextStart           = "text-start"
	TypeTextDelta           = "text-delta"
	TypeTextEnd             = "text-end"
	TypeReasoningStart      = "reasoning-start"
	TypeReasoningDelta      = "reasoning-delta"
	TypeReasoningEnd        = "reasoning-end"
	TypeToolInputStart      = "tool-input-start"
	TypeToolInputDelta      = "tool-input-delta"
	TypeToolInputAvailable  = "tool-input-available"
	TypeToolOutputStart     = "tool-output-start"
	TypeToolOutputDelta     = "tool-output-delta"
	TypeToolOutputAvailable = "tool-output-available"
	TypeCheckpoint          = "data-checkpoint"
	TypeError               = "error"
	TypeFinish              = "finish"

	// DataPrefix marks custom data events ("data-<name>").
	DataPrefix = "data-"
)

// Done is the terminal sentinel written after the last event of a stream.
const Done = "[DONE]"

type Start struct {
	MessageID string `json:"messageId,omitempty"`
}

type StartStep struct{}

type FinishStep struct{}

type TextStart struct {
	ID string `json:"id"`
}

type TextDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type TextEnd struct {
	ID string `json:"id"`
}

type ReasoningStart struct {
	ID string `json:"id"`
}

type ReasoningDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type ReasoningEnd struct {
	ID string `json:"id"`
}

type ToolInputStart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type ToolInputDelta struct {
	ToolCallID     string `json:"toolCallId"`
	InputTextDelta string `json:"inputTextDelta"`
}

// ToolInputAvailable carries the complete tool arguments. When the streamed
// argument text did not parse as JSON, Input holds it as a JSON string and
// Invalid is set.
type ToolInputAvailable struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
	Invalid    bool            `json:"invalid,omitempty"`
}

type ToolOutputStart struct {
	ToolCallID string `json:"toolCallId"`
	ID         string `json:"id"`
}

type ToolOutputDelta struct {
	ToolCallID string `json:"toolCallId"`
	ID         string `json:"id"`
	Delta      string `json:"delta"`
}

type ToolOutputAvailable struct {
	ToolCallID string          `json:"toolCallId"`
	Output     json.RawMessage `json:"output"`
}

// CheckpointRef identifies a persisted state snapshot and its parent.
// Parent is nil for the first snapshot of a thread.
type CheckpointRef struct {
	ID     string  `json:"id"`
	Parent *string `json:"parent"`
}

// Checkpoint is a transient data event pointing at a state snapshot. Clients
// use it to restore or branch a conversation; it is not part of any message.
type Checkpoint struct {
	Transient  bool          `json:"transient"`
	Checkpoint CheckpointRef `json:"checkpoint"`
}

// Data is a custom data event. Type should carry the DataPrefix for clients
// that follow the convention, but any non-reserved type is written as-is.
type Data struct {
	Type      string          `json:"-"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Transient bool            `json:"transient,omitempty"`
}

type Error struct {
	ErrorText string `json:"errorText"`
}

type Finish struct {
	FinishReason string `json:"finishReason,omitempty"`
}

func (Start) EventType() string               { return TypeStart }
func (StartStep) EventType() string           { return TypeStartStep }
func (FinishStep) EventType() string          { return TypeFinishStep }
func (TextStart) EventType() string           { return TypeTextStart }
func (TextDelta) EventType() string           { return TypeTextDelta }
func (TextEnd) EventType() string             { return TypeTextEnd }
func (ReasoningStart) EventType() string      { return TypeReasoningStart }
func (ReasoningDelta) EventType() string      { return TypeReasoningDelta }
func (ReasoningEnd) EventType() string        { return TypeReasoningEnd }
func (ToolInputStart) EventType() string      { return TypeToolInputStart }
func (ToolInputDelta) EventType() string      { return TypeToolInputDelta }
func (ToolInputAvailable) EventType() string  { return TypeToolInputAvailable }
func (ToolOutputStart) EventType() string     { return TypeToolOutputStart }
func (ToolOutputDelta) EventType() string     { return TypeToolOutputDelta }
func (ToolOutputAvailable) EventType() string { return TypeToolOutputAvailable }
func (Checkpoint) EventType() string          { return TypeCheckpoint }
func (d Data) EventType() string              { return d.Type }
func (Error) EventType() string               { return TypeError }
func (Finish) EventType() string              { return TypeFinish }

// NewCheckpoint returns a transient checkpoint event.
func NewCheckpoint(id string, parent *string) Checkpoint {
	return Checkpoint{
		Transient:  true,
		Checkpoint: CheckpointRef{ID: id, Parent: parent},
	}
}

// JSONOrString returns s as raw JSON if it is valid JSON, otherwise s encoded
// as a JSON string. The boolean reports whether s was valid JSON.
func JSONOrString(s string) (json.RawMessage, bool) {
	if s != "" && json.Valid([]byte(s)) {
		return json.RawMessage(s), true
	}
	b, _ := json.Marshal(s)
	return b, false
}
