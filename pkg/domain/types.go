package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Thread is a persisted conversation with a configurable model.
type Thread struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single entry of a thread's linear history.
type Message struct {
	ID       string  `json:"id,omitempty"`
	ThreadID string  `json:"thread_id,omitempty"`
	Role     Role    `json:"role"`
	Content  Content `json:"content"`

	// ToolCalls holds complete tool call declarations (assistant only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallChunks holds streamed tool call fragments that were persisted
	// without being merged (assistant only).
	ToolCallChunks []ToolCallChunk `json:"tool_call_chunks,omitempty"`

	// ToolCallID and Name identify the call a tool result answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ToolCall represents a tool invocation by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolCallChunk is one streamed fragment of a tool call, keyed by the
// position of the call within its message.
type ToolCallChunk struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Args  string `json:"args,omitempty"`
}

// Checkpoint is a state snapshot taken after a generation step.
type Checkpoint struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	ParentID string `json:"parent_id,omitempty"`
	// Config is the opaque snapshot configuration, e.g.
	// {"configurable":{"thread_id":"...","checkpoint_id":"..."}}.
	Config       json.RawMessage `json:"config"`
	MessageCount int             `json:"message_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Model represents an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Content is a message body: either plain text or an ordered list of parts.
// It encodes as a JSON string when it has no parts.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent returns plain text content.
func TextContent(s string) Content { return Content{Text: s} }

// IsMultipart reports whether the content is a list of parts.
func (c Content) IsMultipart() bool { return c.Parts != nil }

// String returns the concatenated text of the content.
func (c Content) String() string {
	if !c.IsMultipart() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == ContentTypeText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultipart() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch {
	case r.Type == gjson.Null:
		*c = Content{}
	case r.Type == gjson.String:
		*c = Content{Text: r.String()}
	case r.IsArray():
		parts := []ContentPart{}
		for _, item := range r.Array() {
			var p ContentPart
			if err := p.UnmarshalJSON([]byte(item.Raw)); err != nil {
				return err
			}
			parts = append(parts, p)
		}
		*c = Content{Parts: parts}
	default:
		return fmt.Errorf("content must be a string or a list of parts, got %s", r.Type)
	}
	return nil
}

// ContentPart is one item of multi-part content. Bare strings decode as text
// parts; image_url accepts both {"url": "..."} and a plain string.
type ContentPart struct {
	Type string
	Text string
	URL  string
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", p.Type)
	switch p.Type {
	case ContentTypeImageURL:
		b, _ = sjson.SetBytes(b, "image_url.url", p.URL)
	default:
		b, _ = sjson.SetBytes(b, "text", p.Text)
	}
	return b, nil
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if r.Type == gjson.String {
		*p = ContentPart{Type: ContentTypeText, Text: r.String()}
		return nil
	}
	if !r.IsObject() {
		return fmt.Errorf("content part must be an object or a string, got %s", r.Type)
	}
	*p = ContentPart{Type: r.Get("type").String(), Text: r.Get("text").String()}
	if img := r.Get("image_url"); img.Exists() {
		if img.IsObject() {
			p.URL = img.Get("url").String()
		} else {
			p.URL = img.String()
		}
	}
	return nil
}
