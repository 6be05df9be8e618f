package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedChunk reports a producer item that lacks the attributes its
// kind requires. Coordinators skip such items instead of failing the stream.
var ErrMalformedChunk = errors.New("malformed chunk")

const maxLineSize = 4 << 20

// Decode reads newline-delimited JSON producer items from r and classifies
// each with Classify. Malformed lines are yielded as errors wrapping
// ErrMalformedChunk and reading continues; a read failure is yielded last.
func Decode(r io.Reader) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		line := 0
		for sc.Scan() {
			line++
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			chunks, err := Classify(b)
			if err != nil {
				if !yield(nil, fmt.Errorf("line %d: %w", line, err)) {
					return
				}
				continue
			}
			for _, c := range chunks {
				if !yield(c, nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("reading chunks: %w", err))
		}
	}
}

// Classify resolves one loosely typed producer item into chunks. A model
// message chunk carrying several tool call fragments yields one
// ToolCallChunk per fragment.
//
// Classification is by attribute presence, checked in this order:
//
//  1. "config" (object): StateSnapshot, with optional "parent_config".
//  2. "type":"tool" or "tool_call_id": ToolResultMessage.
//  3. non-empty "tool_call_chunks": ToolCallChunk per element. Any text or
//     reasoning on the same item is ignored.
//  4. Non-empty "reasoning_content" (top level or under "additional_kwargs")
//     or "reasoning": ReasoningChunk. Any text on the same item is ignored.
//  5. "content" or "text": TextChunk.
//
// "id" is the model message id and "chunk_position":"last" marks the final
// chunk of that message.
func Classify(raw []byte) ([]Chunk, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedChunk)
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrMalformedChunk, r.Type)
	}

	if cfg := r.Get("config"); cfg.Exists() {
		if !cfg.IsObject() {
			return nil, fmt.Errorf("%w: state snapshot config must be an object", ErrMalformedChunk)
		}
		snap := StateSnapshot{Config: json.RawMessage(cfg.Raw)}
		if p := r.Get("parent_config"); p.IsObject() {
			snap.ParentConfig = json.RawMessage(p.Raw)
		}
		return []Chunk{snap}, nil
	}

	if r.Get("type").String() == "tool" || r.Get("tool_call_id").Exists() {
		id := r.Get("tool_call_id").String()
		if id == "" {
			return nil, fmt.Errorf("%w: tool result without tool_call_id", ErrMalformedChunk)
		}
		return []Chunk{ToolResultMessage{
			ID:         r.Get("id").String(),
			ToolCallID: id,
			Name:       r.Get("name").String(),
			Content:    contentText(r.Get("content")),
		}}, nil
	}

	msgID := r.Get("id").String()
	last := r.Get("chunk_position").String() == "last"

	if tcs := r.Get("tool_call_chunks").Array(); len(tcs) > 0 {
		out := make([]Chunk, 0, len(tcs))
		for i, tc := range tcs {
			idx := tc.Get("index")
			if idx.Type != gjson.Number {
				return nil, fmt.Errorf("%w: tool call chunk without index", ErrMalformedChunk)
			}
			out = append(out, ToolCallChunk{
				MessageID:    msgID,
				Index:        int(idx.Int()),
				ID:           tc.Get("id").String(),
				Name:         tc.Get("name").String(),
				ArgsFragment: tc.Get("args").String(),
				Last:         last && i == len(tcs)-1,
			})
		}
		return out, nil
	}

	for _, path := range []string{"reasoning_content", "additional_kwargs.reasoning_content", "reasoning"} {
		if rc := r.Get(path); rc.String() != "" {
			return []Chunk{ReasoningChunk{MessageID: msgID, Text: rc.String(), Last: last}}, nil
		}
	}

	for _, path := range []string{"content", "text"} {
		if c := r.Get(path); c.Exists() {
			return []Chunk{TextChunk{MessageID: msgID, Text: contentText(c), Last: last}}, nil
		}
	}

	if last {
		return []Chunk{TextChunk{MessageID: msgID, Last: true}}, nil
	}
	return nil, fmt.Errorf("%w: no text, reasoning, tool call or snapshot attributes", ErrMalformedChunk)
}

// contentText flattens string or content-block list values to text.
func contentText(c gjson.Result) string {
	if !c.IsArray() {
		if c.Type == gjson.Null {
			return ""
		}
		return c.String()
	}
	var sb strings.Builder
	for _, item := range c.Array() {
		switch {
		case item.Type == gjson.String:
			sb.WriteString(item.String())
		case item.Get("type").String() == "text":
			sb.WriteString(item.Get("text").String())
		}
	}
	return sb.String()
}
