// Package client talks to a uistream server: thread management and chat
// requests whose UI message stream is folded into a UIMessage as it arrives.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
	"github.com/nstogner/uistream/pkg/transport"
)

// Client is a uistream API client.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at baseURL, e.g. "http://localhost:5001".
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Minute},
	}
}

// ListThreads returns all threads, most recently updated first.
func (c *Client) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var threads []domain.Thread
	if err := c.do(ctx, http.MethodGet, "/api/threads", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// CreateThread creates a thread with the server's default model.
func (c *Client) CreateThread(ctx context.Context, title string) (*domain.Thread, error) {
	var th domain.Thread
	if err := c.do(ctx, http.MethodPost, "/api/threads", domain.Thread{Title: title}, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// Messages returns the normalized history of a thread.
func (c *Client) Messages(ctx context.Context, threadID string) ([]protocol.UIMessage, error) {
	var msgs []protocol.UIMessage
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+threadID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Chat sends prompt to a thread and reads the UI message stream. onUpdate,
// if set, is called with the partially assembled message after every event.
// The returned assembler holds the final message, its checkpoints and any
// error reported by the stream.
func (c *Client) Chat(ctx context.Context, threadID, prompt string, onUpdate func(protocol.UIMessage)) (*protocol.Assembler, error) {
	body, err := chatRequest(threadID, prompt)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	asm := protocol.NewAssembler()
	for ev, err := range transport.NewReader(resp.Body).Events() {
		if err != nil {
			return asm, fmt.Errorf("reading stream: %w", err)
		}
		if err := asm.Apply(ev); err != nil {
			return asm, err
		}
		if onUpdate != nil {
			onUpdate(asm.Message())
		}
	}
	return asm, nil
}

// chatRequest builds {"id": threadID, "messages": [{"role": "user", "parts": [...]}]}.
func chatRequest(threadID, prompt string) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "id", threadID)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "messages.0", protocol.UIMessage{
		Role:  domain.RoleUser,
		Parts: []protocol.Part{protocol.TextPart(prompt)},
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError turns an API error body ({"error": msg}) into an error.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if msg := gjson.GetBytes(b, "error").String(); msg != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
