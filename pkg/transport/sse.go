// Package transport delivers UI message streams to clients over server-sent
// events or websockets, and reads them back on the client side.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/nstogner/uistream/pkg/protocol"
	"github.com/nstogner/uistream/pkg/stream"
)

// HeaderUIMessageStream identifies a UI message stream response.
const HeaderUIMessageStream = "x-vercel-ai-ui-message-stream"

// ErrStreamingUnsupported is returned when a ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported by this connection")

// SetHeaders writes the response headers of a UI message stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(HeaderUIMessageStream, "v1")
}

// SSE writes events as server-sent events, one "data: <json>" frame each.
type SSE struct {
	w       io.Writer
	flusher http.Flusher
}

var _ stream.Sink = (*SSE)(nil)

// NewSSE prepares w for streaming: it sets the headers and writes the status.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSE{w: w, flusher: f}, nil
}

// NewSSEWriter writes frames to w without HTTP framing.
func NewSSEWriter(w io.Writer) *SSE {
	f, _ := w.(http.Flusher)
	return &SSE{w: w, flusher: f}
}

func (s *SSE) Send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := protocol.Marshal(ev)
	if err != nil {
		return err
	}
	return s.frame(b)
}

func (s *SSE) Done(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.frame([]byte(protocol.Done))
}

func (s *SSE) frame(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// ErrTruncated is returned by Reader when the stream ends before the
// terminal sentinel.
var ErrTruncated = errors.New("stream ended without terminal sentinel")

// Reader decodes a server-sent UI message stream.
type Reader struct {
	sc   *bufio.Scanner
	done bool
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	return &Reader{sc: sc}
}

// Next returns the next event. It returns io.EOF after the terminal sentinel
// and ErrTruncated if the input ends before it.
func (r *Reader) Next() (protocol.Event, error) {
	if r.done {
		return nil, io.EOF
	}
	data, err := r.nextData()
	if err != nil {
		return nil, err
	}
	if string(data) == protocol.Done {
		r.done = true
		return nil, io.EOF
	}
	return protocol.Unmarshal(data)
}

// nextData returns the data of the next non-empty SSE message. Multiple data
// lines are joined by newlines; other fields and comments are ignored.
func (r *Reader) nextData() ([]byte, error) {
	var (
		buf     bytes.Buffer
		hasData bool
	)
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			if hasData {
				return buf.Bytes(), nil
			}
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if hasData {
			buf.WriteByte('\n')
		}
		buf.Write(value)
		hasData = true
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	if hasData {
		return buf.Bytes(), nil
	}
	return nil, ErrTruncated
}

// Events ranges over the events of a stream. Iteration ends cleanly at the
// terminal sentinel.
func (r *Reader) Events() iter.Seq2[protocol.Event, error] {
	return func(yield func(protocol.Event, error) bool) {
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}
