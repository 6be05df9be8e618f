package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/uistream/pkg/protocol"
	"github.com/nstogner/uistream/pkg/stream"
)

const writeWait = 10 * time.Second

// WebSocket writes each event as one text message. The sentinel is sent as
// the text message "[DONE]".
type WebSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ stream.Sink = (*WebSocket)(nil)

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (ws *WebSocket) Send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := protocol.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.write(ctx, b)
}

func (ws *WebSocket) Done(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ws.write(ctx, []byte(protocol.Done))
}

func (ws *WebSocket) write(ctx context.Context, b []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.conn.SetWriteDeadline(deadline)
	if err := ws.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("writing websocket message: %w", err)
	}
	return nil
}
