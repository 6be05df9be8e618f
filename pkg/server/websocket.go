package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nstogner/uistream/pkg/agent"
	"github.com/nstogner/uistream/pkg/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleChatWebSocket runs one generation per received {"content": "..."}
// message and writes its UI message stream back, ending each with the
// terminal sentinel.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	// Verify the thread exists.
	if _, err := s.store.GetThread(r.Context(), threadID); err != nil {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	sink := transport.NewWebSocket(ws)
	for {
		var msg struct {
			Content string `json:"content"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}
		if msg.Content == "" {
			continue
		}

		chunks := s.agent.Run(r.Context(), agent.Prompt(threadID, msg.Content))
		if err := s.coordinator.Stream(r.Context(), chunks, sink); err != nil {
			slog.Warn("WebSocket stream stopped", "threadID", threadID, "error", err)
			return
		}
	}
}
