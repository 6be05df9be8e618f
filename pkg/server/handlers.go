package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nstogner/uistream/pkg/agent"
	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/history"
	"github.com/nstogner/uistream/pkg/protocol"
	"github.com/nstogner/uistream/pkg/transport"
)

const (
	maxPromptLen = 10000
	maxBodySize  = 4 << 20
)

// llmUnavailable is reported by /agent when generation fails.
const llmUnavailable = "LLM service temporarily unavailable. Please try again later."

// --- Service ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"name":    "uistream",
		"version": Version,
		"endpoints": map[string]string{
			"agent":   "POST /agent",
			"chat":    "POST /api/chat",
			"health":  "GET /health",
			"threads": "GET /api/threads",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"llm_configured": s.llmConfigured,
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n < 1 || n > maxPromptLen {
		s.errorResponse(w, http.StatusUnprocessableEntity,
			fmt.Errorf("prompt must be between 1 and %d characters", maxPromptLen))
		return
	}

	msg, err := s.agent.Invoke(r.Context(), agent.Prompt("", req.Prompt))
	if err != nil {
		slog.Error("Agent request failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"error": llmUnavailable,
			"code":  "LLM_UNAVAILABLE",
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"answer": msg.Content.String()})
}

// --- UI message stream ---

// handleChat streams the answer to the last user message of a chat request
// ({"id": threadID, "messages": [UIMessage...]}) as a UI message stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if !gjson.ValidBytes(body) {
		s.errorResponse(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req := gjson.ParseBytes(body)
	prompt := lastUserPrompt(req.Get("messages"))
	if prompt == "" {
		s.errorResponse(w, http.StatusBadRequest, errors.New("no user message"))
		return
	}

	sse, err := transport.NewSSE(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	threadID := req.Get("id").String()
	run := agent.Prompt(threadID, prompt)
	if !s.threadExists(r, threadID) {
		// A new chat carries its whole history; seed the thread with it.
		if msgs := clientHistory(req.Get("messages")); msgs != nil {
			run.Messages = msgs
		}
	}
	chunks := s.agent.Run(r.Context(), run)
	if err := s.coordinator.Stream(r.Context(), chunks, sse); err != nil {
		slog.Debug("Chat stream stopped", "threadID", threadID, "error", err)
	}
}

// lastUserPrompt returns the text of the last user message: its text parts
// joined, or its content when it has no text parts.
func lastUserPrompt(messages gjson.Result) string {
	msgs := messages.Array()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if domain.ParseRole(m.Get("role").String()) != domain.RoleUser {
			continue
		}
		var sb strings.Builder
		for _, p := range m.Get("parts").Array() {
			if p.Get("type").String() == "text" {
				sb.WriteString(p.Get("text").String())
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
		var c domain.Content
		if content := m.Get("content"); content.Exists() && c.UnmarshalJSON([]byte(content.Raw)) == nil {
			return c.String()
		}
		return ""
	}
	return ""
}

func (s *Server) threadExists(r *http.Request, id string) bool {
	if id == "" {
		return false
	}
	_, err := s.store.GetThread(r.Context(), id)
	return err == nil
}

// clientHistory converts the UIMessages of a chat request into a message
// history. It returns nil unless the history ends with a user message that
// has text.
func clientHistory(messages gjson.Result) []domain.Message {
	var ui []protocol.UIMessage
	if err := json.Unmarshal([]byte(messages.Raw), &ui); err != nil {
		return nil
	}
	msgs := history.ToModelMessages(ui)
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != domain.RoleUser || last.Content.String() == "" {
		return nil
	}
	return msgs
}

// --- Threads ---

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, threads)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var th domain.Thread
	if err := json.NewDecoder(r.Body).Decode(&th); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if th.ID == "" {
		th.ID = uuid.New().String()
	}
	if th.Model == "" {
		th.Model = s.defaultModel
	}
	if err := s.store.CreateThread(r.Context(), &th); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, th)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	th, err := s.store.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, th)
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	th, err := s.store.GetThread(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(th); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	th.ID = id
	if err := s.store.UpdateThread(r.Context(), th); err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, th)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteThread(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	if s.sandbox != nil {
		if err := s.sandbox.Stop(r.Context(), id); err != nil {
			slog.Warn("Failed to stop sandbox", "threadID", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetMessages returns a thread's history as UIMessages.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetThread(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	msgs, err := s.store.GetMessages(r.Context(), id, 0)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, history.Normalize(msgs))
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.store.ListCheckpoints(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, cps)
}

// --- Sandbox ---

func (s *Server) handleSandboxStatus(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	status, err := s.sandbox.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": status})
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}
