// Package server exposes the agent over HTTP: UI message streams over SSE
// and websockets, thread history as normalized UIMessages, and a plain
// prompt endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nstogner/uistream/pkg/agent"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/sandbox"
	"github.com/nstogner/uistream/pkg/store"
	"github.com/nstogner/uistream/pkg/stream"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server serves the chat API.
type Server struct {
	agent         *agent.Agent
	coordinator   *stream.Coordinator
	store         agent.Store
	provider      model.Provider
	sandbox       sandbox.Manager
	defaultModel  string
	llmConfigured bool
	srv           *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSandbox enables the sandbox status endpoint and stops a thread's
// sandbox when the thread is deleted.
func WithSandbox(m sandbox.Manager) Option {
	return func(s *Server) { s.sandbox = m }
}

// WithLLMConfigured sets the llm_configured flag of the health endpoint.
func WithLLMConfigured(ok bool) Option {
	return func(s *Server) { s.llmConfigured = ok }
}

// WithDefaultModel sets the model of threads created without one.
func WithDefaultModel(id string) Option {
	return func(s *Server) { s.defaultModel = id }
}

// New creates a new Server.
func New(
	a *agent.Agent,
	coordinator *stream.Coordinator,
	st agent.Store,
	provider model.Provider,
	opts ...Option,
) *Server {
	s := &Server{
		agent:       a,
		coordinator: coordinator,
		store:       st,
		provider:    provider,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /agent", s.handleAgent)

	// UI message stream
	mux.HandleFunc("POST /api/chat", s.handleChat)

	// Threads
	mux.HandleFunc("GET /api/threads", s.handleListThreads)
	mux.HandleFunc("POST /api/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/threads/{id}", s.handleGetThread)
	mux.HandleFunc("PUT /api/threads/{id}", s.handleUpdateThread)
	mux.HandleFunc("DELETE /api/threads/{id}", s.handleDeleteThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("GET /api/threads/{id}/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("GET /api/threads/{id}/sandbox/status", s.handleSandboxStatus)

	// Models
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// WebSocket
	mux.HandleFunc("/api/threads/{id}/chat", s.handleChatWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting web server", "addr", addr, "llmConfigured", s.llmConfigured)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "status", status, "error", err)
	} else {
		slog.Debug("API Error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

// storeError maps store failures onto a status code.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, err)
}
