// Package agent runs the generation pipeline of a thread: the model is called,
// requested tools are executed and the model is called again with their
// results until it answers without tool calls.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/store"
	"github.com/nstogner/uistream/pkg/stream"
	"github.com/nstogner/uistream/pkg/tools"
)

// ErrStepLimit is returned when the model keeps requesting tools past the
// configured number of steps.
var ErrStepLimit = errors.New("step limit reached")

// DefaultInstructions are used when neither the thread nor the agent sets any.
const DefaultInstructions = "You are a helpful AI assistant. Use the available tools when needed to answer questions."

const defaultMaxSteps = 8

// Store persists threads, their messages and checkpoints.
type Store interface {
	store.ThreadStore
	store.MessageStore
	store.CheckpointStore
}

// Agent runs generation pipelines. It is safe for concurrent use.
type Agent struct {
	provider     model.Provider
	tools        *tools.Registry
	store        Store
	model        string
	instructions string
	maxSteps     int
}

// Option configures an Agent.
type Option func(*Agent)

// WithTools makes the registry's tools available to the model.
func WithTools(r *tools.Registry) Option {
	return func(a *Agent) { a.tools = r }
}

// WithStore persists the history and checkpoints of threads. Without a
// store, runs only see the messages of their request.
func WithStore(s Store) Option {
	return func(a *Agent) { a.store = s }
}

// WithModel sets the model used when a thread does not name one.
func WithModel(id string) Option {
	return func(a *Agent) { a.model = id }
}

func WithInstructions(s string) Option {
	return func(a *Agent) { a.instructions = s }
}

// WithMaxSteps bounds the number of model calls per run.
func WithMaxSteps(n int) Option {
	return func(a *Agent) { a.maxSteps = n }
}

// New creates an Agent generating with the given provider.
func New(provider model.Provider, opts ...Option) *Agent {
	a := &Agent{
		provider:     provider,
		instructions: DefaultInstructions,
		maxSteps:     defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Request is one run of the pipeline.
type Request struct {
	// ThreadID selects the persisted thread to continue. A missing thread is
	// created. Ignored without a store.
	ThreadID string
	// Messages are appended to the thread before the model is called.
	Messages []domain.Message
}

// Prompt builds a request holding a single user message.
func Prompt(threadID, text string) Request {
	return Request{
		ThreadID: threadID,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: domain.TextContent(text)}},
	}
}

// run is the state of one Run call.
type run struct {
	*Agent
	threadID     string
	model        string
	instructions string
	history      []domain.Message
	// parent is the config of the previous snapshot of this run when no
	// store is configured.
	parent []byte
}

// Run executes the pipeline and yields its chunks: the model's chunks of
// every step, a ToolResultMessage per executed call and a StateSnapshot after
// every step. A failure is yielded as the final error.
func (a *Agent) Run(ctx context.Context, req Request) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		r, err := a.prepare(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for range r.maxSteps {
			more, err := r.step(ctx, yield)
			if err != nil {
				if !errors.Is(err, errStopped) {
					yield(nil, err)
				}
				return
			}
			if !more {
				return
			}
		}
		yield(nil, fmt.Errorf("%w: %d", ErrStepLimit, r.maxSteps))
	}
}

// Invoke runs the pipeline and returns the final assistant message.
func (a *Agent) Invoke(ctx context.Context, req Request) (domain.Message, error) {
	var (
		acc model.Accumulator
		cur string
	)
	for c, err := range a.Run(ctx, req) {
		if err != nil {
			return domain.Message{}, err
		}
		if id := messageID(c); id != "" && id != cur {
			acc, cur = model.Accumulator{}, id
		}
		acc.Add(c)
	}
	return acc.Message(), nil
}

func messageID(c stream.Chunk) string {
	switch c := c.(type) {
	case stream.TextChunk:
		return c.MessageID
	case stream.ReasoningChunk:
		return c.MessageID
	case stream.ToolCallChunk:
		return c.MessageID
	}
	return ""
}

// prepare loads the thread and appends the request's messages to it.
func (a *Agent) prepare(ctx context.Context, req Request) (*run, error) {
	r := &run{
		Agent:        a,
		threadID:     req.ThreadID,
		model:        a.model,
		instructions: a.instructions,
	}
	if r.threadID == "" {
		r.threadID = uuid.NewString()
	}

	if a.store == nil {
		r.history = append(r.history, req.Messages...)
		return r, nil
	}

	th, err := a.store.GetThread(ctx, r.threadID)
	if errors.Is(err, store.ErrNotFound) {
		th = &domain.Thread{ID: r.threadID, Title: title(req.Messages), Model: a.model}
		if err := a.store.CreateThread(ctx, th); err != nil {
			return nil, fmt.Errorf("creating thread: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("loading thread: %w", err)
	}
	if th.Model != "" {
		r.model = th.Model
	}
	if th.Instructions != "" {
		r.instructions = th.Instructions
	}

	for _, msg := range req.Messages {
		msg.ID = ""
		msg.ThreadID = r.threadID
		if err := a.store.AppendMessage(ctx, &msg); err != nil {
			return nil, fmt.Errorf("appending message: %w", err)
		}
	}
	if r.history, err = a.store.GetMessages(ctx, r.threadID, 0); err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return r, nil
}

// title derives a thread title from the first user message.
func title(msgs []domain.Message) string {
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		s := strings.Join(strings.Fields(m.Content.String()), " ")
		if r := []rune(s); len(r) > 60 {
			s = string(r[:60]) + "..."
		}
		return s
	}
	return ""
}

// step calls the model once and executes the tools it requests. It reports
// whether another step is needed.
func (r *run) step(ctx context.Context, yield func(stream.Chunk, error) bool) (bool, error) {
	req := model.Request{
		Model:        r.model,
		Instructions: r.instructions,
		Messages:     r.history,
	}
	if r.tools != nil {
		req.Tools = r.tools.Specs()
	}

	ms, err := r.provider.Stream(ctx, req)
	if err != nil {
		return false, fmt.Errorf("streaming model: %w", err)
	}

	var acc model.Accumulator
	for c, err := range ms.Chunks() {
		if err != nil {
			ms.Close()
			return false, fmt.Errorf("model stream: %w", err)
		}
		acc.Add(c)
		if !yield(c, nil) {
			ms.Close()
			return false, errStopped
		}
	}
	if err := ms.Close(); err != nil {
		slog.Warn("Closing model stream", "threadID", r.threadID, "error", err)
	}

	msg := acc.Message()
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call-" + uuid.NewString()
		}
	}
	msg.Model = r.model
	if err := r.appendMessage(ctx, &msg); err != nil {
		return false, err
	}

	for _, tc := range msg.ToolCalls {
		result := r.execute(ctx, tc)
		if err := r.appendMessage(ctx, &result); err != nil {
			return false, err
		}
		if !yield(stream.ToolResultMessage{
			ID:         result.ID,
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    result.Content.String(),
		}, nil) {
			return false, errStopped
		}
	}

	snap, err := r.checkpoint(ctx)
	if err != nil {
		return false, err
	}
	if !yield(snap, nil) {
		return false, errStopped
	}
	return len(msg.ToolCalls) > 0, nil
}

// errStopped ends a run whose consumer stopped ranging. It is never yielded.
var errStopped = errors.New("consumer stopped")

// execute runs one tool call. Failures are reported to the model as the
// call's result.
func (r *run) execute(ctx context.Context, tc domain.ToolCall) domain.Message {
	result := domain.Message{
		ID:         uuid.NewString(),
		Role:       domain.RoleTool,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}
	if r.tools == nil {
		result.Content = domain.TextContent(fmt.Sprintf("Error: %v: %s", tools.ErrUnknownTool, tc.Name))
		return result
	}
	slog.Info("Executing tool", "threadID", r.threadID, "tool", tc.Name, "toolCallID", tc.ID)
	out, err := r.tools.Execute(ctx, r.threadID, tc)
	if err != nil {
		slog.Warn("Tool failed", "threadID", r.threadID, "tool", tc.Name, "error", err)
		out = fmt.Sprintf("Error: %v", err)
	}
	result.Content = domain.TextContent(out)
	return result
}

func (r *run) appendMessage(ctx context.Context, msg *domain.Message) error {
	msg.ThreadID = r.threadID
	if r.store != nil {
		if err := r.store.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("appending %s message: %w", msg.Role, err)
		}
	}
	r.history = append(r.history, *msg)
	return nil
}

// checkpoint snapshots the history after a step.
func (r *run) checkpoint(ctx context.Context) (stream.StateSnapshot, error) {
	if r.store == nil {
		cfg := store.CheckpointConfig(r.threadID, uuid.NewString())
		snap := stream.StateSnapshot{Config: cfg, ParentConfig: r.parent}
		r.parent = cfg
		return snap, nil
	}
	cp, err := r.store.SaveCheckpoint(ctx, r.threadID, len(r.history))
	if err != nil {
		return stream.StateSnapshot{}, fmt.Errorf("saving checkpoint: %w", err)
	}
	snap := stream.StateSnapshot{Config: cp.Config}
	if cp.ParentID != "" {
		snap.ParentConfig = store.CheckpointConfig(r.threadID, cp.ParentID)
	}
	return snap, nil
}
