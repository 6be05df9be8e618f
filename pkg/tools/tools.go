// Package tools holds the tools an agent can call.
package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Input is the invocation context of a tool call.
type Input struct {
	// ThreadID is the conversation the call belongs to.
	ThreadID string
	// Args is the JSON object of call arguments.
	Args json.RawMessage
}

// Get returns the named argument.
func (in Input) Get(name string) gjson.Result {
	return gjson.GetBytes(in.Args, name)
}

// String returns a required string argument.
func (in Input) String(name string) (string, error) {
	v := in.Get(name)
	if v.Type != gjson.String || v.Str == "" {
		return "", fmt.Errorf("argument '%s' is required and must be a string", name)
	}
	return v.Str, nil
}

// Tool defines the interface that all agent tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() []model.Parameter
	// Execute runs the tool and returns the text reported to the model.
	Execute(ctx context.Context, in Input) (string, error)
}

// Registry manages the available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	slices.SortFunc(list, func(a, b Tool) int { return cmp.Compare(a.Name(), b.Name()) })
	return list
}

// Specs declares the registered tools to a model.
func (r *Registry) Specs() []model.ToolSpec {
	var specs []model.ToolSpec
	for _, t := range r.List() {
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// Execute routes a tool call to the named tool.
func (r *Registry) Execute(ctx context.Context, threadID string, tc domain.ToolCall) (string, error) {
	t, ok := r.Get(tc.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, tc.Name)
	}
	args := tc.Args
	if len(args) == 0 || !gjson.ValidBytes(args) {
		args = json.RawMessage(`{}`)
	}
	return t.Execute(ctx, Input{ThreadID: threadID, Args: args})
}
