package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/sandbox"
)

type fakeSandbox struct {
	threadID, code string
	result         *sandbox.Result
	err            error
}

func (f *fakeSandbox) RunCell(ctx context.Context, threadID, code string) (*sandbox.Result, error) {
	f.threadID, f.code = threadID, code
	return f.result, f.err
}
func (f *fakeSandbox) Status(ctx context.Context, threadID string) (string, error) {
	return "running", nil
}
func (f *fakeSandbox) Stop(ctx context.Context, threadID string) error { return nil }
func (f *fakeSandbox) Close() error                                    { return nil }

func call(name, args string) domain.ToolCall {
	return domain.ToolCall{ID: "c1", Name: name, Args: json.RawMessage(args)}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&RunPythonTool{}, &CalculateTool{}, &CurrentTimeTool{})

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"calculate", "current_time", "run_python"}, names)

	specs := r.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "expression", specs[0].Parameters[0].Name)
	assert.True(t, specs[0].Parameters[0].Required)

	_, err := r.Execute(context.Background(), "t1", call("nope", `{}`))
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestCalculate(t *testing.T) {
	r := NewRegistry(&CalculateTool{})
	tests := []struct {
		args    string
		want    string
		wantErr bool
	}{
		{args: `{"expression":"9*9"}`, want: "81"},
		{args: `{"expression":"(2 + 3) * sqrt(16)"}`, want: "20"},
		{args: `{"expression":"10 / 4"}`, want: "2.5"},
		{args: `{"expression":"max(3, 7) - abs(-2)"}`, want: "5"},
		{args: `{"expression":"1 +"}`, wantErr: true},
		{args: `{"expression":"'text'"}`, wantErr: true},
		{args: `{}`, wantErr: true},
		{args: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := r.Execute(context.Background(), "t1", call("calculate", tt.args))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tool := &CurrentTimeTool{Now: func() time.Time { return fixed }}

	got, err := tool.Execute(context.Background(), Input{Args: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", got)

	got, err = tool.Execute(context.Background(), Input{Args: json.RawMessage(`{"timezone":"Asia/Tokyo"}`)})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T21:00:00+09:00", got)

	_, err = tool.Execute(context.Background(), Input{Args: json.RawMessage(`{"timezone":"Mars/Olympus"}`)})
	assert.Error(t, err)
}

func TestRunPython(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: "hi"}}
	r := NewRegistry(&RunPythonTool{Sandbox: sb})

	got, err := r.Execute(context.Background(), "thread-1", call("run_python", `{"code":"print('hi')"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.Equal(t, "thread-1", sb.threadID)
	assert.Equal(t, "print('hi')", sb.code)

	sb.err = errors.New("container gone")
	_, err = r.Execute(context.Background(), "thread-1", call("run_python", `{"code":"1"}`))
	assert.ErrorContains(t, err, "container gone")

	_, err = (&RunPythonTool{}).Execute(context.Background(), Input{Args: json.RawMessage(`{"code":"1"}`)})
	assert.ErrorIs(t, err, sandbox.ErrUnavailable)
}
