package agent

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/store/sqlite"
	"github.com/nstogner/uistream/pkg/stream"
	"github.com/nstogner/uistream/pkg/tools"
)

// scriptedProvider answers the i-th model call with steps[i].
type scriptedProvider struct {
	steps [][]stream.Chunk
	err   error
	calls []model.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) List(ctx context.Context) ([]domain.Model, error) { return nil, nil }

func (p *scriptedProvider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	i := len(p.calls) - 1
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return &fakeStream{chunks: p.steps[i]}, nil
}

type fakeStream struct {
	chunks []stream.Chunk
}

func (s *fakeStream) Chunks() iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *fakeStream) Close() error { return nil }

func textStep(id string, parts ...string) []stream.Chunk {
	var chunks []stream.Chunk
	for i, p := range parts {
		chunks = append(chunks, stream.TextChunk{MessageID: id, Text: p, Last: i == len(parts)-1})
	}
	return chunks
}

func calcStep(id string) []stream.Chunk {
	return []stream.Chunk{
		stream.ToolCallChunk{MessageID: id, Index: 0, ID: "call-1", Name: "calculate", ArgsFragment: `{"expression":`},
		stream.ToolCallChunk{MessageID: id, Index: 0, ArgsFragment: `"2+2"}`, Last: true},
	}
}

func drain(t *testing.T, seq iter.Seq2[stream.Chunk, error]) ([]stream.Chunk, error) {
	t.Helper()
	var chunks []stream.Chunk
	for c, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestRunTextOnly(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{textStep("m1", "Hello", " world")}}
	a := New(p, WithModel("test-model"))

	chunks, err := drain(t, a.Run(context.Background(), Prompt("", "hi")))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, stream.TextChunk{MessageID: "m1", Text: "Hello"}, chunks[0])
	snap, ok := chunks[2].(stream.StateSnapshot)
	require.True(t, ok)
	assert.Empty(t, snap.ParentConfig)
	assert.NotEmpty(t, snap.Config)

	require.Len(t, p.calls, 1)
	assert.Equal(t, "test-model", p.calls[0].Model)
	assert.Equal(t, DefaultInstructions, p.calls[0].Instructions)
	require.Len(t, p.calls[0].Messages, 1)
	assert.Equal(t, "hi", p.calls[0].Messages[0].Content.String())
}

func TestRunWithTools(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{calcStep("m1"), textStep("m2", "It is 4.")}}
	a := New(p, WithTools(tools.NewRegistry(&tools.CalculateTool{})))

	chunks, err := drain(t, a.Run(context.Background(), Prompt("t1", "what is 2+2?")))
	require.NoError(t, err)
	require.Len(t, chunks, 6)

	result, ok := chunks[2].(stream.ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Equal(t, "calculate", result.Name)
	assert.Equal(t, "4", result.Content)

	first := chunks[3].(stream.StateSnapshot)
	second := chunks[5].(stream.StateSnapshot)
	assert.JSONEq(t, string(first.Config), string(second.ParentConfig))

	require.Len(t, p.calls, 2)
	assert.Len(t, p.calls[0].Tools, 1)
	history := p.calls[1].Messages
	require.Len(t, history, 3)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(history[1].ToolCalls[0].Args))
	assert.Equal(t, domain.RoleTool, history[2].Role)
	assert.Equal(t, "call-1", history[2].ToolCallID)
}

func TestRunToolFailureIsReported(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{
		{stream.ToolCallChunk{MessageID: "m1", ID: "call-1", Name: "missing", ArgsFragment: `{}`, Last: true}},
		textStep("m2", "Sorry."),
	}}
	a := New(p, WithTools(tools.NewRegistry()))

	chunks, err := drain(t, a.Run(context.Background(), Prompt("", "go")))
	require.NoError(t, err)
	result := chunks[1].(stream.ToolResultMessage)
	assert.Contains(t, result.Content, "Error: unknown tool")
}

func TestRunStepLimit(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{calcStep("m")}}
	a := New(p, WithTools(tools.NewRegistry(&tools.CalculateTool{})), WithMaxSteps(2))

	_, err := drain(t, a.Run(context.Background(), Prompt("", "loop")))
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Len(t, p.calls, 2)
}

func TestRunProviderError(t *testing.T) {
	p := &scriptedProvider{err: errors.New("quota exceeded")}
	a := New(p)

	chunks, err := drain(t, a.Run(context.Background(), Prompt("", "hi")))
	assert.Empty(t, chunks)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRunStopsWhenConsumerStops(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{calcStep("m1"), textStep("m2", "done")}}
	a := New(p, WithTools(tools.NewRegistry(&tools.CalculateTool{})))

	for range a.Run(context.Background(), Prompt("", "hi")) {
		break
	}
	assert.Len(t, p.calls, 1)
}

func TestInvoke(t *testing.T) {
	p := &scriptedProvider{steps: [][]stream.Chunk{calcStep("m1"), textStep("m2", "It is ", "4.")}}
	a := New(p, WithTools(tools.NewRegistry(&tools.CalculateTool{})))

	msg, err := a.Invoke(context.Background(), Prompt("", "what is 2+2?"))
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, "It is 4.", msg.Content.String())
	assert.Empty(t, msg.ToolCalls)
}

func TestRunPersistsThread(t *testing.T) {
	s, err := sqlite.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	p := &scriptedProvider{steps: [][]stream.Chunk{calcStep("m1"), textStep("m2", "It is 4.")}}
	a := New(p, WithStore(s), WithModel("test-model"), WithTools(tools.NewRegistry(&tools.CalculateTool{})))

	_, err = drain(t, a.Run(ctx, Prompt("t1", "what is 2+2?")))
	require.NoError(t, err)

	th, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "what is 2+2?", th.Title)
	assert.Equal(t, "test-model", th.Model)

	msgs, err := s.GetMessages(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleTool, domain.RoleAssistant},
		[]domain.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, "test-model", msgs[1].Model)

	cps, err := s.ListCheckpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, 3, cps[0].MessageCount)
	assert.Equal(t, cps[0].ID, cps[1].ParentID)

	// A second run continues the persisted history.
	p.steps = [][]stream.Chunk{textStep("m3", "Yes.")}
	p.calls = nil
	_, err = drain(t, a.Run(ctx, Prompt("t1", "sure?")))
	require.NoError(t, err)
	require.Len(t, p.calls, 1)
	assert.Len(t, p.calls[0].Messages, 5)
}

func TestTitle(t *testing.T) {
	long := "word "
	for range 20 {
		long += "word "
	}
	got := title([]domain.Message{{Role: domain.RoleUser, Content: domain.TextContent(long)}})
	assert.Len(t, []rune(got), 63)
	assert.Equal(t, "", title(nil))
}
