package gemini_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/model/gemini"
)

const testModel = "gemini-2.5-flash"

func setupProvider(t *testing.T) *gemini.Provider {
	t.Helper()
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, err := gemini.New(ctx, apiKey)
	require.NoError(t, err)
	return provider
}

func TestIntegrationGeminiListModels(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := p.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, "gemini", m.Provider)
	}
}

func TestIntegrationGeminiStreamBasic(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := p.Stream(ctx, model.Request{
		Model:        testModel,
		Instructions: "You are a helpful assistant named TestBot.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: domain.TextContent("Reply with exactly: HELLO")},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	msg, err := model.Collect(s.Chunks())
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(msg.Content.String()), "HELLO")
}

func TestIntegrationGeminiStreamToolCall(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := p.Stream(ctx, model.Request{
		Model:        testModel,
		Instructions: "Use the calculate tool when asked to calculate.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: domain.TextContent("Please calculate 9*9.")},
		},
		Tools: []model.ToolSpec{{
			Name:        "calculate",
			Description: "Evaluate an arithmetic expression.",
			Parameters:  []model.Parameter{{Name: "expression", Type: "string", Required: true}},
		}},
	})
	require.NoError(t, err)
	defer s.Close()

	msg, err := model.Collect(s.Chunks())
	require.NoError(t, err)
	require.NotEmpty(t, msg.ToolCalls, "expected a tool call, got text %q", msg.Content.String())
	assert.Equal(t, "calculate", msg.ToolCalls[0].Name)
}
