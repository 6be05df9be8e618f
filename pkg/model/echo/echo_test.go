package echo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/stream"
)

func TestStreamEchoesLastUserMessage(t *testing.T) {
	p := &Provider{}
	s, err := p.Stream(context.Background(), model.Request{Messages: []domain.Message{
		{Role: domain.RoleUser, Content: domain.TextContent("first")},
		{Role: domain.RoleAssistant, Content: domain.TextContent("reply")},
		{Role: "human", Content: domain.TextContent("hello there")},
	}})
	require.NoError(t, err)
	defer s.Close()

	var chunks []stream.Chunk
	for c, err := range s.Chunks() {
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
	require.NotEmpty(t, chunks)

	var sb strings.Builder
	for i, c := range chunks {
		tc, ok := c.(stream.TextChunk)
		require.True(t, ok)
		assert.Equal(t, i == len(chunks)-1, tc.Last)
		sb.WriteString(tc.Text)
	}
	assert.Equal(t, Response("hello there"), strings.TrimSpace(sb.String()))
}

func TestStreamCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New()
	s, err := p.Stream(ctx, model.Request{Messages: []domain.Message{
		{Role: domain.RoleUser, Content: domain.TextContent("hi")},
	}})
	require.NoError(t, err)

	_, err = model.Collect(s.Chunks())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResponseTruncatesPrompt(t *testing.T) {
	long := strings.Repeat("é", 150)
	assert.Contains(t, Response(long), strings.Repeat("é", 100)+"...")
	assert.NotContains(t, Response(long), strings.Repeat("é", 101))
}
