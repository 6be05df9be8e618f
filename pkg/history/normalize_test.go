package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
)

func text(role domain.Role, s string) domain.Message {
	return domain.Message{Role: role, Content: domain.TextContent(s)}
}

func TestNormalizeEndToEnd(t *testing.T) {
	msgs := []domain.Message{
		text(domain.RoleSystem, "be nice"),
		text(domain.RoleUser, "hi"),
		{
			Role: domain.RoleAssistant,
			ToolCallChunks: []domain.ToolCallChunk{
				{Index: 0, Name: "lookup", Args: `{"q":`},
				{Index: 0, Args: `"x"}`},
			},
		},
		{Role: domain.RoleTool, ToolCallID: "call_2_0", Content: domain.TextContent(`{"r":1}`)},
	}

	got := Normalize(msgs)
	require.Len(t, got, 3)
	assert.Equal(t, protocol.UIMessage{Role: domain.RoleSystem, Parts: []protocol.Part{protocol.TextPart("be nice")}}, got[0])
	assert.Equal(t, protocol.UIMessage{Role: domain.RoleUser, Parts: []protocol.Part{protocol.TextPart("hi")}}, got[1])

	assistant := got[2]
	assert.Equal(t, domain.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Parts, 1)
	tool := assistant.Parts[0]
	assert.Equal(t, "tool-lookup", tool.Type)
	assert.Equal(t, "lookup", tool.ToolName)
	assert.Equal(t, "call_2_0", tool.ToolCallID)
	assert.Equal(t, protocol.StateOutputAvailable, tool.State)
	assert.JSONEq(t, `{"q":"x"}`, string(tool.Input))
	assert.JSONEq(t, `{"r":1}`, string(tool.Output))
}

func TestNormalizeChunkIDs(t *testing.T) {
	msgs := []domain.Message{{
		Role: domain.RoleAssistant,
		ToolCallChunks: []domain.ToolCallChunk{
			{Index: 1, ID: "b", Name: "second", Args: `{}`},
			{Index: 0, Args: `{"late":`},
			{Index: 0, ID: "a", Name: "first", Args: `1}`},
		},
	}}

	parts := Normalize(msgs)[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "b", parts[0].ToolCallID)
	assert.Equal(t, "a", parts[1].ToolCallID)
	assert.Equal(t, "tool-first", parts[1].Type)
	assert.JSONEq(t, `{"late":1}`, string(parts[1].Input))
}

func TestNormalizeMergesAssistantBlock(t *testing.T) {
	msgs := []domain.Message{
		text(domain.RoleUser, "weather?"),
		{
			ID:        "a1",
			Role:      domain.RoleAssistant,
			Content:   domain.TextContent("Checking."),
			ToolCalls: []domain.ToolCall{{ID: "c1", Name: "weather", Args: json.RawMessage(`{"city":"Oslo"}`)}},
		},
		{Role: domain.RoleTool, ToolCallID: "c1", Name: "weather", Content: domain.TextContent("sunny")},
		{ID: "a2", Role: domain.RoleAssistant, Content: domain.TextContent("It is sunny.")},
		text(domain.RoleUser, "thanks"),
	}

	got := Normalize(msgs)
	require.Len(t, got, 3)
	assistant := got[1]
	assert.Equal(t, "a1", assistant.ID)
	require.Len(t, assistant.Parts, 3)
	assert.Equal(t, protocol.TextPart("Checking."), assistant.Parts[0])
	assert.Equal(t, protocol.StateOutputAvailable, assistant.Parts[1].State)
	assert.Equal(t, `"sunny"`, string(assistant.Parts[1].Output))
	assert.Equal(t, protocol.TextPart("It is sunny."), assistant.Parts[2])
	assert.Equal(t, domain.RoleUser, got[2].Role)
}

func TestNormalizeUnmatchedResults(t *testing.T) {
	t.Run("no open assistant", func(t *testing.T) {
		got := Normalize([]domain.Message{
			text(domain.RoleUser, "hi"),
			{ID: "t1", Role: domain.RoleTool, ToolCallID: "ghost", Content: domain.TextContent("boo")},
		})
		require.Len(t, got, 2)
		assert.Equal(t, domain.RoleAssistant, got[1].Role)
		assert.Equal(t, "t1", got[1].ID)
		require.Len(t, got[1].Parts, 1)
		p := got[1].Parts[0]
		assert.Equal(t, protocol.PartToolResult, p.Type)
		assert.Equal(t, "ghost", p.ToolCallID)
		assert.Equal(t, protocol.StateOutputAvailable, p.State)
		assert.Nil(t, p.Input)
	})

	t.Run("appended to open assistant", func(t *testing.T) {
		got := Normalize([]domain.Message{
			{Role: domain.RoleAssistant, Content: domain.TextContent("ok"), ToolCalls: []domain.ToolCall{{ID: "c1", Name: "f"}}},
			{Role: domain.RoleTool, ToolCallID: "c2", Name: "g", Content: domain.TextContent("1")},
		})
		parts := got[0].Parts
		require.Len(t, parts, 3)
		assert.Equal(t, protocol.StateInputAvailable, parts[1].State)
		assert.JSONEq(t, `{}`, string(parts[1].Input))
		assert.Equal(t, "tool-g", parts[2].Type)
		assert.Equal(t, `1`, string(parts[2].Output))
	})
}

func TestNormalizeContentParts(t *testing.T) {
	var user domain.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"role": "human",
		"content": [
			{"type": "text", "text": "what is this?"},
			{"type": "image_url", "image_url": {"url": "https://example.com/a.png"}},
			{"type": "image_url", "image_url": "https://example.com/b.png"},
			"and this"
		]
	}`), &user))

	got := Normalize([]domain.Message{user})
	require.Len(t, got, 1)
	assert.Equal(t, domain.RoleUser, got[0].Role)
	assert.Equal(t, []protocol.Part{
		protocol.TextPart("what is this?"),
		protocol.FilePart("image/*", "https://example.com/a.png"),
		protocol.FilePart("image/*", "https://example.com/b.png"),
		protocol.TextPart("and this"),
	}, got[0].Parts)
}

func TestNormalizeEmptyFallbacks(t *testing.T) {
	got := Normalize([]domain.Message{
		{Role: domain.RoleUser, Content: domain.Content{Parts: []domain.ContentPart{}}},
		{Role: domain.RoleAssistant},
	})
	require.Len(t, got, 2)
	assert.Equal(t, []protocol.Part{protocol.TextPart("")}, got[0].Parts)
	assert.Equal(t, []protocol.Part{protocol.TextPart("")}, got[1].Parts)
}

func TestNormalizeSkipsUnknownRoles(t *testing.T) {
	got := Normalize([]domain.Message{
		text("function", "legacy"),
		text(domain.RoleUser, "hi"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, domain.RoleUser, got[0].Role)
}

func TestNormalizeInvalidArgs(t *testing.T) {
	got := Normalize([]domain.Message{{
		Role:           domain.RoleAssistant,
		ToolCallChunks: []domain.ToolCallChunk{{Index: 0, ID: "c", Name: "f", Args: `{"q":`}},
	}})
	assert.Equal(t, `"{\"q\":"`, string(got[0].Parts[0].Input))
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "f", Args: json.RawMessage(`{}`)}}},
		{Role: domain.RoleTool, ToolCallID: "c1", Content: domain.TextContent("done")},
	}
	before, err := json.Marshal(msgs)
	require.NoError(t, err)

	first := Normalize(msgs)
	second := Normalize(msgs)

	after, err := json.Marshal(msgs)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, first, second)
}

func TestNormalizeIdempotent(t *testing.T) {
	msgs := []domain.Message{
		text(domain.RoleSystem, "be nice"),
		{ID: "u1", Role: domain.RoleUser, Content: domain.Content{Parts: []domain.ContentPart{
			{Type: domain.ContentTypeText, Text: "look"},
			{Type: domain.ContentTypeImageURL, URL: "https://example.com/x.png"},
		}}},
		{
			ID:      "a1",
			Role:    domain.RoleAssistant,
			Content: domain.TextContent("Let me check."),
			ToolCallChunks: []domain.ToolCallChunk{
				{Index: 0, Name: "lookup", Args: `{"q":`},
				{Index: 0, Args: `"x"}`},
				{Index: 1, ID: "c2", Name: "now"},
			},
		},
		{Role: domain.RoleTool, ToolCallID: "call_2_0", Content: domain.TextContent(`{"r":1}`)},
		{Role: domain.RoleTool, ToolCallID: "c2", Content: domain.TextContent("noon")},
		{Role: domain.RoleTool, ToolCallID: "orphan", Name: "ghost", Content: domain.TextContent("boo")},
		{Role: domain.RoleAssistant, Content: domain.TextContent("Found it.")},
		{Role: domain.RoleAssistant, Content: domain.TextContent("Anything else?")},
		text(domain.RoleUser, ""),
		{Role: domain.RoleAssistant},
	}

	once := Normalize(msgs)
	twice := Normalize(ToModelMessages(once))
	assert.Equal(t, once, twice)
}

func TestToModelMessages(t *testing.T) {
	ui := []protocol.UIMessage{
		{Role: domain.RoleUser, Parts: []protocol.Part{protocol.TextPart("hi")}},
		{ID: "m1", Role: domain.RoleAssistant, Parts: []protocol.Part{
			{Type: protocol.PartReasoning, Text: "hmm"},
			protocol.TextPart("Checking."),
			protocol.ToolPart("c1", "lookup", json.RawMessage(`{"q":"x"}`)).WithOutput(json.RawMessage(`"found"`)),
			protocol.TextPart("Done."),
		}},
	}

	got := ToModelMessages(ui)
	require.Len(t, got, 4)
	assert.Equal(t, domain.RoleUser, got[0].Role)
	assert.Equal(t, "hi", got[0].Content.String())

	assert.Equal(t, "m1", got[1].ID)
	assert.Equal(t, domain.RoleAssistant, got[1].Role)
	assert.Equal(t, "Checking.", got[1].Content.String())
	require.Len(t, got[1].ToolCalls, 1)
	assert.Equal(t, "lookup", got[1].ToolCalls[0].Name)

	assert.Equal(t, domain.RoleTool, got[2].Role)
	assert.Equal(t, "c1", got[2].ToolCallID)
	assert.Equal(t, "found", got[2].Content.String())

	assert.Equal(t, "", got[3].ID)
	assert.Equal(t, "Done.", got[3].Content.String())
}
