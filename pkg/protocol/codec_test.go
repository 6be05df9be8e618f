package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSetsType(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"start", Start{MessageID: "msg_1"}, `{"type":"start","messageId":"msg_1"}`},
		{"start-step", StartStep{}, `{"type":"start-step"}`},
		{"text-delta", TextDelta{ID: "text_1", Delta: "hi"}, `{"type":"text-delta","id":"text_1","delta":"hi"}`},
		{
			"tool-input-available",
			ToolInputAvailable{ToolCallID: "call_1", ToolName: "lookup", Input: json.RawMessage(`{"q":"x"}`)},
			`{"type":"tool-input-available","toolCallId":"call_1","toolName":"lookup","input":{"q":"x"}}`,
		},
		{
			"invalid input",
			ToolInputAvailable{ToolCallID: "call_1", ToolName: "lookup", Input: json.RawMessage(`"{\"q\":"`), Invalid: true},
			`{"type":"tool-input-available","toolCallId":"call_1","toolName":"lookup","input":"{\"q\":","invalid":true}`,
		},
		{
			"checkpoint",
			NewCheckpoint("chk-1", nil),
			`{"type":"data-checkpoint","transient":true,"checkpoint":{"id":"chk-1","parent":null}}`,
		},
		{
			"custom data",
			Data{Type: "custom-checkpoint", Data: json.RawMessage(`{"checkpoint_id":"c"}`)},
			`{"type":"custom-checkpoint","data":{"checkpoint_id":"c"}}`,
		},
		{"error", Error{ErrorText: "boom"}, `{"type":"error","errorText":"boom"}`},
		{"finish", Finish{}, `{"type":"finish"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestUnmarshal(t *testing.T) {
	parent := "chk-0"
	events := []Event{
		Start{MessageID: "msg_1"},
		StartStep{},
		ReasoningStart{ID: "reasoning_1"},
		ReasoningDelta{ID: "reasoning_1", Delta: "hmm"},
		ReasoningEnd{ID: "reasoning_1"},
		ToolInputStart{ToolCallID: "call_1", ToolName: "lookup"},
		ToolInputDelta{ToolCallID: "call_1", InputTextDelta: `{"q":`},
		ToolOutputStart{ToolCallID: "call_1", ID: "output_1"},
		ToolOutputDelta{ToolCallID: "call_1", ID: "output_1", Delta: "42"},
		ToolOutputAvailable{ToolCallID: "call_1", Output: json.RawMessage(`42`)},
		NewCheckpoint("chk-1", &parent),
		FinishStep{},
		Finish{},
	}
	for _, ev := range events {
		b, err := Marshal(ev)
		require.NoError(t, err)
		got, err := Unmarshal(b)
		require.NoError(t, err, string(b))
		assert.Equal(t, ev, got)
	}
}

func TestUnmarshalCustomData(t *testing.T) {
	got, err := Unmarshal([]byte(`{"type":"data-weather","id":"w1","data":{"temp":3}}`))
	require.NoError(t, err)
	d, ok := got.(Data)
	require.True(t, ok)
	assert.Equal(t, "data-weather", d.EventType())
	assert.Equal(t, "w1", d.ID)
	assert.JSONEq(t, `{"temp":3}`, string(d.Data))
}

func TestUnmarshalUnknown(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Unmarshal([]byte(`{"delta":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestJSONOrString(t *testing.T) {
	raw, ok := JSONOrString(`{"r":1}`)
	assert.True(t, ok)
	assert.JSONEq(t, `{"r":1}`, string(raw))

	raw, ok = JSONOrString("plain text")
	assert.False(t, ok)
	assert.Equal(t, `"plain text"`, string(raw))

	raw, ok = JSONOrString("")
	assert.False(t, ok)
	assert.Equal(t, `""`, string(raw))
}

func TestPartMarshalKeepsEmptyText(t *testing.T) {
	b, err := json.Marshal(TextPart(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":""}`, string(b))

	b, err = json.Marshal(ToolPart("call_1", "lookup", json.RawMessage(`{}`)).WithOutput(json.RawMessage(`"ok"`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-lookup","toolCallId":"call_1","toolName":"lookup","state":"output-available","input":{},"output":"ok"}`, string(b))
}
