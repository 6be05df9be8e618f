package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
	"github.com/nstogner/uistream/pkg/transport"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConvert(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"m1","tool_call_chunks":[{"index":0,"id":"c1","name":"calculate","args":"{\"expression\":"}]}`,
		`{"id":"m1","tool_call_chunks":[{"index":0,"args":"\"2+2\"}"}],"chunk_position":"last"}`,
		`not json`,
		`{"type":"tool","tool_call_id":"c1","name":"calculate","content":"4"}`,
		`{"config":{"configurable":{"thread_id":"t1","checkpoint_id":"cp1"}}}`,
		`{"id":"m2","content":"It is 4."}`,
		`{"id":"m2","content":"","chunk_position":"last"}`,
	}, "\n")

	out, err := execute(t, input, "convert", "--chunk-size", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))

	asm := protocol.NewAssembler()
	var types []string
	for ev, err := range transport.NewReader(strings.NewReader(out)).Events() {
		require.NoError(t, err)
		types = append(types, ev.EventType())
		require.NoError(t, asm.Apply(ev))
	}
	assert.True(t, asm.Finished())
	assert.Empty(t, asm.Err())
	assert.Equal(t, 2, asm.Steps())
	assert.Equal(t, 1, strings.Count(strings.Join(types, ","), protocol.TypeToolOutputStart))

	msg := asm.Message()
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "tool-calculate", msg.Parts[0].Type)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(msg.Parts[0].Input))
	assert.Equal(t, "It is 4.", msg.Parts[1].Text)

	require.Len(t, asm.Checkpoints(), 1)
}

func TestNormalize(t *testing.T) {
	input := `[
		{"role":"user","content":"what is 2+2?"},
		{"id":"a1","role":"assistant","content":"","tool_calls":[{"id":"c1","name":"calculate","args":{"expression":"2+2"}}]},
		{"role":"tool","tool_call_id":"c1","name":"calculate","content":"4"},
		{"id":"a2","role":"assistant","content":"It is 4."}
	]`

	out, err := execute(t, input, "normalize")
	require.NoError(t, err)

	msgs := gjson.Parse(out).Array()
	require.Len(t, msgs, 2)
	assert.Equal(t, string(domain.RoleUser), msgs[0].Get("role").String())
	assert.Equal(t, "what is 2+2?", msgs[0].Get("parts.0.text").String())

	parts := msgs[1].Get("parts").Array()
	require.Len(t, parts, 2)
	assert.Equal(t, "tool-calculate", parts[0].Get("type").String())
	assert.Equal(t, protocol.StateOutputAvailable, parts[0].Get("state").String())
	assert.Equal(t, int64(4), parts[0].Get("output").Int())
	assert.Equal(t, "It is 4.", parts[1].Get("text").String())
}

func TestNormalizeInvalidInput(t *testing.T) {
	_, err := execute(t, `{"role":"user"}`, "normalize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding messages")
}

func TestConfigFlagMissingFile(t *testing.T) {
	_, err := execute(t, "[]", "--config", "nope.yaml", "normalize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}
