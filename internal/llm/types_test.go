package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBlock_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		block ContentBlock
		want  string
	}{
		{"text", TextBlock("hi"), `{"type":"text","text":"hi"}`},
		{"empty text", TextBlock(""), `{"type":"text","text":""}`},
		{"tool use", ToolUseBlock("tu_1", "get_labels", nil), `{"type":"tool_use","id":"tu_1","name":"get_labels","input":{}}`},
		{"tool use input", ToolUseBlock("tu_2", "get_message", map[string]any{"message_id": "m1"}), `{"type":"tool_use","id":"tu_2","name":"get_message","input":{"message_id":"m1"}}`},
		{"tool result", ToolResultBlock("tu_1", `{"success":true}`, false), `{"type":"tool_result","tool_use_id":"tu_1","content":"{\"success\":true}"}`},
		{"tool error", ToolResultBlock("tu_1", `{"error":"x"}`, true), `{"type":"tool_result","tool_use_id":"tu_1","content":"{\"error\":\"x\"}","is_error":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.block)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestContentBlock_UnmarshalJSON(t *testing.T) {
	var msg Message
	raw := `{"role":"assistant","content":[
		{"type":"text","text":"Looking."},
		{"type":"tool_use","id":"tu_1","name":"search_messages","input":{"query":"is:unread"}},
		{"type":"tool_use","id":"tu_2","name":"get_labels","input":{}}
	]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, RoleAssistant, msg.Role)
	require.Len(t, msg.Content, 3)
	assert.Equal(t, "Looking.", msg.Content[0].Text)

	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "search_messages", uses[0].Name)
	assert.Equal(t, map[string]any{"query": "is:unread"}, uses[0].Input)
	assert.Equal(t, map[string]any{}, uses[1].Input)
}

func TestContentBlock_UnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"image"}`},
		{"tool use without id", `{"type":"tool_use","name":"x","input":{}}`},
		{"input not object", `{"type":"tool_use","id":"a","name":"x","input":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ContentBlock
			err := json.Unmarshal([]byte(tt.raw), &b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StopEndTurn))
	assert.True(t, IsTerminal(StopSequence))
	assert.False(t, IsTerminal(StopToolUse))
	assert.False(t, IsTerminal(StopMaxTokens))
	assert.False(t, IsTerminal(""))
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{"status and type", &ProviderError{Provider: "anthropic", StatusCode: 429, Type: "rate_limit_error", Message: "slow down"}, "anthropic API error (429, rate_limit_error): slow down"},
		{"status only", &ProviderError{Provider: "vertex", StatusCode: 500, Message: "boom"}, "vertex API error (500): boom"},
		{"stream error", &ProviderError{Provider: "anthropic", Type: "overloaded_error", Message: "Overloaded"}, "anthropic API error (overloaded_error): Overloaded"},
		{"transport", &ProviderError{Provider: "anthropic", Err: cause}, "anthropic request failed: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
	assert.ErrorIs(t, &ProviderError{Provider: "x", Err: cause}, cause)
}
