package llm

import (
	"encoding/json"
	"fmt"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Stop reasons reported by the model.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
	StopSequence  = "stop_sequence"
	StopPauseTurn = "pause_turn"
	StopRefusal   = "refusal"
)

// IsTerminal reports whether a stop reason ends the turn even when the
// response carries tool uses.
func IsTerminal(stopReason string) bool {
	switch stopReason {
	case StopEndTurn, StopSequence:
		return true
	}
	return false
}

// ContentBlock is one unit of message content: text, a tool use requested
// by the model, or the result of a tool use.
type ContentBlock struct {
	Type BlockType

	// Text
	Text string

	// ToolUse
	ID    string
	Name  string
	Input map[string]any

	// ToolResult
	ToolUseID string
	Content   string
	IsError   bool
}

// TextBlock returns a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool_use block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns a tool_result block answering toolUseID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

type wireBlock struct {
	Type      BlockType       `json:"type"`
	Text      *string         `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// MarshalJSON writes the Messages API form of the block.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := wireBlock{Type: b.Type}
	switch b.Type {
	case BlockText:
		w.Text = &b.Text
	case BlockToolUse:
		w.ID, w.Name = b.ID, b.Name
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input of %s: %w", b.Name, err)
		}
		w.Input = raw
	case BlockToolResult:
		w.ToolUseID, w.IsError = b.ToolUseID, b.IsError
		raw, err := json.Marshal(b.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	default:
		return nil, fmt.Errorf("unknown content block type %q", b.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the Messages API form. Unknown block types fail with
// a MalformedResponseError.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return &MalformedResponseError{Reason: "invalid content block", Err: err}
	}
	out := ContentBlock{Type: w.Type}
	switch w.Type {
	case BlockText:
		if w.Text != nil {
			out.Text = *w.Text
		}
	case BlockToolUse:
		if w.ID == "" || w.Name == "" {
			return &MalformedResponseError{Reason: "tool_use block without id or name"}
		}
		out.ID, out.Name = w.ID, w.Name
		input, err := decodeInput(w.Input)
		if err != nil {
			return err
		}
		out.Input = input
	case BlockToolResult:
		out.ToolUseID, out.IsError = w.ToolUseID, w.IsError
		if len(w.Content) > 0 {
			var s string
			if err := json.Unmarshal(w.Content, &s); err != nil {
				// Structured content is kept as its JSON text.
				s = string(w.Content)
			}
			out.Content = s
		}
	default:
		return &MalformedResponseError{Reason: fmt.Sprintf("unknown content block type %q", w.Type)}
	}
	*b = out
	return nil
}

// decodeInput parses a complete tool input. Empty input is {}.
func decodeInput(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, &MalformedResponseError{Reason: "tool input is not a JSON object", Err: err}
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// Message is one conversation turn. Messages are appended, never edited.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolUses returns the tool_use blocks of m in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Tool is the model-facing declaration of a tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

// Request is one gateway round-trip.
type Request struct {
	// System overrides the gateway's default system prompt when non-empty.
	System   string
	Messages []Message
	Tools    []Tool
}

// Response is a complete model answer.
type Response struct {
	StopReason string
	Content    []ContentBlock
}
