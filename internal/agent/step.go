package agent

import "time"

// StepType discriminates Step.
type StepType string

const (
	StepUser       StepType = "user"
	StepToolCall   StepType = "tool_call"
	StepToolResult StepType = "tool_result"
	StepResponse   StepType = "response"
)

// ToolCall describes the tool use a tool_call step announces.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Step is one observable unit of progress. Steps are not part of the
// conversation sent to the model.
type Step struct {
	Type      StepType  `json:"type"`
	Content   string    `json:"content"`
	ToolCall  *ToolCall `json:"toolCall,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
	TurnID    string    `json:"turnId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives steps in emission order. It is called on the goroutine
// running the turn and must not block for long.
type Sink func(Step)
