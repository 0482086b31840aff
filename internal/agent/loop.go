package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/logging"
)

// State is a phase of the turn state machine.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingModel    State = "awaiting_model"
	StateDispatchingTools State = "dispatching_tools"
	StateDone             State = "done"
	StateCancelled        State = "cancelled"
	StateFailed           State = "failed"
)

// ErrMaxIterations is returned when a turn needs more model round-trips than
// the configured limit.
var ErrMaxIterations = errors.New("maximum model round-trips reached")

// cancelledToolResult answers tool uses left unanswered by an interrupted
// turn before the conversation is sent again.
const cancelledToolResult = "tool call was cancelled before it ran"

// Tools is the dispatch surface the loop needs. *tools.Registry implements
// it.
type Tools interface {
	ModelTools() []llm.Tool
	Dispatch(ctx context.Context, name string, args map[string]any) (any, error)
}

// Options configures a Loop.
type Options struct {
	// System overrides the gateway's default system prompt.
	System string

	// MaxIterations bounds model round-trips per turn. Zero is unbounded.
	MaxIterations int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// Now stamps steps. Defaults to time.Now.
	Now func() time.Time
}

// Loop runs turns against one gateway and one tool set. It holds no
// per-turn state and may run turns concurrently.
type Loop struct {
	gateway llm.Gateway
	tools   Tools
	opts    Options
	logger  *slog.Logger
}

// Result is the outcome of a turn. History is always the full conversation
// as accumulated, including for cancelled and failed turns.
type Result struct {
	TurnID     string
	History    []llm.Message
	State      State
	StopReason string
	Iterations int
}

// New creates a Loop.
func New(gateway llm.Gateway, tools Tools, opts Options) *Loop {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{gateway: gateway, tools: tools, opts: opts, logger: logger}
}

// turn carries the mutable state of one Run.
type turn struct {
	*Loop
	id      string
	sink    Sink
	history []llm.Message
	logger  *slog.Logger
}

func (t *turn) emit(s Step) {
	if t.sink == nil {
		return
	}
	s.TurnID = t.id
	s.Timestamp = t.opts.Now()
	t.sink(s)
}

// Run executes one turn: prompt is appended to history as a new user message
// and the model is consulted until it stops asking for tools. history is not
// modified. Cancellation of ctx is not an error: Run returns the history
// accumulated so far with State StateCancelled. Provider and malformed
// response failures end the turn with StateFailed and the error.
func (l *Loop) Run(ctx context.Context, prompt string, history []llm.Message, sink Sink) (Result, error) {
	turnID := instrumentation.TurnIDFromContext(ctx)
	if turnID == "" {
		turnID = uuid.NewString()
		ctx = instrumentation.WithTurnID(ctx, turnID)
	}

	ctx, span := instrumentation.StartTurnSpan(ctx, turnID)
	l.opts.Metrics.IncrementActiveTurns(ctx)

	t := &turn{
		Loop:    l,
		id:      turnID,
		sink:    sink,
		history: sealDangling(history),
		logger:  logging.WithTurn(l.logger, turnID),
	}

	res, err := t.run(ctx, prompt)
	res.TurnID = turnID
	res.History = t.history

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrIterations, res.Iterations),
		attribute.String(instrumentation.SpanAttrOutcome, string(res.State)),
	)
	instrumentation.EndSpan(span, err)
	l.opts.Metrics.DecrementActiveTurns(ctx)
	l.opts.Metrics.RecordTurn(ctx, outcome(res.State))

	t.logger.Info("turn finished",
		slog.String("state", string(res.State)),
		logging.StopReason(res.StopReason),
		slog.Int("iterations", res.Iterations),
		slog.Int("messages", len(res.History)))
	return res, err
}

func outcome(s State) string {
	switch s {
	case StateDone:
		return instrumentation.OutcomeDone
	case StateCancelled:
		return instrumentation.OutcomeCancelled
	default:
		return instrumentation.OutcomeFailed
	}
}

func (t *turn) run(ctx context.Context, prompt string) (Result, error) {
	var res Result

	t.history = appendUserText(t.history, prompt)
	t.emit(Step{Type: StepUser, Content: prompt})

	for {
		if ctx.Err() != nil {
			res.State = StateCancelled
			return res, nil
		}
		if t.opts.MaxIterations > 0 && res.Iterations >= t.opts.MaxIterations {
			res.State = StateFailed
			return res, fmt.Errorf("%w (%d)", ErrMaxIterations, t.opts.MaxIterations)
		}

		res.Iterations++
		resp, err := t.converse(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.State = StateCancelled
				return res, nil
			}
			res.State = StateFailed
			t.logger.Error("model round-trip failed", logging.Err(err))
			return res, err
		}
		res.StopReason = resp.StopReason

		msg := llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
		t.history = append(t.history, msg)

		uses := msg.ToolUses()
		if len(uses) == 0 {
			res.State = StateDone
			return res, nil
		}
		if llm.IsTerminal(resp.StopReason) {
			t.logger.Warn("not dispatching tool uses of a finished response",
				logging.StopReason(resp.StopReason),
				slog.Int("tool_uses", len(uses)))
			res.State = StateDone
			return res, nil
		}

		results := t.dispatch(ctx, uses)
		if len(results) > 0 {
			t.history = append(t.history, llm.Message{Role: llm.RoleUser, Content: results})
		}
		if len(results) < len(uses) {
			res.State = StateCancelled
			return res, nil
		}
	}
}

// converse performs one gateway round-trip, forwarding text deltas as
// response steps. A stream cut short leaves no trace in the history.
func (t *turn) converse(ctx context.Context) (llm.Response, error) {
	stream, err := t.gateway.Converse(ctx, llm.Request{
		System:   t.opts.System,
		Messages: t.history,
		Tools:    t.tools.ModelTools(),
	})
	if err != nil {
		return llm.Response{}, err
	}
	defer stream.Close()

	return llm.Collect(stream, func(text string) {
		t.emit(Step{Type: StepResponse, Content: text})
	})
}

// dispatch runs uses in order and returns one ToolResult per use attempted.
// It stops before the next use once ctx is cancelled.
func (t *turn) dispatch(ctx context.Context, uses []llm.ContentBlock) []llm.ContentBlock {
	results := make([]llm.ContentBlock, 0, len(uses))
	for _, use := range uses {
		if ctx.Err() != nil {
			t.logger.Info("turn cancelled between tool dispatches",
				slog.Int("dispatched", len(results)),
				slog.Int("requested", len(uses)))
			break
		}

		t.emit(Step{
			Type:     StepToolCall,
			Content:  "Calling " + use.Name,
			ToolCall: &ToolCall{ID: use.ID, Name: use.Name, Input: use.Input},
		})

		value, err := t.tools.Dispatch(instrumentation.WithToolUseID(ctx, use.ID), use.Name, use.Input)
		content, text, isError := encodeResult(value, err)
		if isError {
			t.logger.Info("tool returned an error",
				logging.Tool(use.Name),
				logging.ToolUseID(use.ID),
				slog.String(logging.KeyError, text))
		}

		t.emit(Step{Type: StepToolResult, Content: text, IsError: isError})
		results = append(results, llm.ToolResultBlock(use.ID, content, isError))
	}
	return results
}

type errorPayload struct {
	Error string `json:"error"`
}

// encodeResult returns the ToolResult content (compact JSON), the step text
// (indented JSON or "Error: <message>") and the error flag.
func encodeResult(value any, err error) (content, text string, isError bool) {
	if err == nil {
		compact, mErr := json.Marshal(value)
		if mErr != nil {
			err = fmt.Errorf("failed to encode tool result: %w", mErr)
		} else {
			pretty, _ := json.MarshalIndent(value, "", "  ")
			return string(compact), string(pretty), false
		}
	}
	raw, _ := json.Marshal(errorPayload{Error: err.Error()})
	return string(raw), "Error: " + err.Error(), true
}

// sealDangling returns a copy of history. When the last assistant message has
// tool uses without results, as left by a cancelled or terminal-stopped turn,
// they are answered with error results in the user message that follows it.
func sealDangling(history []llm.Message) []llm.Message {
	out := make([]llm.Message, len(history), len(history)+1)
	copy(out, history)

	last := -1
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == llm.RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 {
		return out
	}

	answered := map[string]bool{}
	for _, m := range out[last+1:] {
		for _, b := range m.Content {
			if b.Type == llm.BlockToolResult {
				answered[b.ToolUseID] = true
			}
		}
	}

	var missing []llm.ContentBlock
	for _, use := range out[last].ToolUses() {
		if !answered[use.ID] {
			raw, _ := json.Marshal(errorPayload{Error: cancelledToolResult})
			missing = append(missing, llm.ToolResultBlock(use.ID, string(raw), true))
		}
	}
	switch {
	case len(missing) == 0:
	case last == len(out)-1:
		out = append(out, llm.Message{Role: llm.RoleUser, Content: missing})
	default:
		next := &out[last+1]
		next.Content = append(slices.Clone(next.Content), missing...)
	}
	return out
}

// appendUserText adds text to history as user content. A trailing user
// message is extended rather than followed by a second one, so roles keep
// alternating. history must be owned by the caller.
func appendUserText(history []llm.Message, text string) []llm.Message {
	block := llm.TextBlock(text)
	if n := len(history); n > 0 && history[n-1].Role == llm.RoleUser {
		history[n-1].Content = append(slices.Clone(history[n-1].Content), block)
		return history
	}
	return append(history, llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{block}})
}
