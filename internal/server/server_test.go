package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/agent"
	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/prompts"
	"github.com/teemow/inboxagent/internal/session"
	"github.com/teemow/inboxagent/internal/tools"
)

// scriptRunner answers every prompt with one response step. The prompt
// "block" waits for cancellation and "fail" fails with a provider error.
type scriptRunner struct {
	started chan struct{}
}

func (r *scriptRunner) Run(ctx context.Context, prompt string, history []llm.Message, sink agent.Sink) (agent.Result, error) {
	turnID := instrumentation.TurnIDFromContext(ctx)
	out := append(history, llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(prompt)}})
	sink(agent.Step{Type: agent.StepUser, Content: prompt, TurnID: turnID})

	switch prompt {
	case "block":
		if r.started != nil {
			r.started <- struct{}{}
		}
		<-ctx.Done()
		return agent.Result{TurnID: turnID, History: out, State: agent.StateCancelled, Iterations: 1}, nil
	case "fail":
		return agent.Result{TurnID: turnID, History: out, State: agent.StateFailed, Iterations: 1},
			&llm.ProviderError{Provider: "anthropic", StatusCode: 529, Type: "overloaded_error", Message: "Overloaded"}
	}

	sink(agent.Step{Type: agent.StepResponse, Content: "done: " + prompt, TurnID: turnID})
	out = append(out, llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock("done: " + prompt)}})
	return agent.Result{TurnID: turnID, History: out, State: agent.StateDone, StopReason: llm.StopEndTurn, Iterations: 1}, nil
}

type testEnv struct {
	sc      *ServerContext
	runner  *scriptRunner
	bridge  *dom.Bridge
	prompts *prompts.Store
	srv     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	runner := &scriptRunner{started: make(chan struct{}, 1)}
	bridge := dom.NewBridge(dom.Options{})
	store := prompts.NewStore(filepath.Join(t.TempDir(), "prompts.yaml"))

	sc, err := NewServerContext(context.Background(), Dependencies{
		Surface:        session.New(runner, nil),
		Registry:       tools.New(nil, dom.NewTools(bridge), tools.Options{}),
		Bridge:         bridge,
		Prompts:        store,
		MailAuthorized: func() bool { return false },
		Model:          "anthropic/claude-opus-4-5",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(sc, NewHealthChecker(sc)))
	t.Cleanup(func() {
		_ = sc.Shutdown()
		srv.Close()
	})
	return &testEnv{sc: sc, runner: runner, bridge: bridge, prompts: store, srv: srv}
}
