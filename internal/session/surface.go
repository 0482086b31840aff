package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/teemow/inboxagent/internal/agent"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/logging"
)

// Runner runs one turn. *agent.Loop implements it.
type Runner interface {
	Run(ctx context.Context, prompt string, history []llm.Message, sink agent.Sink) (agent.Result, error)
}

type execution struct {
	id     string
	cancel context.CancelFunc
	// done is closed once the turn has stored its history.
	done chan struct{}
	// gen is the conversation generation the turn started from.
	gen uint64
}

// Surface owns the current execution slot. The zero value is not usable;
// create one with New.
type Surface struct {
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	current  *execution
	last     *execution
	history  []llm.Message
	gen      uint64
	progress agent.Sink
}

// New returns a Surface running turns with runner.
func New(runner Runner, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Surface{runner: runner, logger: logger}
}

// SetProgress installs the sink that receives the steps of the current
// turn. nil discards steps.
func (s *Surface) SetProgress(sink agent.Sink) {
	s.mu.Lock()
	s.progress = sink
	s.mu.Unlock()
}

// StartTurn cancels the turn in flight, if any, waits for it to return and
// runs prompt on top of history. It blocks until the turn ends; every step of
// the turn has been delivered to the progress sink when it returns. The
// history of every finished turn, superseded ones included, becomes the
// stored conversation unless Reset was called since the turn started.
func (s *Surface) StartTurn(ctx context.Context, prompt string, history []llm.Message) (agent.Result, error) {
	return s.start(ctx, prompt, history, false)
}

// Continue starts a turn on top of the stored conversation. The conversation
// is read once the superseded turn, if any, has stored its own.
func (s *Surface) Continue(ctx context.Context, prompt string) (agent.Result, error) {
	return s.start(ctx, prompt, nil, true)
}

func (s *Surface) start(ctx context.Context, prompt string, history []llm.Message, continued bool) (agent.Result, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := &execution{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.last
	inFlight := prev != nil && s.current == prev
	s.last = exec
	s.current = exec
	s.mu.Unlock()

	if prev != nil {
		if inFlight {
			s.logger.Info("cancelling turn in flight", slog.String("superseded_by", exec.id), logging.Operation("start_turn"), slog.String(logging.KeyTurnID, prev.id))
		}
		prev.cancel()
		<-prev.done
	}

	s.mu.Lock()
	exec.gen = s.gen
	if continued {
		history = slices.Clone(s.history)
	}
	s.mu.Unlock()

	var (
		res agent.Result
		err error
	)
	if turnCtx.Err() != nil {
		// Superseded or reset while waiting: the turn never ran.
		res = agent.Result{TurnID: exec.id, History: history, State: agent.StateCancelled}
		s.finish(exec, res, false)
		return res, nil
	}

	turnCtx = instrumentation.WithTurnID(turnCtx, exec.id)
	res, err = s.runner.Run(turnCtx, prompt, history, func(step agent.Step) {
		s.deliver(exec, step)
	})
	s.finish(exec, res, true)
	return res, err
}

// finish releases the slot held by exec and, when store is set, records its
// history. The next turn is released afterwards.
func (s *Surface) finish(exec *execution, res agent.Result, store bool) {
	s.mu.Lock()
	if s.current == exec {
		s.current = nil
	}
	if store && exec.gen == s.gen {
		s.history = res.History
	}
	s.mu.Unlock()
	close(exec.done)
}

func (s *Surface) deliver(exec *execution, step agent.Step) {
	s.mu.Lock()
	sink := s.progress
	current := s.current == exec
	s.mu.Unlock()
	if current && sink != nil {
		sink(step)
	}
}

// Cancel cancels the turn in flight. It reports whether there was one.
func (s *Surface) Cancel() bool {
	s.mu.Lock()
	exec := s.current
	s.mu.Unlock()
	if exec == nil {
		return false
	}
	exec.cancel()
	return true
}

// Running reports whether a turn is in flight.
func (s *Surface) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// CurrentTurn returns the id of the turn in flight, or "".
func (s *Surface) CurrentTurn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.id
}

// History returns a copy of the stored conversation.
func (s *Surface) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Reset cancels the turn in flight and forgets the conversation.
func (s *Surface) Reset() {
	s.mu.Lock()
	exec := s.current
	s.current = nil
	s.history = nil
	s.gen++
	s.mu.Unlock()
	if exec != nil {
		exec.cancel()
	}
}
