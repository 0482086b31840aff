package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/prompts"
	"github.com/teemow/inboxagent/internal/session"
	"github.com/teemow/inboxagent/internal/tools"
)

// Dependencies are the components served by the HTTP API. Surface and
// Registry are required.
type Dependencies struct {
	Surface  *session.Surface
	Registry *tools.Registry

	// Bridge is nil when the server runs without the page tools.
	Bridge *dom.Bridge

	Prompts *prompts.Store
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// MailAuthorized reports whether a Gmail token is available.
	MailAuthorized func() bool

	// Model names the configured provider and model, e.g. "vertex/claude-opus-4-5".
	Model string
}

// ServerContext holds the shared state of a running server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Dependencies
	events *Broadcaster

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context and installs the event
// broadcaster as the surface's progress sink.
func NewServerContext(ctx context.Context, deps Dependencies) (*ServerContext, error) {
	if deps.Surface == nil {
		return nil, errors.New("execution surface is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
		events: NewBroadcaster(DefaultSubscriberBuffer),
	}
	deps.Surface.SetProgress(sc.events.Publish)
	return sc, nil
}

// Context returns the server context. It is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Surface returns the execution surface.
func (sc *ServerContext) Surface() *session.Surface {
	return sc.deps.Surface
}

// Events returns the progress broadcaster.
func (sc *ServerContext) Events() *Broadcaster {
	return sc.events
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the turn in flight, closes the event streams and
// detaches the webmail page.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.deps.Surface.Cancel()
	sc.events.Close()
	if sc.deps.Bridge != nil {
		sc.deps.Bridge.Close()
	}
	sc.cancel()
	return nil
}
