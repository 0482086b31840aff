package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/inboxagent/internal/agent"
	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/google"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/prompts"
	"github.com/teemow/inboxagent/internal/session"
	"github.com/teemow/inboxagent/internal/tools"
)

// appOptions selects the parts a command needs.
type appOptions struct {
	// model builds the gateway, the loop and the execution surface.
	model bool

	// telemetry starts the OpenTelemetry provider.
	telemetry bool
}

// app holds the components wired from the loaded config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	provider *instrumentation.Provider
	oauth    *google.OAuth
	mail     *gmail.Client
	bridge   *dom.Bridge
	registry *tools.Registry
	prompts  *prompts.Store

	gateway *llm.Client
	loop    *agent.Loop
	surface *session.Surface
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: &instrumentation.Provider{},
		oauth:    google.NewOAuth(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.TokenFile),
		prompts:  prompts.NewStore(cfg.Prompts.File),
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if opts.telemetry {
		provider, err := instrumentation.NewProvider(ctx, instrConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
		}
		a.provider = provider
	}
	metrics := a.provider.Metrics()

	a.mail = a.newMailClient(ctx)

	a.bridge = dom.NewBridge(dom.Options{
		Timeout:        cfg.DOM.Timeout,
		AllowedOrigins: cfg.DOM.AllowedOrigins,
		Logger:         logging.NewSlogAdapter(logger.With(logging.Operation("dom_bridge"))),
		OnConnectionChange: func(connected bool) {
			metrics.SetBridgeConnected(context.Background(), connected)
		},
	})

	var mailbox tools.Mailbox
	if a.mail != nil {
		mailbox = a.mail
	}
	a.registry = tools.New(mailbox, dom.NewTools(a.bridge), tools.Options{
		Metrics:           metrics,
		Audit:             instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
		Logger:            logger,
		DefaultMaxResults: cfg.Gmail.MaxResults,
	})

	if !opts.model {
		return a, nil
	}

	gateway, err := newGateway(ctx, cfg, metrics, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.gateway = gateway
	a.loop = agent.New(gateway, a.registry, agent.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		Metrics:       metrics,
		Logger:        logger,
	})
	a.surface = session.New(a.loop, logger)
	return a, nil
}

// newMailClient returns nil when no token is stored or the client cannot be
// built. The mail tools then report that Gmail is not authorized.
func (a *app) newMailClient(ctx context.Context) *gmail.Client {
	if !a.oauth.HasToken() {
		a.logger.Info("gmail token not found, mail tools disabled", "token_file", a.oauth.TokenFile())
		return nil
	}
	httpClient, err := a.oauth.HTTPClient(ctx)
	if err != nil {
		a.logger.Warn("failed to load gmail token, mail tools disabled", logging.Err(err))
		return nil
	}
	client, err := gmail.NewClient(ctx, httpClient)
	if err != nil {
		a.logger.Warn("failed to create gmail client, mail tools disabled", logging.Err(err))
		return nil
	}
	return client
}

// newGateway builds the model gateway for the configured provider.
func newGateway(ctx context.Context, cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*llm.Client, error) {
	if err := cfg.RequireModelCredentials(); err != nil {
		return nil, err
	}
	opts := llm.Options{
		Model:        cfg.Model.Model,
		MaxTokens:    cfg.Model.MaxTokens,
		Streaming:    cfg.Model.Streaming,
		SystemPrompt: cfg.Model.SystemPrompt,
		BaseURL:      cfg.Model.BaseURL,
		HTTPClient:   llm.NewHTTPClient(cfg.Model.RequestTimeout, cfg.Model.Streaming),
		Metrics:      metrics,
		Logger:       logger,
	}

	switch cfg.Model.Provider {
	case config.ProviderVertex:
		tokens, err := google.CloudTokenSource(ctx, cfg.Model.Vertex.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return llm.NewVertex(cfg.Model.Vertex.ProjectID, cfg.Model.Vertex.Region, tokens, opts)
	default:
		return llm.NewAnthropic(cfg.Model.APIKey, opts)
	}
}

func (a *app) mailAuthorized() bool {
	return a.mail != nil
}

func (a *app) modelName() string {
	if a.gateway == nil {
		return ""
	}
	return a.gateway.Provider() + "/" + a.gateway.Model()
}

// serveBridge serves the DOM bridge socket alone on addr, for the commands
// that do not run the full API. The returned function stops it.
func (a *app) serveBridge(addr string) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the webmail page: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /dom/ws", a.bridge)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("dom bridge server stopped", logging.Err(err))
		}
	}()
	a.logger.Info("waiting for the webmail page", "url", "ws://"+ln.Addr().String()+"/dom/ws")

	return func(ctx context.Context) error {
		a.bridge.Close()
		return srv.Shutdown(ctx)
	}, nil
}

// close flushes telemetry. It is safe on a partially built app.
func (a *app) close(ctx context.Context) {
	if a.bridge != nil {
		a.bridge.Close()
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}
