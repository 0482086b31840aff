package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
)

const (
	DefaultMaxTokens      = 8192
	DefaultVertexModel    = "claude-opus-4-5@20251101"
	DefaultAnthropicModel = "claude-opus-4-5"
	defaultHTTPTimeout    = 5 * time.Minute
	userAgent             = "inboxagent"
)

type wireRequest struct {
	AnthropicVersion string    `json:"anthropic_version,omitempty"`
	Model            string    `json:"model,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []Message `json:"messages"`
	Tools            []Tool    `json:"tools,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
}

type wireResponse struct {
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiErrorBody `json:"error"`
}

// Options configures a Client.
type Options struct {
	Model     string
	MaxTokens int

	// Streaming selects the SSE endpoint. Otherwise the full response is
	// fetched and replayed as events.
	Streaming bool

	// SystemPrompt is used when a Request has none. Empty means
	// DefaultSystemPrompt.
	SystemPrompt string

	// BaseURL overrides the provider host.
	BaseURL string

	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Client is a Gateway backed by a Claude Messages endpoint.
type Client struct {
	ep        endpoint
	http      *http.Client
	maxTokens int
	streaming bool
	system    string
	model     string
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// NewAnthropic returns a Client for the Anthropic API.
func NewAnthropic(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultAnthropicModel
	}
	ep := &anthropicEndpoint{
		baseURL: trimBaseURL(opts.BaseURL, DefaultAnthropicBaseURL),
		apiKey:  apiKey,
		model:   opts.Model,
	}
	return newClient(ep, opts), nil
}

// NewVertex returns a Client for Claude on Vertex AI. tokens supplies
// cloud-platform access tokens.
func NewVertex(projectID, region string, tokens oauth2.TokenSource, opts Options) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("vertex project id is required")
	}
	if tokens == nil {
		return nil, errors.New("vertex token source is required")
	}
	if region == "" {
		region = "global"
	}
	if opts.Model == "" {
		opts.Model = DefaultVertexModel
	}
	ep := &vertexEndpoint{
		baseURL: trimBaseURL(opts.BaseURL, VertexBaseURL(region)),
		project: projectID,
		region:  region,
		model:   opts.Model,
		tokens:  oauth2.ReuseTokenSource(nil, tokens),
	}
	return newClient(ep, opts), nil
}

func newClient(ep endpoint, opts Options) *Client {
	c := &Client{
		ep:        ep,
		http:      opts.HTTPClient,
		maxTokens: opts.MaxTokens,
		streaming: opts.Streaming,
		system:    opts.SystemPrompt,
		model:     opts.Model,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if c.http == nil {
		c.http = NewHTTPClient(defaultHTTPTimeout, opts.Streaming)
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.system == "" {
		c.system = DefaultSystemPrompt
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// NewHTTPClient returns an HTTP client for a gateway. Without streaming,
// timeout bounds the whole exchange. With streaming it bounds the wait for
// the response headers only and the event stream is read for as long as the
// request context allows.
func NewHTTPClient(timeout time.Duration, streaming bool) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if !streaming {
		return &http.Client{Timeout: timeout}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// Provider returns "anthropic" or "vertex".
func (c *Client) Provider() string { return c.ep.provider() }

// Model returns the model id requests are sent to.
func (c *Client) Model() string { return c.model }

// Streaming reports the operating mode.
func (c *Client) Streaming() bool { return c.streaming }

func (c *Client) mode() string {
	if c.streaming {
		return instrumentation.ModeStreaming
	}
	return instrumentation.ModeSingleShot
}

// Converse sends req. The returned Stream must be closed by the caller.
func (c *Client) Converse(ctx context.Context, req Request) (Stream, error) {
	start := time.Now()
	ctx, span := instrumentation.StartModelSpan(ctx, c.ep.provider(), c.model, c.mode())

	stream, err := c.converse(ctx, req)
	if err != nil {
		c.finish(ctx, span, start, err)
		return nil, err
	}
	return &measuredStream{Stream: stream, done: func(err error) { c.finish(ctx, span, start, err) }}, nil
}

func (c *Client) converse(ctx context.Context, req Request) (Stream, error) {
	body := wireRequest{
		MaxTokens: c.maxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
		Stream:    c.streaming,
	}
	if body.System == "" {
		body.System = c.system
	}
	c.ep.prepare(&body)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ep.url(c.streaming), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if c.streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if err := c.ep.authorize(httpReq); err != nil {
		return nil, &ProviderError{Provider: c.ep.provider(), Message: "authentication failed", Err: err}
	}

	c.logger.Debug("sending model request",
		logging.Model(c.model),
		slog.String("provider", c.ep.provider()),
		slog.Int("messages", len(req.Messages)),
		slog.Int("tools", len(req.Tools)),
		slog.Bool("streaming", c.streaming))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ProviderError{Provider: c.ep.provider(), Err: err}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, readAPIError(c.ep.provider(), resp)
	}

	if c.streaming {
		return newSSEStream(ctx, c.ep.provider(), resp.Body), nil
	}

	defer resp.Body.Close()
	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			return nil, malformed
		}
		return nil, &MalformedResponseError{Reason: "undecodable response body", Err: err}
	}
	return NewReplayStream(Response{StopReason: wr.StopReason, Content: wr.Content}), nil
}

func (c *Client) finish(ctx context.Context, span trace.Span, start time.Time, err error) {
	status := instrumentation.StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = instrumentation.StatusCancelled
	default:
		status = instrumentation.StatusError
		c.logger.Warn("model request failed", logging.Model(c.model), logging.Err(err))
	}
	c.metrics.RecordModelRequest(ctx, c.ep.provider(), c.mode(), status, time.Since(start))
	if status == instrumentation.StatusError {
		instrumentation.EndSpan(span, err)
	} else {
		instrumentation.EndSpan(span, nil)
	}
}

func readAPIError(provider string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: resp.Status, Err: err}
	}
	body = bytes.TrimSpace(body)

	var apiErr apiErrorResponse
	if len(body) > 0 && json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Type: apiErr.Error.Type, Message: apiErr.Error.Message}
	}
	// Vertex wraps some failures in a list of Google API errors.
	var googleErrs []struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &googleErrs) == nil && len(googleErrs) > 0 && googleErrs[0].Error.Message != "" {
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Type: googleErrs[0].Error.Status, Message: googleErrs[0].Error.Message}
	}
	msg := string(body)
	if msg == "" {
		msg = resp.Status
	}
	return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
}

// measuredStream reports the outcome of a response once, at its first
// terminal Recv or at Close.
type measuredStream struct {
	Stream
	once sync.Once
	done func(error)
}

func (s *measuredStream) Recv() (Event, error) {
	ev, err := s.Stream.Recv()
	if err == io.EOF {
		s.once.Do(func() { s.done(nil) })
	} else if err != nil {
		s.once.Do(func() { s.done(err) })
	}
	return ev, err
}

func (s *measuredStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() { s.done(context.Canceled) })
	return err
}
