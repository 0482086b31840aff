package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/llm"
)

// Backends a tool can be bound to.
const (
	BackendMail = "mail"
	BackendPage = "page"
)

var (
	// ErrUnknownTool is returned by Dispatch for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments wraps every argument validation failure.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrMailUnavailable is returned by mail tools when no Gmail client is
	// configured.
	ErrMailUnavailable = errors.New("gmail is not authorized, run 'inboxagent auth login'")
)

// Mailbox is the Gmail API surface used by the mail tools. *gmail.Client
// implements it.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int) ([]gmail.Message, error)
	GetMessage(ctx context.Context, id string) (gmail.Message, error)
	GetThread(ctx context.Context, id string) ([]gmail.Message, error)
	Send(ctx context.Context, msg gmail.Outgoing) (string, error)
	CreateDraft(ctx context.Context, msg gmail.Outgoing) (string, error)
	Archive(ctx context.Context, id string) error
	Trash(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	AddLabel(ctx context.Context, id, labelID string) error
	RemoveLabel(ctx context.Context, id, labelID string) error
	Labels(ctx context.Context) ([]gmail.Label, error)
}

// Page is the webmail page surface used by the page tools. *dom.Tools
// implements it.
type Page interface {
	SelectThreads(ctx context.Context, by, value string) (dom.SelectResult, error)
	BulkAction(ctx context.Context, action string) (dom.ActionResult, error)
	VisibleThreads(ctx context.Context) (dom.VisibleResult, error)
	OpenEmail(ctx context.Context) (dom.OpenEmailResult, error)
}

// handler is the dispatch pair of one tool. validate runs before execute and
// its errors are reported as ErrInvalidArguments.
type handler struct {
	backend  string
	validate func(args map[string]any) error
	execute  func(ctx context.Context, args map[string]any) (any, error)
}

type entry struct {
	tool    mcp.Tool
	handler handler
}

// Options configures the instrumentation of dispatches. All fields are
// optional.
type Options struct {
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger

	// DefaultMaxResults applies to search_messages calls without
	// max_results. Zero leaves the Gmail client default.
	DefaultMaxResults int
}

// Registry is the static tool catalog and its dispatch table. It is
// read-only after New and safe for concurrent use.
type Registry struct {
	defs     []mcp.Tool
	handlers map[string]handler

	mail Mailbox
	page Page

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	defaultMaxResults int
}

// New builds the registry. mail may be nil when Gmail is not authorized; the
// mail tools then fail with ErrMailUnavailable.
func New(mail Mailbox, page Page, opts Options) *Registry {
	r := &Registry{
		handlers: make(map[string]handler),
		mail:     mail,
		page:     page,
		metrics:  opts.Metrics,
		audit:    opts.Audit,
		logger:   opts.Logger,

		defaultMaxResults: opts.DefaultMaxResults,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}

	entries := append(r.mailEntries(), r.pageEntries()...)
	for _, e := range entries {
		r.defs = append(r.defs, e.tool)
		r.handlers[e.tool.Name] = e.handler
	}
	return r
}

// Definitions returns the catalog in declaration order.
func (r *Registry) Definitions() []mcp.Tool {
	return slices.Clone(r.defs)
}

// Names returns the tool names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, t := range r.defs {
		names[i] = t.Name
	}
	return names
}

// ModelTools returns the catalog in the form declared to the model.
func (r *Registry) ModelTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.defs))
	for _, t := range r.defs {
		out = append(out, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: modelSchema(t.InputSchema),
		})
	}
	return out
}

func modelSchema(s mcp.ToolInputSchema) map[string]any {
	props := s.Properties
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       s.Type,
		"properties": props,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

// Backend reports which backend serves name.
func (r *Registry) Backend(name string) (string, bool) {
	h, ok := r.handlers[name]
	return h.backend, ok
}

// Has reports whether name is in the catalog.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Dispatch validates args against the schema of name and executes the tool.
// Every failure is returned as an error for the caller to report back to the
// model; none of them is fatal.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	h, ok := r.handlers[name]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		r.record(ctx, name, "", args, func(context.Context) (any, error) { return nil, err })
		return nil, err
	}
	return r.record(ctx, name, h.backend, args, func(ctx context.Context) (any, error) {
		if err := r.validate(name, h, args); err != nil {
			return nil, err
		}
		return h.execute(ctx, args)
	})
}

func (r *Registry) validate(name string, h handler, args map[string]any) error {
	idx := slices.IndexFunc(r.defs, func(t mcp.Tool) bool { return t.Name == name })
	if err := validateSchema(r.defs[idx].InputSchema, args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if h.validate != nil {
		if err := h.validate(args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}
	return nil
}

// validateSchema checks required properties and string enums.
func validateSchema(schema mcp.ToolInputSchema, args map[string]any) error {
	for _, name := range schema.Required {
		v, ok := args[name]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		prop, _ := schema.Properties[name].(map[string]any)
		enum, _ := prop["enum"].([]string)
		if len(enum) == 0 {
			continue
		}
		s, ok := v.(string)
		if !ok || !slices.Contains(enum, s) {
			return fmt.Errorf("%s must be one of: %s", name, strings.Join(enum, ", "))
		}
	}
	return nil
}
