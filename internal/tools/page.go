package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/dom"
)

func (r *Registry) pageEntries() []entry {
	return []entry{
		{
			tool: mcp.NewTool("get_visible_threads",
				mcp.WithDescription("List the threads currently shown in the webmail list view, with index, sender, subject, snippet, date and read state."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendPage, execute: r.visibleThreads},
		},
		{
			tool: mcp.NewTool("get_open_email",
				mcp.WithDescription("Read the email currently open in the webmail view: subject, sender, recipients, date and body text."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendPage, execute: r.openEmail},
		},
		{
			tool: mcp.NewTool("select_threads",
				mcp.WithDescription("Select threads in the webmail list view. Use before bulk_action."),
				mcp.WithString("by",
					mcp.Required(),
					mcp.Enum(dom.SelectModes...),
					mcp.Description("Selection criterion: all, none, read, unread, sender (address or name contains value), subject (subject contains value) or index (comma-separated zero-based row indices)"),
				),
				mcp.WithString("value",
					mcp.Description("Match value, required when by is sender, subject or index"),
				),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			handler: handler{
				backend: BackendPage,
				validate: func(args map[string]any) error {
					return dom.ValidateSelect(stringArg(args, "by"), stringArg(args, "value"))
				},
				execute: r.selectThreads,
			},
		},
		{
			tool: mcp.NewTool("bulk_action",
				mcp.WithDescription("Apply an action to the threads currently selected in the webmail list view."),
				mcp.WithString("action",
					mcp.Required(),
					mcp.Enum(dom.Actions...),
					mcp.Description("Action to apply to the selection"),
				),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			handler: handler{backend: BackendPage, execute: r.bulkAction},
		},
	}
}

func (r *Registry) pageTools() (Page, error) {
	if r.page == nil {
		return nil, dom.ErrViewUnavailable
	}
	return r.page, nil
}

func (r *Registry) visibleThreads(ctx context.Context, _ map[string]any) (any, error) {
	page, err := r.pageTools()
	if err != nil {
		return nil, err
	}
	return page.VisibleThreads(ctx)
}

func (r *Registry) openEmail(ctx context.Context, _ map[string]any) (any, error) {
	page, err := r.pageTools()
	if err != nil {
		return nil, err
	}
	return page.OpenEmail(ctx)
}

func (r *Registry) selectThreads(ctx context.Context, args map[string]any) (any, error) {
	page, err := r.pageTools()
	if err != nil {
		return nil, err
	}
	return page.SelectThreads(ctx, stringArg(args, "by"), stringArg(args, "value"))
}

func (r *Registry) bulkAction(ctx context.Context, args map[string]any) (any, error) {
	page, err := r.pageTools()
	if err != nil {
		return nil, err
	}
	return page.BulkAction(ctx, stringArg(args, "action"))
}
