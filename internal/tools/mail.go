package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/tools/batch"
)

const messageIDDescription = "Message ID (string) or array of message IDs"

// SendResult is returned by send_message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// DraftResult is returned by create_draft.
type DraftResult struct {
	Success bool   `json:"success"`
	DraftID string `json:"draft_id"`
}

// ModifyResult is returned by the modify tools for a single message id.
type ModifyResult struct {
	Success bool `json:"success"`
}

// ThreadResult is returned by get_thread.
type ThreadResult struct {
	ThreadID string          `json:"threadId"`
	Messages []gmail.Message `json:"messages"`
}

func (r *Registry) mailEntries() []entry {
	return []entry{
		{
			tool: mcp.NewTool("search_messages",
				mcp.WithDescription("Search Gmail using Gmail search syntax. Returns matching messages with subject, from, to, date, snippet and body."),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description(`Gmail search query (e.g. "from:someone@example.com", "is:unread", "subject:meeting", "newer_than:1d")`),
				),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of messages to return (default: 20, max: 100)"),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendMail, validate: validateMaxResults, execute: r.searchMessages},
		},
		{
			tool: mcp.NewTool("get_message",
				mcp.WithDescription("Read the full content of a message by its ID. Returns subject, from, to, date, labels and the plain-text body."),
				mcp.WithString("message_id",
					mcp.Required(),
					mcp.Description("The ID of the message to read"),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendMail, execute: r.getMessage},
		},
		{
			tool: mcp.NewTool("get_thread",
				mcp.WithDescription("Read every message of a conversation thread in order."),
				mcp.WithString("thread_id",
					mcp.Required(),
					mcp.Description("The ID of the thread to read"),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendMail, execute: r.getThread},
		},
		{
			tool: mcp.NewTool("send_message",
				mcp.WithDescription("Send a new email to one or more recipients."),
				mcp.WithString("to",
					mcp.Required(),
					mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
				),
				mcp.WithString("subject",
					mcp.Required(),
					mcp.Description("Email subject line"),
				),
				mcp.WithString("body",
					mcp.Required(),
					mcp.Description("Plain-text email body"),
				),
				mcp.WithString("cc",
					mcp.Description("CC email address(es), comma-separated (optional)"),
				),
				mcp.WithString("bcc",
					mcp.Description("BCC email address(es), comma-separated (optional)"),
				),
			),
			handler: handler{backend: BackendMail, execute: r.sendMessage},
		},
		{
			tool: mcp.NewTool("create_draft",
				mcp.WithDescription("Create a draft without sending it. The user can review and send it later."),
				mcp.WithString("to",
					mcp.Required(),
					mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
				),
				mcp.WithString("subject",
					mcp.Required(),
					mcp.Description("Email subject line"),
				),
				mcp.WithString("body",
					mcp.Required(),
					mcp.Description("Plain-text email body"),
				),
				mcp.WithString("cc",
					mcp.Description("CC email address(es), comma-separated (optional)"),
				),
				mcp.WithDestructiveHintAnnotation(false),
			),
			handler: handler{backend: BackendMail, execute: r.createDraft},
		},
		r.modifyEntry("archive_message", "Archive messages: remove them from the inbox but keep them in All Mail.", Mailbox.Archive),
		r.modifyEntry("trash_message", "Move messages to the trash.", Mailbox.Trash),
		r.modifyEntry("mark_as_read", "Mark messages as read.", Mailbox.MarkRead),
		r.modifyEntry("mark_as_unread", "Mark messages as unread.", Mailbox.MarkUnread),
		r.labelEntry("add_label", "Add a label to messages. Call get_labels first to find label IDs.",
			`The ID of the label to add (e.g. "STARRED", "IMPORTANT" or a user label ID)`, Mailbox.AddLabel),
		r.labelEntry("remove_label", "Remove a label from messages.",
			"The ID of the label to remove", Mailbox.RemoveLabel),
		{
			tool: mcp.NewTool("get_labels",
				mcp.WithDescription("List all Gmail labels of the account, including user labels."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: handler{backend: BackendMail, execute: r.getLabels},
		},
	}
}

func (r *Registry) modifyEntry(name, description string, op func(Mailbox, context.Context, string) error) entry {
	return entry{
		tool: mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("message_id",
				mcp.Required(),
				mcp.Description(messageIDDescription),
			),
			mcp.WithIdempotentHintAnnotation(true),
		),
		handler: handler{
			backend:  BackendMail,
			validate: validateMessageIDs,
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				mail, err := r.mailbox()
				if err != nil {
					return nil, err
				}
				return modifyMessages(ctx, args, func(ctx context.Context, id string) error {
					return op(mail, ctx, id)
				})
			},
		},
	}
}

func (r *Registry) labelEntry(name, description, labelDescription string, op func(Mailbox, context.Context, string, string) error) entry {
	return entry{
		tool: mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("message_id",
				mcp.Required(),
				mcp.Description(messageIDDescription),
			),
			mcp.WithString("label_id",
				mcp.Required(),
				mcp.Description(labelDescription),
			),
			mcp.WithIdempotentHintAnnotation(true),
		),
		handler: handler{
			backend:  BackendMail,
			validate: validateMessageIDs,
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				mail, err := r.mailbox()
				if err != nil {
					return nil, err
				}
				labelID := stringArg(args, "label_id")
				return modifyMessages(ctx, args, func(ctx context.Context, id string) error {
					return op(mail, ctx, id, labelID)
				})
			},
		},
	}
}

func validateMessageIDs(args map[string]any) error {
	_, _, err := batch.ParseStringOrArray(args["message_id"], "message_id")
	return err
}

func validateMaxResults(args map[string]any) error {
	_, err := intArg(args, "max_results")
	return err
}

// modifyMessages applies fn to one id or to each id of an array. A single id
// fails with fn's error; an array always yields a batch summary.
func modifyMessages(ctx context.Context, args map[string]any, fn func(context.Context, string) error) (any, error) {
	ids, isArray, err := batch.ParseStringOrArray(args["message_id"], "message_id")
	if err != nil {
		return nil, err
	}
	if !isArray {
		if err := fn(ctx, ids[0]); err != nil {
			return nil, err
		}
		return ModifyResult{Success: true}, nil
	}
	return batch.Run(ctx, ids, fn), nil
}

func (r *Registry) mailbox() (Mailbox, error) {
	if r.mail == nil {
		return nil, ErrMailUnavailable
	}
	return r.mail, nil
}

func (r *Registry) searchMessages(ctx context.Context, args map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	maxResults, _ := intArg(args, "max_results")
	if maxResults <= 0 {
		maxResults = r.defaultMaxResults
	}
	msgs, err := mail.Search(ctx, stringArg(args, "query"), maxResults)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []gmail.Message{}
	}
	return msgs, nil
}

func (r *Registry) getMessage(ctx context.Context, args map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	return mail.GetMessage(ctx, stringArg(args, "message_id"))
}

func (r *Registry) getThread(ctx context.Context, args map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	id := stringArg(args, "thread_id")
	msgs, err := mail.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []gmail.Message{}
	}
	return ThreadResult{ThreadID: id, Messages: msgs}, nil
}

func outgoing(args map[string]any) gmail.Outgoing {
	return gmail.Outgoing{
		To:      gmail.SplitAddresses(stringArg(args, "to")),
		Cc:      gmail.SplitAddresses(stringArg(args, "cc")),
		Bcc:     gmail.SplitAddresses(stringArg(args, "bcc")),
		Subject: stringArg(args, "subject"),
		Body:    stringArg(args, "body"),
	}
}

func (r *Registry) sendMessage(ctx context.Context, args map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	id, err := mail.Send(ctx, outgoing(args))
	if err != nil {
		return nil, err
	}
	return SendResult{Success: true, MessageID: id}, nil
}

func (r *Registry) createDraft(ctx context.Context, args map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	msg := outgoing(args)
	msg.Bcc = nil
	id, err := mail.CreateDraft(ctx, msg)
	if err != nil {
		return nil, err
	}
	return DraftResult{Success: true, DraftID: id}, nil
}

func (r *Registry) getLabels(ctx context.Context, _ map[string]any) (any, error) {
	mail, err := r.mailbox()
	if err != nil {
		return nil, err
	}
	labels, err := mail.Labels(ctx)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []gmail.Label{}
	}
	return labels, nil
}
