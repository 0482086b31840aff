package gmail

import (
	"context"
	"fmt"
	"net/http"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	me = "me"

	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"

	DefaultMaxResults = 20
	MaxResultsLimit   = 100
)

// Label is a Gmail label as returned by get_labels.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client wraps the Gmail Users service.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a client authenticated by httpClient. Extra options are
// passed to the Gmail service, tests use option.WithEndpoint.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// ClampMaxResults applies the default and the upper bound to a requested
// result count.
func ClampMaxResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > MaxResultsLimit:
		return MaxResultsLimit
	default:
		return n
	}
}

// Search lists messages matching a Gmail query and fetches each in full.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Message, error) {
	res, err := c.svc.Messages.List(me).
		Q(query).
		MaxResults(int64(ClampMaxResults(maxResults))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	out := make([]Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		msg, err := c.GetMessage(ctx, m.Id)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// GetMessage fetches one message in full format.
func (c *Client) GetMessage(ctx context.Context, id string) (Message, error) {
	m, err := c.svc.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return Message{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return ParseMessage(m), nil
}

// GetThread returns every message of a thread in order.
func (c *Client) GetThread(ctx context.Context, id string) ([]Message, error) {
	t, err := c.svc.Threads.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", id, err)
	}
	out := make([]Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		out = append(out, ParseMessage(m))
	}
	return out, nil
}

// Send sends msg and returns the new message id.
func (c *Client) Send(ctx context.Context, msg Outgoing) (string, error) {
	raw, err := msg.Raw()
	if err != nil {
		return "", err
	}
	sent, err := c.svc.Messages.Send(me, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}

// CreateDraft stores msg as a draft and returns the draft id.
func (c *Client) CreateDraft(ctx context.Context, msg Outgoing) (string, error) {
	raw, err := msg.Raw()
	if err != nil {
		return "", err
	}
	draft, err := c.svc.Drafts.Create(me, &gmail.Draft{Message: &gmail.Message{Raw: raw}}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create draft: %w", err)
	}
	return draft.Id, nil
}

func (c *Client) modify(ctx context.Context, id string, add, remove []string) error {
	_, err := c.svc.Messages.Modify(me, id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to modify message %s: %w", id, err)
	}
	return nil
}

// Archive removes the INBOX label.
func (c *Client) Archive(ctx context.Context, id string) error {
	return c.modify(ctx, id, nil, []string{LabelInbox})
}

// Trash moves the message to the trash.
func (c *Client) Trash(ctx context.Context, id string) error {
	if _, err := c.svc.Messages.Trash(me, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", id, err)
	}
	return nil
}

// MarkRead removes the UNREAD label.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.modify(ctx, id, nil, []string{LabelUnread})
}

// MarkUnread adds the UNREAD label.
func (c *Client) MarkUnread(ctx context.Context, id string) error {
	return c.modify(ctx, id, []string{LabelUnread}, nil)
}

// AddLabel adds labelID to the message.
func (c *Client) AddLabel(ctx context.Context, id, labelID string) error {
	return c.modify(ctx, id, []string{labelID}, nil)
}

// RemoveLabel removes labelID from the message.
func (c *Client) RemoveLabel(ctx context.Context, id, labelID string) error {
	return c.modify(ctx, id, nil, []string{labelID})
}

// Labels lists the system and user labels of the mailbox.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	res, err := c.svc.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	out := make([]Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		out = append(out, Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return out, nil
}
