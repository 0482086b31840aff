package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/gmail"
)

type mailCall struct {
	op    string
	id    string
	label string
}

type fakeMailbox struct {
	mu       sync.Mutex
	calls    []mailCall
	failIDs  map[string]bool
	messages map[string]gmail.Message
	sent     []gmail.Outgoing
	drafts   []gmail.Outgoing
	query    string
	max      int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{failIDs: map[string]bool{}, messages: map[string]gmail.Message{}}
}

func (f *fakeMailbox) record(op, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mailCall{op, id, label})
	if f.failIDs[id] {
		return fmt.Errorf("failed to modify message %s: not found", id)
	}
	return nil
}

func (f *fakeMailbox) Search(_ context.Context, query string, maxResults int) ([]gmail.Message, error) {
	f.query, f.max = query, maxResults
	var out []gmail.Message
	for _, m := range f.messages {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (gmail.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return gmail.Message{}, fmt.Errorf("failed to get message %s: not found", id)
	}
	return m, nil
}

func (f *fakeMailbox) GetThread(_ context.Context, id string) ([]gmail.Message, error) {
	var out []gmail.Message
	for _, m := range f.messages {
		if m.ThreadID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Send(_ context.Context, msg gmail.Outgoing) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "sent-1", nil
}

func (f *fakeMailbox) CreateDraft(_ context.Context, msg gmail.Outgoing) (string, error) {
	f.drafts = append(f.drafts, msg)
	return "draft-1", nil
}

func (f *fakeMailbox) Archive(_ context.Context, id string) error    { return f.record("archive", id, "") }
func (f *fakeMailbox) Trash(_ context.Context, id string) error      { return f.record("trash", id, "") }
func (f *fakeMailbox) MarkRead(_ context.Context, id string) error   { return f.record("read", id, "") }
func (f *fakeMailbox) MarkUnread(_ context.Context, id string) error { return f.record("unread", id, "") }

func (f *fakeMailbox) AddLabel(_ context.Context, id, label string) error {
	return f.record("add_label", id, label)
}

func (f *fakeMailbox) RemoveLabel(_ context.Context, id, label string) error {
	return f.record("remove_label", id, label)
}

func (f *fakeMailbox) Labels(context.Context) ([]gmail.Label, error) {
	return []gmail.Label{{ID: "INBOX", Name: "INBOX", Type: "system"}}, nil
}

type fakePage struct {
	selectBy, selectValue string
	action                string
	selectResult          dom.SelectResult
	err                   error
}

func (p *fakePage) SelectThreads(_ context.Context, by, value string) (dom.SelectResult, error) {
	p.selectBy, p.selectValue = by, value
	return p.selectResult, p.err
}

func (p *fakePage) BulkAction(_ context.Context, action string) (dom.ActionResult, error) {
	p.action = action
	return dom.ActionResult{Success: true}, p.err
}

func (p *fakePage) VisibleThreads(context.Context) (dom.VisibleResult, error) {
	if p.err != nil {
		return dom.VisibleResult{}, p.err
	}
	return dom.VisibleResult{Success: true, Threads: []dom.ThreadSummary{}}, nil
}

func (p *fakePage) OpenEmail(context.Context) (dom.OpenEmailResult, error) {
	return dom.OpenEmailResult{}, errors.New("no email is open")
}
