package dom

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Channels understood by the page script.
const (
	ChannelSelectThreads     = "select-threads"
	ChannelBulkAction        = "bulk-action"
	ChannelGetVisibleThreads = "get-visible-threads"
	ChannelGetOpenEmail      = "get-open-email"
)

var (
	// ErrViewUnavailable is returned when no webmail page is attached.
	ErrViewUnavailable = errors.New("webmail view not available")

	// ErrTimeout matches every TimeoutError with errors.Is.
	ErrTimeout = errors.New("timeout waiting for page result")

	// ErrDisconnected is returned to calls pending when the page goes away.
	ErrDisconnected = errors.New("webmail view disconnected")
)

// TimeoutError reports a call whose result did not arrive in time.
type TimeoutError struct {
	Channel string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s-result", e.Channel)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PageError is a failure reported by the page script.
type PageError struct {
	Channel string
	Message string
}

func (e *PageError) Error() string {
	return e.Message
}

type request struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Data    any    `json:"data,omitempty"`
}

type reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SelectParams selects threads in the list view.
type SelectParams struct {
	By    string `json:"by"`
	Value string `json:"value,omitempty"`
}

// SelectResult is the page's answer to a selection.
type SelectResult struct {
	Success       bool   `json:"success"`
	SelectedCount *int   `json:"selectedCount,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ActionParams applies a toolbar action to the current selection.
type ActionParams struct {
	Action string `json:"action"`
}

// ActionResult is the page's answer to a bulk action.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ThreadSummary is one row of the visible thread list.
type ThreadSummary struct {
	Index        int     `json:"index"`
	ThreadID     *string `json:"threadId"`
	Sender       string  `json:"sender"`
	Subject      string  `json:"subject"`
	Snippet      string  `json:"snippet"`
	MessageCount int     `json:"messageCount"`
	IsSelected   bool    `json:"isSelected"`
	IsRead       bool    `json:"isRead"`
	IsStarred    bool    `json:"isStarred"`
}

// VisibleResult lists the threads currently rendered.
type VisibleResult struct {
	Success bool            `json:"success"`
	Threads []ThreadSummary `json:"threads,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OpenEmail is the expanded message of the open conversation.
type OpenEmail struct {
	ThreadID   *string `json:"threadId"`
	MessageID  *string `json:"messageId"`
	Subject    string  `json:"subject"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Cc         string  `json:"cc"`
	Date       string  `json:"date"`
	Body       string  `json:"body"`
	IsExpanded bool    `json:"isExpanded"`
}

// OpenEmailResult is the page's answer to get-open-email.
type OpenEmailResult struct {
	Success bool       `json:"success"`
	Email   *OpenEmail `json:"email,omitempty"`
	Error   string     `json:"error,omitempty"`
}
