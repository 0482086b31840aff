package dom

import (
	"context"
	"fmt"
	"slices"
)

// Selection modes accepted by SelectThreads.
var SelectModes = []string{"all", "none", "read", "unread", "sender", "subject", "index"}

// Actions accepted by BulkAction.
var Actions = []string{"archive", "delete", "spam", "not_spam", "mark_read", "mark_unread", "star", "unstar"}

// Tools performs the page operations over a Caller.
type Tools struct {
	caller Caller
}

// NewTools returns Tools backed by caller, usually a *Bridge.
func NewTools(caller Caller) *Tools {
	return &Tools{caller: caller}
}

// ValidateSelect checks the selection mode and that a value accompanies the
// modes that need one.
func ValidateSelect(by, value string) error {
	if !slices.Contains(SelectModes, by) {
		return fmt.Errorf("invalid selection mode %q, must be one of: %v", by, SelectModes)
	}
	switch by {
	case "sender", "subject", "index":
		if value == "" {
			return fmt.Errorf("value is required when selecting by %s", by)
		}
	}
	return nil
}

// ValidateAction checks a bulk action name.
func ValidateAction(action string) error {
	if !slices.Contains(Actions, action) {
		return fmt.Errorf("invalid action %q, must be one of: %v", action, Actions)
	}
	return nil
}

// SelectThreads changes the list selection.
func (t *Tools) SelectThreads(ctx context.Context, by, value string) (SelectResult, error) {
	if err := ValidateSelect(by, value); err != nil {
		return SelectResult{}, err
	}
	var res SelectResult
	if err := t.caller.Call(ctx, ChannelSelectThreads, SelectParams{By: by, Value: value}, &res); err != nil {
		return SelectResult{}, err
	}
	if !res.Success {
		return res, pageFailure(ChannelSelectThreads, res.Error)
	}
	return res, nil
}

// BulkAction applies action to the selected threads.
func (t *Tools) BulkAction(ctx context.Context, action string) (ActionResult, error) {
	if err := ValidateAction(action); err != nil {
		return ActionResult{}, err
	}
	var res ActionResult
	if err := t.caller.Call(ctx, ChannelBulkAction, ActionParams{Action: action}, &res); err != nil {
		return ActionResult{}, err
	}
	if !res.Success {
		return res, pageFailure(ChannelBulkAction, res.Error)
	}
	return res, nil
}

// VisibleThreads lists the rendered thread rows.
func (t *Tools) VisibleThreads(ctx context.Context) (VisibleResult, error) {
	var res VisibleResult
	if err := t.caller.Call(ctx, ChannelGetVisibleThreads, nil, &res); err != nil {
		return VisibleResult{}, err
	}
	if !res.Success {
		return res, pageFailure(ChannelGetVisibleThreads, res.Error)
	}
	if res.Threads == nil {
		res.Threads = []ThreadSummary{}
	}
	return res, nil
}

// OpenEmail reads the currently expanded message.
func (t *Tools) OpenEmail(ctx context.Context) (OpenEmailResult, error) {
	var res OpenEmailResult
	if err := t.caller.Call(ctx, ChannelGetOpenEmail, nil, &res); err != nil {
		return OpenEmailResult{}, err
	}
	if !res.Success {
		return res, pageFailure(ChannelGetOpenEmail, res.Error)
	}
	if res.Email == nil {
		return res, &PageError{Channel: ChannelGetOpenEmail, Message: "no email is open"}
	}
	return res, nil
}

func pageFailure(channel, msg string) error {
	if msg == "" {
		msg = channel + " failed"
	}
	return &PageError{Channel: channel, Message: msg}
}
