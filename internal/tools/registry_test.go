package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/inboxagent/internal/dom"
	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/tools/batch"
)

var catalogOrder = []string{
	"search_messages", "get_message", "get_thread", "send_message", "create_draft",
	"archive_message", "trash_message", "mark_as_read", "mark_as_unread",
	"add_label", "remove_label", "get_labels",
	"get_visible_threads", "get_open_email", "select_threads", "bulk_action",
}

func TestRegistry_Definitions(t *testing.T) {
	r := New(newFakeMailbox(), &fakePage{}, Options{})

	assert.Equal(t, catalogOrder, r.Names())
	assert.Equal(t, r.Definitions(), r.Definitions(), "definitions must be stable")

	required := map[string][]string{
		"search_messages":     {"query"},
		"get_message":         {"message_id"},
		"get_thread":          {"thread_id"},
		"send_message":        {"to", "subject", "body"},
		"create_draft":        {"to", "subject", "body"},
		"archive_message":     {"message_id"},
		"trash_message":       {"message_id"},
		"mark_as_read":        {"message_id"},
		"mark_as_unread":      {"message_id"},
		"add_label":           {"message_id", "label_id"},
		"remove_label":        {"message_id", "label_id"},
		"get_labels":          nil,
		"get_visible_threads": nil,
		"get_open_email":      nil,
		"select_threads":      {"by"},
		"bulk_action":         {"action"},
	}
	for _, def := range r.Definitions() {
		assert.Equal(t, required[def.Name], def.InputSchema.Required, def.Name)
		assert.NotEmpty(t, def.Description, def.Name)
		for prop, schema := range def.InputSchema.Properties {
			assert.NotEmpty(t, schema.(map[string]any)["description"], "%s.%s", def.Name, prop)
		}
	}
}

func TestRegistry_DefinitionsAreCopies(t *testing.T) {
	r := New(nil, nil, Options{})
	defs := r.Definitions()
	defs[0].Name = "changed"
	assert.Equal(t, "search_messages", r.Definitions()[0].Name)
}

func TestRegistry_ModelTools(t *testing.T) {
	r := New(nil, nil, Options{})
	tools := r.ModelTools()
	require.Len(t, tools, len(catalogOrder))

	for i, tool := range tools {
		assert.Equal(t, catalogOrder[i], tool.Name)
		raw, err := json.Marshal(tool)
		require.NoError(t, err)

		var decoded struct {
			InputSchema struct {
				Type       string         `json:"type"`
				Properties map[string]any `json:"properties"`
			} `json:"input_schema"`
		}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "object", decoded.InputSchema.Type)
		assert.NotNil(t, decoded.InputSchema.Properties, tool.Name)
	}

	var selectSchema map[string]any
	raw, _ := json.Marshal(tools[14].InputSchema)
	require.NoError(t, json.Unmarshal(raw, &selectSchema))
	by := selectSchema["properties"].(map[string]any)["by"].(map[string]any)
	assert.Len(t, by["enum"], len(dom.SelectModes))
}

func TestRegistry_Backend(t *testing.T) {
	r := New(nil, nil, Options{})
	for i, name := range catalogOrder {
		backend, ok := r.Backend(name)
		require.True(t, ok)
		if i < 12 {
			assert.Equal(t, BackendMail, backend, name)
		} else {
			assert.Equal(t, BackendPage, backend, name)
		}
	}
	_, ok := r.Backend("foo_bar")
	assert.False(t, ok)
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := New(newFakeMailbox(), &fakePage{}, Options{})
	_, err := r.Dispatch(context.Background(), "foo_bar", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.EqualError(t, err, "unknown tool: foo_bar")
}

func TestDispatch_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr string
	}{
		{"missing query", "search_messages", map[string]any{}, "invalid arguments: query is required"},
		{"empty query", "search_messages", map[string]any{"query": ""}, "invalid arguments: query is required"},
		{"fractional max", "search_messages", map[string]any{"query": "x", "max_results": 2.5}, "invalid arguments: max_results must be an integer"},
		{"missing label", "add_label", map[string]any{"message_id": "m1"}, "invalid arguments: label_id is required"},
		{"message id number", "archive_message", map[string]any{"message_id": 7.0}, "invalid arguments: message_id must be a string or array of strings"},
		{"empty id array", "trash_message", map[string]any{"message_id": []any{}}, "invalid arguments: message_id cannot be empty"},
		{"bad selection", "select_threads", map[string]any{"by": "starred"}, "invalid arguments: by must be one of: all, none, read, unread, sender, subject, index"},
		{"sender without value", "select_threads", map[string]any{"by": "sender"}, "invalid arguments: value is required when selecting by sender"},
		{"bad action", "bulk_action", map[string]any{"action": "explode"}, "invalid arguments: action must be one of: archive, delete, spam, not_spam, mark_read, mark_unread, star, unstar"},
		{"missing to", "send_message", map[string]any{"subject": "s", "body": "b"}, "invalid arguments: to is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail, page := newFakeMailbox(), &fakePage{}
			r := New(mail, page, Options{})
			_, err := r.Dispatch(context.Background(), tt.tool, tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArguments)
			assert.EqualError(t, err, tt.wantErr)
			assert.Empty(t, mail.calls)
			assert.Empty(t, page.selectBy)
		})
	}
}

func TestDispatch_SelectThreadsResultEncoding(t *testing.T) {
	count := 3
	page := &fakePage{selectResult: dom.SelectResult{Success: true, SelectedCount: &count}}
	r := New(nil, page, Options{})

	result, err := r.Dispatch(context.Background(), "select_threads", map[string]any{"by": "sender", "value": "boss@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "sender", page.selectBy)
	assert.Equal(t, "boss@x.com", page.selectValue)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, `{"success":true,"selectedCount":3}`, string(raw))
}

func TestDispatch_PageErrors(t *testing.T) {
	page := &fakePage{err: dom.ErrViewUnavailable}
	r := New(nil, page, Options{})
	_, err := r.Dispatch(context.Background(), "get_visible_threads", nil)
	assert.ErrorIs(t, err, dom.ErrViewUnavailable)

	r = New(nil, nil, Options{})
	_, err = r.Dispatch(context.Background(), "bulk_action", map[string]any{"action": "spam"})
	assert.ErrorIs(t, err, dom.ErrViewUnavailable)
}

func TestDispatch_ModifySingleAndBatch(t *testing.T) {
	mail := newFakeMailbox()
	mail.failIDs["m2"] = true
	r := New(mail, nil, Options{})

	result, err := r.Dispatch(context.Background(), "archive_message", map[string]any{"message_id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, ModifyResult{Success: true}, result)

	_, err = r.Dispatch(context.Background(), "archive_message", map[string]any{"message_id": "m2"})
	assert.EqualError(t, err, "failed to modify message m2: not found")

	result, err = r.Dispatch(context.Background(), "add_label", map[string]any{
		"message_id": []any{"m1", "m2", "m3"},
		"label_id":   "STARRED",
	})
	require.NoError(t, err)
	summary := result.(batch.Summary)
	assert.False(t, summary.Success)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, []mailCall{
		{"archive", "m1", ""},
		{"archive", "m2", ""},
		{"add_label", "m1", "STARRED"},
		{"add_label", "m2", "STARRED"},
		{"add_label", "m3", "STARRED"},
	}, mail.calls)
}

func TestDispatch_MailTools(t *testing.T) {
	mail := newFakeMailbox()
	mail.messages["m1"] = gmail.Message{ID: "m1", ThreadID: "t1", Subject: "Hello"}
	r := New(mail, nil, Options{})
	ctx := context.Background()

	result, err := r.Dispatch(ctx, "search_messages", map[string]any{"query": "is:unread", "max_results": 5.0})
	require.NoError(t, err)
	assert.Equal(t, "is:unread", mail.query)
	assert.Equal(t, 5, mail.max)
	assert.Len(t, result, 1)

	result, err = r.Dispatch(ctx, "get_message", map[string]any{"message_id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", result.(gmail.Message).Subject)

	result, err = r.Dispatch(ctx, "get_thread", map[string]any{"thread_id": "t1"})
	require.NoError(t, err)
	assert.Len(t, result.(ThreadResult).Messages, 1)

	result, err = r.Dispatch(ctx, "send_message", map[string]any{
		"to": "a@x.com, b@x.com", "cc": "c@x.com", "subject": "Hi", "body": "Body",
	})
	require.NoError(t, err)
	assert.Equal(t, SendResult{Success: true, MessageID: "sent-1"}, result)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, mail.sent[0].To)
	assert.Equal(t, []string{"c@x.com"}, mail.sent[0].Cc)

	result, err = r.Dispatch(ctx, "create_draft", map[string]any{"to": "a@x.com", "subject": "Hi", "body": "Body"})
	require.NoError(t, err)
	assert.Equal(t, DraftResult{Success: true, DraftID: "draft-1"}, result)

	result, err = r.Dispatch(ctx, "get_labels", nil)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestDispatch_MailUnavailable(t *testing.T) {
	r := New(nil, &fakePage{}, Options{})
	_, err := r.Dispatch(context.Background(), "get_labels", nil)
	assert.True(t, errors.Is(err, ErrMailUnavailable))
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	m, err := instrumentation.NewMetrics(metric.NewMeterProvider(metric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	r := New(newFakeMailbox(), &fakePage{}, Options{Metrics: m})
	ctx := instrumentation.WithToolUseID(context.Background(), "toolu_1")
	_, _ = r.Dispatch(ctx, "get_labels", nil)
	_, _ = r.Dispatch(ctx, "foo_bar", nil)
	_, _ = r.Dispatch(ctx, "other_invented", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "tool_dispatch_total" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				tool, _ := dp.Attributes.Value("tool")
				status, _ := dp.Attributes.Value("status")
				got[tool.AsString()+"/"+status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"get_labels/success": 1, "unknown/error": 2}, got)
}

func TestDispatch_SearchDefaultMaxResults(t *testing.T) {
	mail := newFakeMailbox()
	r := New(mail, nil, Options{DefaultMaxResults: 50})

	result, err := r.Dispatch(context.Background(), "search_messages", map[string]any{"query": "from:billing"})
	require.NoError(t, err)
	assert.Equal(t, 50, mail.max)
	assert.Equal(t, []gmail.Message{}, result)
}
