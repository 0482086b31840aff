package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxagent/internal/instrumentation"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		_ = json.Unmarshal(raw, &captured.body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(ev), &env)
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, ev)
	}
}

var toolUseStream = []string{
	`{"type":"message_start","message":{"id":"msg_1","role":"assistant","content":[]}}`,
	`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
	`{"type":"ping"}`,
	`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Selecting "}}`,
	`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"threads."}}`,
	`{"type":"content_block_stop","index":0}`,
	`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"select_threads","input":{}}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":""}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"by\": \"sender\","}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":" \"value\": \"boss@x.com\"}"}}`,
	`{"type":"content_block_stop","index":1}`,
	`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":40}}`,
	`{"type":"message_stop"}`,
}

func TestAnthropic_SingleShot(t *testing.T) {
	srv, captured := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","content":[
			{"type":"text","text":"Done."},
			{"type":"tool_use","id":"toolu_1","name":"get_labels","input":{}}
		],"stop_reason":"tool_use"}`)
	})

	c, err := NewAnthropic("sk-test", Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	stream, err := c.Converse(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("list labels")}}},
		Tools:    []Tool{{Name: "get_labels", Description: "List labels", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	defer stream.Close()

	resp, err := Collect(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "get_labels", resp.Content[1].Name)

	assert.Equal(t, "/v1/messages", captured.path)
	assert.Equal(t, "sk-test", captured.headers.Get("x-api-key"))
	assert.Equal(t, AnthropicVersion, captured.headers.Get("anthropic-version"))
	assert.Equal(t, DefaultAnthropicModel, captured.body["model"])
	assert.EqualValues(t, DefaultMaxTokens, captured.body["max_tokens"])
	assert.Equal(t, DefaultSystemPrompt, captured.body["system"])
	assert.Nil(t, captured.body["stream"])
	tools := captured.body["tools"].([]any)
	assert.Equal(t, "get_labels", tools[0].(map[string]any)["name"])
	assert.NotNil(t, tools[0].(map[string]any)["input_schema"])
}

func TestAnthropic_Streaming(t *testing.T) {
	srv, captured := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, toolUseStream...)
	})

	c, err := NewAnthropic("sk-test", Options{BaseURL: srv.URL, Streaming: true, SystemPrompt: "be brief", MaxTokens: 1024})
	require.NoError(t, err)

	stream, err := c.Converse(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("select boss mail")}}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var deltas []string
	resp, err := Collect(stream, func(s string) { deltas = append(deltas, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Selecting ", "threads."}, deltas)
	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Selecting threads.", resp.Content[0].Text)
	assert.Equal(t, ToolUseBlock("toolu_1", "select_threads", map[string]any{"by": "sender", "value": "boss@x.com"}), resp.Content[1])

	assert.Equal(t, true, captured.body["stream"])
	assert.Equal(t, "be brief", captured.body["system"])
	assert.EqualValues(t, 1024, captured.body["max_tokens"])
	assert.Equal(t, "text/event-stream", captured.headers.Get("Accept"))
}

func TestStreaming_Errors(t *testing.T) {
	tests := []struct {
		name      string
		events    []string
		wantErr   string
		malformed bool
	}{
		{
			name: "error event",
			events: []string{
				`{"type":"message_start","message":{}}`,
				`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			},
			wantErr: "anthropic API error (overloaded_error): Overloaded",
		},
		{
			name: "truncated",
			events: []string{
				`{"type":"message_start","message":{}}`,
				`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			},
			wantErr: "stream ended before message_stop",
		},
		{
			name: "unknown block",
			events: []string{
				`{"type":"content_block_start","index":0,"content_block":{"type":"image"}}`,
			},
			malformed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) { writeSSE(w, tt.events...) })
			c, err := NewAnthropic("k", Options{BaseURL: srv.URL, Streaming: true})
			require.NoError(t, err)

			stream, err := c.Converse(context.Background(), Request{})
			require.NoError(t, err)
			defer stream.Close()

			_, err = Collect(stream, nil)
			require.Error(t, err)
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	single := NewHTTPClient(time.Second, false)
	assert.Equal(t, time.Second, single.Timeout)

	streaming := NewHTTPClient(time.Second, true)
	assert.Zero(t, streaming.Timeout)
	transport, ok := streaming.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, time.Second, transport.ResponseHeaderTimeout)

	assert.Equal(t, defaultHTTPTimeout, NewHTTPClient(0, false).Timeout)
}

func TestStreaming_OutlivesRequestTimeout(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range toolUseStream {
			writeSSE(w, ev)
			w.(http.Flusher).Flush()
			time.Sleep(20 * time.Millisecond)
		}
	})

	c, err := NewAnthropic("k", Options{
		BaseURL:    srv.URL,
		Streaming:  true,
		HTTPClient: NewHTTPClient(100*time.Millisecond, true),
	})
	require.NoError(t, err)

	stream, err := c.Converse(context.Background(), Request{})
	require.NoError(t, err)
	defer stream.Close()

	resp, err := Collect(stream, nil)
	require.NoError(t, err, "a stream longer than the header timeout must be read to the end")
	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
}

func TestStreaming_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"search_messages","input":{}}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\": \"is:un"}}`,
		)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c, err := NewAnthropic("k", Options{BaseURL: srv.URL, Streaming: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.Converse(ctx, Request{})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventBlockStart, ev.Type)
	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventBlockDelta, ev.Type)

	cancel()
	resp, err := Collect(stream, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, resp.Content)
}

func TestConverse_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantMsg  string
	}{
		{"anthropic error", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`, "rate_limit_error", "Number of requests has exceeded your rate limit"},
		{"google error", http.StatusForbidden, `[{"error":{"code":403,"message":"Permission denied on resource project p.","status":"PERMISSION_DENIED"}}]`, "PERMISSION_DENIED", "Permission denied on resource project p."},
		{"plain text", http.StatusBadGateway, "upstream unavailable", "", "upstream unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			c, err := NewAnthropic("k", Options{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = c.Converse(context.Background(), Request{})
			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.wantMsg, pe.Message)
		})
	}
}

func TestConverse_MalformedBody(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"mystery"}],"stop_reason":"end_turn"}`)
	})
	c, err := NewAnthropic("k", Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Converse(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestVertex_RequestShape(t *testing.T) {
	tests := []struct {
		name      string
		streaming bool
		wantPath  string
	}{
		{"raw predict", false, "/v1/projects/proj-1/locations/us-east5/publishers/anthropic/models/" + DefaultVertexModel + ":rawPredict"},
		{"stream raw predict", true, "/v1/projects/proj-1/locations/us-east5/publishers/anthropic/models/" + DefaultVertexModel + ":streamRawPredict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.streaming {
					writeSSE(w, toolUseStream...)
					return
				}
				_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn"}`)
			})

			tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test", TokenType: "Bearer"})
			c, err := NewVertex("proj-1", "us-east5", tokens, Options{BaseURL: srv.URL, Streaming: tt.streaming})
			require.NoError(t, err)
			assert.Equal(t, ProviderVertex, c.Provider())

			stream, err := c.Converse(context.Background(), Request{})
			require.NoError(t, err)
			_, err = Collect(stream, nil)
			require.NoError(t, err)
			require.NoError(t, stream.Close())

			assert.Equal(t, tt.wantPath, captured.path)
			assert.Equal(t, "Bearer ya29.test", captured.headers.Get("Authorization"))
			assert.Empty(t, captured.headers.Get("x-api-key"))
			assert.Equal(t, VertexAnthropicVersion, captured.body["anthropic_version"])
			_, hasModel := captured.body["model"]
			assert.False(t, hasModel)
		})
	}
}

type failingTokens struct{}

func (failingTokens) Token() (*oauth2.Token, error) { return nil, errors.New("no credentials") }

func TestVertex_TokenFailure(t *testing.T) {
	c, err := NewVertex("p", "global", failingTokens{}, Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.Converse(context.Background(), Request{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "no credentials")
}

func TestVertexBaseURL(t *testing.T) {
	assert.Equal(t, "https://aiplatform.googleapis.com", VertexBaseURL("global"))
	assert.Equal(t, "https://aiplatform.googleapis.com", VertexBaseURL(""))
	assert.Equal(t, "https://europe-west1-aiplatform.googleapis.com", VertexBaseURL("europe-west1"))
}

func TestConstructorsValidate(t *testing.T) {
	_, err := NewAnthropic("", Options{})
	assert.Error(t, err)
	_, err = NewVertex("", "global", oauth2.StaticTokenSource(&oauth2.Token{}), Options{})
	assert.Error(t, err)
	_, err = NewVertex("p", "global", nil, Options{})
	assert.Error(t, err)
}

func TestConverse_RecordsMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	m, err := instrumentation.NewMetrics(metric.NewMeterProvider(metric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("x-api-key"), "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"content":[],"stop_reason":"end_turn"}`)
	})

	for _, key := range []string{"good", "bad"} {
		c, err := NewAnthropic(key, Options{BaseURL: srv.URL, Metrics: m})
		require.NoError(t, err)
		stream, err := c.Converse(context.Background(), Request{})
		if err == nil {
			_, err = Collect(stream, nil)
			require.NoError(t, err)
			_ = stream.Close()
		}
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "model_requests_total" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"success": 1, "error": 1}, counts)
}
