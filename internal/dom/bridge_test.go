package dom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage dials the bridge and answers requests with respond.
type fakePage struct {
	conn     *websocket.Conn
	requests chan request
}

func dialPage(t *testing.T, srv *httptest.Server, respond func(request) any) *fakePage {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &fakePage{conn: conn, requests: make(chan request, 16)}
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if json.Unmarshal(raw, &req) != nil {
				continue
			}
			p.requests <- req
			if respond == nil {
				continue
			}
			if out := respond(req); out != nil {
				data, _ := json.Marshal(out)
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}
	}()
	return p
}

func newTestBridge(t *testing.T, timeout time.Duration) (*Bridge, *httptest.Server, *atomic.Int32) {
	t.Helper()
	var connected atomic.Int32
	b := NewBridge(Options{
		Timeout: timeout,
		OnConnectionChange: func(c bool) {
			if c {
				connected.Add(1)
			} else {
				connected.Add(-1)
			}
		},
	})
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv, &connected
}

func waitConnected(t *testing.T, b *Bridge, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Connected() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_NoPage(t *testing.T) {
	b := NewBridge(Options{})
	err := b.Call(context.Background(), ChannelGetOpenEmail, nil, nil)
	assert.ErrorIs(t, err, ErrViewUnavailable)
	assert.EqualError(t, err, "webmail view not available")
}

func TestBridge_CallRoundTrip(t *testing.T) {
	b, srv, connected := newTestBridge(t, time.Second)
	page := dialPage(t, srv, func(req request) any {
		return map[string]any{"id": req.ID, "result": map[string]any{"success": true, "selectedCount": 3}}
	})
	waitConnected(t, b, true)
	assert.Equal(t, int32(1), connected.Load())

	var res SelectResult
	err := b.Call(context.Background(), ChannelSelectThreads, SelectParams{By: "sender", Value: "boss@x.com"}, &res)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.SelectedCount)
	assert.Equal(t, 3, *res.SelectedCount)

	req := <-page.requests
	assert.Equal(t, ChannelSelectThreads, req.Channel)
	assert.NotEmpty(t, req.ID)
	data, _ := json.Marshal(req.Data)
	assert.JSONEq(t, `{"by":"sender","value":"boss@x.com"}`, string(data))
}

func TestBridge_PageError(t *testing.T) {
	b, srv, _ := newTestBridge(t, time.Second)
	dialPage(t, srv, func(req request) any {
		return map[string]any{"id": req.ID, "error": "toolbar not found"}
	})
	waitConnected(t, b, true)

	err := b.Call(context.Background(), ChannelBulkAction, ActionParams{Action: "archive"}, nil)
	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, "toolbar not found", err.Error())
}

func TestBridge_Timeout(t *testing.T) {
	b, srv, _ := newTestBridge(t, 50*time.Millisecond)
	dialPage(t, srv, nil)
	waitConnected(t, b, true)

	start := time.Now()
	err := b.Call(context.Background(), ChannelGetVisibleThreads, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "timeout waiting for get-visible-threads-result", err.Error())
	assert.Less(t, time.Since(start), time.Second)
}

func TestBridge_ContextCancel(t *testing.T) {
	b, srv, _ := newTestBridge(t, 5*time.Second)
	dialPage(t, srv, nil)
	waitConnected(t, b, true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Call(ctx, ChannelGetOpenEmail, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridge_DisconnectFailsPending(t *testing.T) {
	b, srv, connected := newTestBridge(t, 5*time.Second)
	page := dialPage(t, srv, nil)
	waitConnected(t, b, true)

	errc := make(chan error, 1)
	go func() { errc <- b.Call(context.Background(), ChannelGetOpenEmail, nil, nil) }()
	<-page.requests
	_ = page.conn.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not fail on disconnect")
	}
	waitConnected(t, b, false)
	assert.Eventually(t, func() bool { return connected.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBridge_NewerPageReplacesOlder(t *testing.T) {
	b, srv, connected := newTestBridge(t, time.Second)
	dialPage(t, srv, func(req request) any {
		return map[string]any{"id": req.ID, "result": map[string]any{"success": true, "selectedCount": 1}}
	})
	waitConnected(t, b, true)

	dialPage(t, srv, func(req request) any {
		return map[string]any{"id": req.ID, "result": map[string]any{"success": true, "selectedCount": 2}}
	})

	require.Eventually(t, func() bool {
		var res SelectResult
		if err := b.Call(context.Background(), ChannelSelectThreads, SelectParams{By: "all"}, &res); err != nil {
			return false
		}
		return res.SelectedCount != nil && *res.SelectedCount == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), connected.Load())
}

func TestBridge_RejectsForeignOrigin(t *testing.T) {
	b := NewBridge(Options{AllowedOrigins: []string{"https://mail.google.com/"}})
	srv := httptest.NewServer(b)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, _, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://evil.example"}})
	assert.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://mail.google.com"}})
	require.NoError(t, err)
	_ = conn.Close()
}
