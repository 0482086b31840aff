package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teemow/inboxagent/internal/logging"
)

const (
	// DefaultTimeout bounds a single page call.
	DefaultTimeout = 5 * time.Second

	writeWait      = 10 * time.Second
	maxReplyBytes  = 4 << 20
	pendingReplies = 1
)

// Caller sends one request to the page and decodes its result into out.
type Caller interface {
	Call(ctx context.Context, channel string, payload, out any) error
}

// Options configures a Bridge.
type Options struct {
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration

	// AllowedOrigins lists the Origin headers accepted on upgrade. Requests
	// without an Origin header are always accepted.
	AllowedOrigins []string

	Logger logging.Logger

	// OnConnectionChange is called with true when a page attaches and false
	// when it detaches.
	OnConnectionChange func(connected bool)
}

// Bridge holds at most one page connection. A newly attached page replaces
// the previous one.
type Bridge struct {
	timeout  time.Duration
	logger   logging.Logger
	onChange func(bool)
	upgrader websocket.Upgrader

	mu   sync.Mutex
	page *pageConn
}

// NewBridge creates a Bridge with no page attached.
func NewBridge(opts Options) *Bridge {
	b := &Bridge{
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		onChange: opts.OnConnectionChange,
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	b.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	return b
}

// Connected reports whether a page is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page != nil
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("page upgrade failed", logging.Err(err))
		return
	}
	b.Attach(conn)
}

// Attach serves conn as the current page and blocks until it disconnects.
func (b *Bridge) Attach(conn *websocket.Conn) {
	pc := newPageConn(conn)

	b.mu.Lock()
	prev := b.page
	b.page = pc
	b.mu.Unlock()

	if prev != nil {
		b.logger.Info("replacing attached webmail page")
		prev.close()
	} else if b.onChange != nil {
		b.onChange(true)
	}
	b.logger.Info("webmail page attached", "remote", conn.RemoteAddr().String())

	err := pc.readLoop(b.logger)

	b.mu.Lock()
	current := b.page == pc
	if current {
		b.page = nil
	}
	b.mu.Unlock()

	pc.close()
	if current {
		if b.onChange != nil {
			b.onChange(false)
		}
		b.logger.Info("webmail page detached", logging.Err(err))
	}
}

// Close detaches the current page, failing pending calls.
func (b *Bridge) Close() {
	b.mu.Lock()
	pc := b.page
	b.mu.Unlock()
	if pc != nil {
		pc.close()
	}
}

// Call sends payload on channel and waits for the page's reply. The reply's
// result is decoded into out when out is non-nil.
func (b *Bridge) Call(ctx context.Context, channel string, payload, out any) error {
	b.mu.Lock()
	pc := b.page
	b.mu.Unlock()
	if pc == nil {
		return ErrViewUnavailable
	}

	id := uuid.NewString()
	replies := pc.register(id)
	defer pc.unregister(id)

	data, err := json.Marshal(request{ID: id, Channel: channel, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", channel, err)
	}
	if err := pc.write(data); err != nil {
		return fmt.Errorf("failed to send %s request: %w", channel, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{Channel: channel}
	case <-pc.done:
		return ErrDisconnected
	case r := <-replies:
		if r.Error != "" {
			return &PageError{Channel: channel, Message: r.Error}
		}
		if out == nil || len(r.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", channel, err)
		}
		return nil
	}
}

type pageConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan reply

	done      chan struct{}
	closeOnce sync.Once
}

func newPageConn(conn *websocket.Conn) *pageConn {
	conn.SetReadLimit(maxReplyBytes)
	return &pageConn{
		conn:    conn,
		pending: make(map[string]chan reply),
		done:    make(chan struct{}),
	}
}

func (p *pageConn) register(id string) <-chan reply {
	ch := make(chan reply, pendingReplies)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pageConn) unregister(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *pageConn) deliver(r reply) bool {
	p.mu.Lock()
	ch, ok := p.pending[r.ID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- r:
	default:
	}
	return true
}

func (p *pageConn) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *pageConn) readLoop(logger logging.Logger) error {
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return err
		}
		var r reply
		if err := json.Unmarshal(raw, &r); err != nil || r.ID == "" {
			logger.Warn("ignoring malformed page message", logging.Err(err))
			continue
		}
		if !p.deliver(r) {
			logger.Debug("ignoring late page reply", "id", r.ID)
		}
	}
}

func (p *pageConn) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
