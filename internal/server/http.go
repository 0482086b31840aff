package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultAPIAddr is the default address of the API server.
	DefaultAPIAddr = "localhost:8080"

	// DefaultAPIReadHeaderTimeout bounds reading request headers. There is no
	// write timeout: turns and event streams are long-lived.
	DefaultAPIReadHeaderTimeout = 10 * time.Second

	// DefaultAPIIdleTimeout is the keep-alive idle timeout.
	DefaultAPIIdleTimeout = 120 * time.Second
)

// APIServer serves the agent API. Request contexts derive from the server
// context, so Shutdown of the ServerContext cancels running turns.
type APIServer struct {
	httpServer *http.Server
	addr       string
}

// NewAPIServer creates the API server for sc.
func NewAPIServer(addr string, sc *ServerContext, health *HealthChecker) *APIServer {
	if addr == "" {
		addr = DefaultAPIAddr
	}
	return &APIServer{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(sc, health),
			ReadHeaderTimeout: DefaultAPIReadHeaderTimeout,
			IdleTimeout:       DefaultAPIIdleTimeout,
			BaseContext:       func(net.Listener) context.Context { return sc.Context() },
		},
	}
}

// Start listens on the configured address and blocks until the server
// stops. It returns nil after a graceful shutdown.
func (s *APIServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until the server stops.
func (s *APIServer) Serve(ln net.Listener) error {
	s.addr = ln.Addr().String()
	slog.Info("starting API server", "addr", s.addr)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server listens on.
func (s *APIServer) Addr() string {
	return s.addr
}
