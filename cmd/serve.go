package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/server"
)

// ServeConfig holds the listener settings of the serve command.
type ServeConfig struct {
	// Addr is the API address, also serving /dom/ws.
	Addr string

	// MetricsEnabled starts the metrics server on MetricsAddr.
	MetricsEnabled bool
	MetricsAddr    string
}

func newServeCmd() *cobra.Command {
	var (
		httpAddr       string
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the agent HTTP API. The webmail page script connects to /dom/ws;
clients start turns with POST /api/turns and follow progress on
GET /api/events (server-sent events). Starting a turn cancels the one in flight.

Prometheus metrics are served on a dedicated port (default localhost:9090).

Defaults come from the config file (server.addr, metrics.enabled, metrics.addr).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := ServeConfig{
				Addr:           cfg.Server.Addr,
				MetricsEnabled: cfg.Metrics.Enabled,
				MetricsAddr:    cfg.Metrics.Addr,
			}
			if cmd.Flags().Changed("http-addr") {
				sc.Addr = httpAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				sc.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				sc.MetricsAddr = metricsAddr
			}
			return runServe(sc)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", server.DefaultAPIAddr, "HTTP API address")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

func runServe(sc ServeConfig) error {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{model: true, telemetry: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	serverContext, err := server.NewServerContext(ctx, server.Dependencies{
		Surface:        a.surface,
		Registry:       a.registry,
		Bridge:         a.bridge,
		Prompts:        a.prompts,
		Metrics:        a.provider.Metrics(),
		Logger:         a.logger,
		MailAuthorized: a.mailAuthorized,
		Model:          a.modelName(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}

	health := server.NewHealthChecker(serverContext)
	api := server.NewAPIServer(sc.Addr, serverContext, health)

	var metricsServer *server.MetricsServer
	if sc.MetricsEnabled && a.provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    sc.MetricsAddr,
			InstrumentationProvider: a.provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(api.Start)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdownServers(serverContext, health, api, metricsServer)
	})

	fmt.Fprintf(os.Stderr, "inboxagent API listening on %s (model %s). Press Ctrl+C to stop.\n", sc.Addr, a.modelName())

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

// shutdownServers marks the server not ready, cancels the turn in flight and
// drains both listeners.
func shutdownServers(sc *server.ServerContext, health *server.HealthChecker, api *server.APIServer, metrics *server.MetricsServer) error {
	health.SetReady(false)
	_ = sc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("API server shutdown failed", logging.Err(err))
		firstErr = err
	}
	if metrics != nil {
		if err := metrics.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
