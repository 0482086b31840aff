package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	var bridgeAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tool catalog over MCP stdio",
		Long: `Expose the agent's tools to another MCP client over standard input/output.
No model is involved: the client drives the tools directly. The page tools need
a webmail tab attached through --bridge-addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(bridgeAddr)
		},
	}

	cmd.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "Serve the DOM bridge socket on this address (e.g. localhost:8080)")

	return cmd
}

func runMCP(bridgeAddr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{telemetry: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if bridgeAddr != "" {
		stop, err := a.serveBridge(bridgeAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = stop(shutdownCtx)
		}()
	}

	mcpSrv := mcpserver.NewMCPServer("inboxagent", version,
		mcpserver.WithToolCapabilities(false),
	)
	a.registry.RegisterMCP(mcpSrv)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
	case <-ctx.Done():
	}
	return nil
}
