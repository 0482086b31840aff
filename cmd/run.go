package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/agent"
)

func newRunCmd() *cobra.Command {
	var (
		bridgeAddr string
		savedName  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a single prompt",
		Long: `Run one agent turn and print its progress: model text as it streams,
each tool call, and failed tool results. Ctrl-C cancels the turn.

Use --prompt to run a saved prompt by id or name instead of an inline prompt.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			return runOnce(prompt, savedName, bridgeAddr, verbose)
		},
	}

	cmd.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "Serve the DOM bridge socket on this address while the turn runs (e.g. localhost:8080)")
	cmd.Flags().StringVarP(&savedName, "prompt", "p", "", "Run a saved prompt by id or name")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print tool results")

	return cmd
}

func runOnce(prompt, savedName, bridgeAddr string, verbose bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{model: true, telemetry: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if savedName != "" {
		p, err := a.prompts.Find(savedName)
		if err != nil {
			return err
		}
		prompt = p.Content
	}
	if prompt == "" {
		return errors.New("a prompt is required")
	}

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

	printer := newStepPrinter(os.Stdout, verbose)
	a.surface.SetProgress(printer.print)

	res, err := a.surface.StartTurn(ctx, prompt, nil)
	printer.finish()
	if err != nil {
		return err
	}
	if res.State == agent.StateCancelled {
		fmt.Fprintln(os.Stderr, "turn cancelled")
	}
	return nil
}
