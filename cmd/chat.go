package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/agent"
	"github.com/teemow/inboxagent/internal/prompts"
)

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

const chatHelp = `Commands:
  /reset          forget the conversation
  /prompts        list saved prompts
  /run <name>     run a saved prompt by id or name
  /save <name>    save the last prompt under name
  /help           show this help
  exit            quit

Ctrl-C cancels the turn in flight; at the prompt it quits.`

func newChatCmd() *cobra.Command {
	var (
		bridgeAddr string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent",
		Long: `Start an interactive conversation. Each line is a turn on top of the
conversation so far. Ctrl-C cancels the turn in flight.

` + chatHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(bridgeAddr, verbose)
		},
	}

	cmd.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "Serve the DOM bridge socket on this address (e.g. localhost:8080)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print tool results")

	return cmd
}

func runChat(bridgeAddr string, verbose bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, appOptions{model: true, telemetry: true})
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

	printer := newStepPrinter(os.Stdout, verbose)
	a.surface.SetProgress(printer.print)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	c := &chat{
		ctx:     ctx,
		app:     a,
		out:     os.Stdout,
		printer: printer,
		signals: signals,
	}
	fmt.Printf("inboxagent %s, model %s (type /help for commands)\n\n", version, a.modelName())
	return c.loop(readLines(os.Stdin))
}

// readLines feeds the lines of r to the returned channel, which is closed
// at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

type chat struct {
	ctx     context.Context
	app     *app
	out     io.Writer
	printer *stepPrinter
	signals <-chan os.Signal

	lastPrompt string
}

func (c *chat) loop(lines <-chan string) error {
	for {
		fmt.Fprint(c.out, "You: ")

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out, "\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		case <-c.signals:
			fmt.Fprintln(c.out, "\nGoodbye!")
			return nil
		}

		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		if strings.HasPrefix(line, "/") {
			c.command(line)
			continue
		}
		c.turn(line)
	}
}

func (c *chat) command(line string) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	store := c.app.prompts

	switch name {
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/reset":
		c.app.surface.Reset()
		fmt.Fprintln(c.out, "Conversation cleared.")
	case "/prompts":
		list, err := store.List()
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		printPrompts(c.out, list)
	case "/run":
		if arg == "" {
			fmt.Fprintln(c.out, "Usage: /run <name>")
			return
		}
		p, err := store.Find(arg)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Running %q\n", p.Name)
		c.turn(p.Content)
	case "/save":
		if arg == "" || c.lastPrompt == "" {
			fmt.Fprintln(c.out, "Usage: /save <name>, after sending a prompt")
			return
		}
		p, err := store.Save(arg, c.lastPrompt)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Saved %q (%s)\n", p.Name, p.ID)
	default:
		fmt.Fprintf(c.out, "Unknown command %s, type /help\n", name)
	}
}

// turn runs prompt on top of the conversation. An interrupt cancels the
// turn and returns to the prompt.
func (c *chat) turn(prompt string) {
	c.lastPrompt = prompt

	type outcome struct {
		res agent.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.app.surface.Continue(c.ctx, prompt)
		done <- outcome{res, err}
	}()

	fmt.Fprintln(c.out)
	var o outcome
	select {
	case o = <-done:
	case <-c.signals:
		c.app.surface.Cancel()
		o = <-done
	}
	c.printer.finish()

	switch {
	case o.err != nil:
		fmt.Fprintf(c.out, "Error: %v\n", o.err)
	case o.res.State == agent.StateCancelled:
		fmt.Fprintln(c.out, "(cancelled)")
	}
	fmt.Fprintln(c.out)
}

func printPrompts(w io.Writer, list []prompts.Prompt) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No saved prompts.")
		return
	}
	for _, p := range list {
		fmt.Fprintf(w, "  %s  %s\n      %s\n", shortID(p.ID), p.Name, firstLine(p.Content))
	}
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " …"
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
