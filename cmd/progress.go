package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/teemow/inboxagent/internal/agent"
)

// maxResultLines bounds how much of a tool result is echoed to the terminal.
const maxResultLines = 12

// stepPrinter renders progress steps for the terminal. Response steps are
// text deltas and are printed as they arrive; the other steps start on their
// own line.
type stepPrinter struct {
	w       io.Writer
	verbose bool

	mu         sync.Mutex
	inResponse bool
}

func newStepPrinter(w io.Writer, verbose bool) *stepPrinter {
	return &stepPrinter{w: w, verbose: verbose}
}

func (p *stepPrinter) print(step agent.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch step.Type {
	case agent.StepUser:
		return
	case agent.StepResponse:
		_, _ = io.WriteString(p.w, step.Content)
		p.inResponse = true
		return
	}

	p.endResponse()
	switch step.Type {
	case agent.StepToolCall:
		fmt.Fprintf(p.w, "  ↳ %s\n", step.Content)
	case agent.StepToolResult:
		if step.IsError {
			fmt.Fprintf(p.w, "    ✗ %s\n", step.Content)
			return
		}
		if p.verbose {
			fmt.Fprintln(p.w, indent(truncateLines(step.Content, maxResultLines), "    "))
		}
	}
}

// finish terminates a response left open by the last step.
func (p *stepPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endResponse()
}

func (p *stepPrinter) endResponse() {
	if p.inResponse {
		fmt.Fprintln(p.w)
		p.inResponse = false
	}
}

func truncateLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
