package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/waabox/ghlogin/internal/auth"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// Printer writes formatted messages. Prompts go to Out as well so stdout
// stays clean for piping.
type Printer struct {
	Out io.Writer
	In  io.Reader

	mu          sync.Mutex
	lastAttempt string
	lastStatus  string
}

// NewPrinter returns a Printer writing to out and reading answers from in.
func NewPrinter(out io.Writer, in io.Reader) *Printer {
	return &Printer{Out: out, In: in}
}

// Info prints an informational message with a cyan arrow.
func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.Out, "  %s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

// Success prints a success message with a green checkmark.
func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintf(p.Out, "  %s %s\n", green("✔"), fmt.Sprintf(format, args...))
}

// Fail prints an error message with a red X.
func (p *Printer) Fail(format string, args ...interface{}) {
	fmt.Fprintf(p.Out, "  %s %s\n", red("✘"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message with a yellow circle.
func (p *Printer) Warn(format string, args ...interface{}) {
	fmt.Fprintf(p.Out, "  %s %s\n", yellow("○"), fmt.Sprintf(format, args...))
}

// Dim prints a dimmed message.
func (p *Printer) Dim(format string, args ...interface{}) {
	fmt.Fprintf(p.Out, "  %s\n", dim(fmt.Sprintf(format, args...)))
}

// OnStateChanged prints the user code once per attempt, every new status
// text, and the outcome. It implements auth.Sink.
func (p *Printer) OnStateChanged(s auth.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch s.Kind {
	case auth.StateAwaitingUserAuthorization:
		if s.Authorization != nil && s.AttemptID != p.lastAttempt {
			p.lastAttempt = s.AttemptID
			fmt.Fprintln(p.Out)
			p.Info("Open %s in your browser", bold(s.Authorization.VerificationURI))
			p.Info("and enter the code %s", bold(s.Authorization.UserCode))
			fmt.Fprintln(p.Out)
		}
		p.status(s.StatusText)
	case auth.StateAwaitingDeviceCode:
		p.status(s.StatusText)
	case auth.StateAuthenticated:
		p.Success("%s", s.StatusText)
		if s.StoreErr != "" {
			p.Warn("The token could not be saved: %s", s.StoreErr)
		}
		p.lastStatus = ""
	case auth.StateFailed:
		p.Fail("%s", s.StatusText)
		if s.Detail != "" {
			p.Dim("%s", s.Detail)
		}
		p.lastStatus = ""
	case auth.StateLoggedOut:
		if s.StatusText != "" {
			p.Warn("%s", s.StatusText)
		}
		p.lastStatus = ""
	}
}

func (p *Printer) status(text string) {
	if text == "" || text == p.lastStatus {
		return
	}
	p.lastStatus = text
	p.Dim("%s", text)
}
