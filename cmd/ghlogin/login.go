package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/console"
	"github.com/waabox/ghlogin/internal/tui"
)

// errLoginFailed is returned after the outcome was already shown to the user.
var errLoginFailed = errors.New("login did not complete")

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var noTUI bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to GitHub",
		Long: `Sign in to GitHub with the device flow. A code is shown; enter it at the
verification page GitHub opens in your browser. The token is saved for later runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useTUI := !noTUI && isTerminal(os.Stdout)
			a, err := newApp(opts, cmd.ErrOrStderr(), useTUI)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireClientID(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printer := console.NewPrinter(cmd.ErrOrStderr(), cmd.InOrStdin())
			a.session.Restore(ctx)
			if id, ok := a.session.CurrentIdentity(); ok {
				printer.Success("Already logged in as %s.", id.Username)
				return nil
			}

			var final auth.State
			if useTUI {
				final, err = tui.Run(a.session, a.log)
				if err != nil {
					return err
				}
				printOutcome(printer, final)
			} else {
				final, err = consoleLogin(ctx, a.session, printer)
				if err != nil {
					return err
				}
			}
			if final.Kind != auth.StateAuthenticated {
				return errLoginFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "print the code instead of opening the terminal dialog")
	return cmd
}

// consoleLogin runs one attempt, printing progress, until it ends or ctx is cancelled.
func consoleLogin(ctx context.Context, session *auth.Session, printer *console.Printer) (auth.State, error) {
	unsubscribe := session.Subscribe(printer)
	defer unsubscribe()

	h, err := session.Login(context.WithoutCancel(ctx))
	if errors.Is(err, auth.ErrAlreadyAuthenticated) {
		return session.State(), nil
	}
	if err != nil {
		return session.State(), err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Cancel()
	}
	return h.Wait(context.Background())
}

// printOutcome repeats the result on the console once the dialog is gone.
func printOutcome(printer *console.Printer, s auth.State) {
	switch s.Kind {
	case auth.StateAuthenticated:
		printer.Success("%s", s.StatusText)
		if s.StoreErr != "" {
			printer.Warn("The token could not be saved: %s", s.StoreErr)
		}
	case auth.StateFailed:
		printer.Fail("%s", s.StatusText)
		if s.Detail != "" {
			printer.Dim("%s", s.Detail)
		}
	default:
		printer.Warn("Login cancelled.")
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
