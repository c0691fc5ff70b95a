package main

import (
	"github.com/spf13/cobra"
	"github.com/waabox/ghlogin/internal/console"
	"github.com/waabox/ghlogin/internal/credstore"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved GitHub token",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := console.NewPrinter(cmd.ErrOrStderr(), cmd.InOrStdin())
			if !yes && !printer.AskYesNo("Remove the saved GitHub token? You will have to sign in again.", false) {
				printer.Dim("Logout cancelled.")
				return nil
			}

			a, err := newApp(opts, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Logout(); err != nil {
				printer.Fail("Could not remove the saved token.")
				return err
			}
			printer.Success("Logged out. Removed the saved token from %s.", credstore.Location(a.store))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
