package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/waabox/ghlogin/internal/auth"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid GitHub token is saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.Restore(cmd.Context())
			snap := a.session.Snapshot()
			if jsonOutput {
				return writeStatusJSON(cmd.OutOrStdout(), snap)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatusHuman(snap))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON instead of human-readable text")
	return cmd
}

func writeStatusJSON(w io.Writer, snap auth.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func formatStatusHuman(snap auth.Snapshot) string {
	if snap.State == auth.StateAuthenticated {
		return fmt.Sprintf("Logged in to GitHub as %s.", snap.Username)
	}
	return "Not logged in. Run 'ghlogin login' to sign in."
}
