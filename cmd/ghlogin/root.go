package main

import (
	"github.com/spf13/cobra"
	"github.com/waabox/ghlogin/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ghlogin",
		Short: "Sign in to GitHub with the OAuth device flow",
		Long: `ghlogin signs you in to GitHub with the OAuth device flow and keeps the
token for later runs.

Environment Variables:
  GHLOGIN_CLIENT_ID      OAuth App client ID (required for login)
  GHLOGIN_SCOPE          requested scope (default: public_repo)
  GHLOGIN_STORE_BACKEND  "file" or "keyring" (default: file)
  GHLOGIN_TOKEN_PATH     credential file for the file backend
  GHLOGIN_LISTEN         address for "ghlogin serve"
  GHLOGIN_LOG_LEVEL      debug, info, warn or error`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides log.level)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}
