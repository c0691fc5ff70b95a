package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/waabox/ghlogin/internal/web"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login session over a local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireClientID(); err != nil {
				a.log.Warn().Err(err).Msg("login will fail until a client ID is configured")
			}
			if listen == "" {
				listen = a.cfg.Server.ListenOrDefault()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.session.Restore(ctx)
			srv := web.NewServer(a.session, a.log, debug)
			defer srv.Close()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Listen(ctx, listen)
			})
			g.Go(func() error {
				<-ctx.Done()
				return a.session.Close(context.Background())
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.log.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&debug, "debug", false, "run gin in debug mode")
	return cmd
}
