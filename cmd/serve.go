package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"iflow_prompt_generator/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := newServer(a)
			if err != nil {
				return err
			}

			listen := a.cfg.ServerAddr
			if addr != "" {
				listen = addr
			}
			httpSrv := &http.Server{
				Addr:              listen,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				a.logger.Info("starting web server", "addr", listen)
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down web server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server_addr)")
	return cmd
}

func newServer(a *app) (*server.Server, error) {
	agent, err := a.agent()
	if err != nil {
		return nil, err
	}
	return server.New(agent, a.extractor(), server.Config{
		MaxUploadBytes: a.cfg.MaxUploadBytes(),
		Guard:          a.guard(),
		Logger:         a.logger,
	})
}
