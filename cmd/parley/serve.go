package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/remote"
)

func newServeCmd(opts *config.Options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an agent to remote parley clients",
		Long: `Serve the agent selected by --model or --model-file over the remote agent
protocol (JSON-RPC 2.0).

Without --listen the agent answers line-delimited requests on stdin/stdout,
so another parley can use it with "endpoint: stdio:parley serve ...".
With --listen it accepts websocket connections, one agent per connection,
for "endpoint: ws://host:port/".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := startServices(ctx, *opts)
			if err != nil {
				return err
			}
			defer svc.close()

			deps := agent.Deps{
				Logger:      svc.logger,
				Tracer:      svc.tracer,
				Meter:       svc.meter,
				Credentials: config.CredentialsFromEnv(),
			}
			newAgent := func() (remote.Handler, error) {
				a, _, err := agent.Create(ctx, *opts, true, deps)
				return a, err
			}

			if listen == "" {
				h, err := newAgent()
				if err != nil {
					return err
				}
				defer func() {
					if err := h.(agent.Agent).Shutdown(); err != nil {
						svc.logger.Warn("failed to shut down agent", "error", err)
					}
				}()
				return remote.ServeStdio(ctx, h, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			// Fail fast on a bad model before accepting connections.
			first, err := newAgent()
			if err != nil {
				return err
			}
			if err := first.(agent.Agent).Shutdown(); err != nil {
				svc.logger.Warn("failed to shut down startup check agent", "error", err)
			}
			return serveWebSocket(ctx, listen, remote.WebSocketHandler(newAgent, svc.logger), svc)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "websocket listen address such as :8765 (default serve on stdio)")
	return cmd
}

func serveWebSocket(ctx context.Context, addr string, handler http.Handler, svc *services) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svc.logger.Info("serving remote agent", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
