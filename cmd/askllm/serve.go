package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upb/askllm/routes"
)

const defaultShutdownTimeout = 10 * time.Second

func serveCmd(opts *options, setup setupFunc) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the HTTP API:

  POST /api/v1/ask          forward a prompt
  GET  /api/v1/providers    configured aliases
  GET  /api/v1/audit        recent audit entries (when ASKLLM_AUDIT_DSN is set)
  GET  /healthz, /readyz    health checks
  GET  /metrics             Prometheus metrics (when METRICS_ENABLED)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			if addr == "" {
				addr = deps.Config.Server.Address()
			}
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			srv := &http.Server{
				Handler:           routes.SetupRoutes(deps),
				ReadTimeout:       deps.Config.Server.ReadTimeout,
				ReadHeaderTimeout: deps.Config.Server.ReadTimeout,
				WriteTimeout:      deps.Config.Server.WriteTimeout,
			}

			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				deps.Logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))
				if opts.onListening != nil {
					opts.onListening(listener.Addr())
				}
				if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				deps.Logger.Info("shutting down HTTP server")

				timeout := deps.Config.Server.ShutdownTimeout
				if timeout <= 0 {
					timeout = defaultShutdownTimeout
				}
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				deps.Logger.Error("server stopped with error", zap.Error(err))
				return err
			}
			deps.Logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default SERVER_HOST:PORT)")
	return cmd
}
