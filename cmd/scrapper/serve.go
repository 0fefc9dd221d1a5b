package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rahulsharmaah/content-scrapper/api"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr      string
		noWorkers bool
		migrate   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m := modeServe
			if noWorkers {
				m = modeAPI
			}
			return opts.withApp(ctx, m, func(a *app) error {
				if addr != "" {
					a.cfg.Server.Addr = addr
				}
				if migrate {
					if err := a.store.Migrate(ctx); err != nil {
						return err
					}
				}
				return serve(ctx, a)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the API only; leave the queue to worker processes")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run store migrations before serving")
	return cmd
}

// serve runs the engine and the HTTP server until ctx is cancelled, then
// shuts both down.
func serve(ctx context.Context, a *app) error {
	gin.SetMode(gin.ReleaseMode)

	handler := api.New(a.eng,
		api.WithLogger(a.logger),
		api.WithGatherer(a.registry),
	).Handler()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if err := a.eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.eng.Stop(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("stop engine: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
