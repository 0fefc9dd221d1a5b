package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the queue and execute scrape attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Engine.Concurrency = concurrency
			}

			a, err := newApp(ctx, cfg, modeWorker)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			a.logger.Info("worker running", slog.Int("concurrency", cfg.Engine.Concurrency))

			<-ctx.Done()
			return a.eng.Stop(context.WithoutCancel(ctx))
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "dequeue loops (overrides engine.concurrency)")
	return cmd
}
