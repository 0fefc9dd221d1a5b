package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		strategyName string
		params       string
		maxAttempts  int
	)

	cmd := &cobra.Command{
		Use:   "submit <target-url>",
		Short: "Submit a scrape; prints the owning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.Request{
				Target:      args[0],
				Strategy:    strategyName,
				MaxAttempts: maxAttempts,
			}
			if params != "" {
				if !json.Valid([]byte(params)) {
					return fmt.Errorf("--params is not valid JSON")
				}
				req.Params = json.RawMessage(params)
			}

			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				sub, err := a.eng.SubmitJob(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			})
		},
	}

	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "html", "fetch strategy")
	cmd.Flags().StringVarP(&params, "params", "p", "", "strategy parameters as a JSON object")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt budget (default engine.max_attempts)")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		state        string
		strategyName string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show a job, or list jobs and per-state counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, modeClient, func(a *app) error {
				if len(args) == 1 {
					jobID, err := id.ParseJobID(args[0])
					if err != nil {
						return fmt.Errorf("invalid job id: %w", err)
					}
					j, err := a.eng.Get(ctx, jobID)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), j)
				}

				listOpts := job.ListOpts{
					State:    job.State(state),
					Strategy: strategyName,
					Limit:    limit,
				}
				if listOpts.State != "" && !listOpts.State.Valid() {
					return fmt.Errorf("unknown state %q", state)
				}
				jobs, err := a.eng.List(ctx, listOpts)
				if err != nil {
					return err
				}
				counts, err := a.eng.Stats(ctx)
				if err != nil {
					return err
				}

				out := struct {
					Jobs       []*job.Job          `json:"jobs"`
					Counts     map[job.State]int64 `json:"counts"`
					QueueDepth *int64              `json:"queue_depth,omitempty"`
				}{Jobs: jobs, Counts: counts}
				if n, ok := a.queueDepth(ctx); ok {
					out.QueueDepth = &n
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter the list by state")
	cmd.Flags().StringVar(&strategyName, "strategy", "", "filter the list by strategy")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum jobs to list")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Move an active job to dead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				j, err := a.eng.Cancel(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), j)
			})
		},
	}
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <job-id>",
		Short: "Resubmit a dead job as a new job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				sub, err := a.eng.Replay(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			})
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				if err := a.store.Migrate(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", a.cfg.Store.Driver)
				return err
			})
		},
	}
}
