package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring scrapes",
	}
	cmd.AddCommand(
		newScheduleCreateCmd(opts),
		newScheduleListCmd(opts),
		newScheduleActionCmd(opts, "pause", "Stop firing a schedule", func(a *app, cmd *cobra.Command, sid id.ScheduleID) (any, error) {
			return a.eng.PauseSchedule(cmd.Context(), sid)
		}),
		newScheduleActionCmd(opts, "resume", "Resume a paused schedule from its next slot", func(a *app, cmd *cobra.Command, sid id.ScheduleID) (any, error) {
			return a.eng.ResumeSchedule(cmd.Context(), sid)
		}),
		newScheduleActionCmd(opts, "delete", "Remove a schedule", func(a *app, cmd *cobra.Command, sid id.ScheduleID) (any, error) {
			if err := a.eng.DeleteSchedule(cmd.Context(), sid); err != nil {
				return nil, err
			}
			return map[string]string{"deleted": sid.String()}, nil
		}),
	)
	return cmd
}

func newScheduleCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		name         string
		spec         string
		strategyName string
		params       string
	)

	cmd := &cobra.Command{
		Use:   "create <target-url>",
		Short: "Register a recurring scrape",
		Example: `  scrapper schedule create https://example.com/news --name news --spec @daily
  scrapper schedule create https://example.com/feed --name feed --spec "0 */6 * * *" --strategy raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.ScheduleRequest{
				Name:     name,
				Spec:     spec,
				Target:   args[0],
				Strategy: strategyName,
			}
			if params != "" {
				if !json.Valid([]byte(params)) {
					return fmt.Errorf("--params is not valid JSON")
				}
				req.Params = json.RawMessage(params)
			}
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				e, err := a.eng.CreateSchedule(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "unique schedule name")
	cmd.Flags().StringVar(&spec, "spec", "@daily", "cron expression or descriptor (@daily, @weekly, @monthly, @every 6h)")
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "html", "fetch strategy")
	cmd.Flags().StringVarP(&params, "params", "p", "", "strategy parameters as a JSON object")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newScheduleListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				entries, err := a.eng.ListSchedules(cmd.Context())
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []*schedule.Entry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func newScheduleActionCmd(opts *rootOptions, use, short string, fn func(*app, *cobra.Command, id.ScheduleID) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <schedule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := id.ParseScheduleID(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule id: %w", err)
			}
			return opts.withApp(cmd.Context(), modeClient, func(a *app) error {
				out, err := fn(a, cmd, sid)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}
