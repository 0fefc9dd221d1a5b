package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

// NewRootCmd creates the scrapper command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "scrapper",
		Short:         "Web scraping job engine with deduplication, retries and schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newCancelCmd(opts),
		newReplayCmd(opts),
		newMigrateCmd(opts),
		newScheduleCmd(opts),
	)
	return rootCmd
}

// withApp loads the config, wires an app for m, runs fn and closes it.
func (o *rootOptions) withApp(ctx context.Context, m mode, fn func(*app) error) error {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("close", "error", cerr)
		}
	}()
	return fn(a)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
