package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"ivdhub/internal/bootstrap"
	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
	"ivdhub/internal/usecase/pipeline"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and ingest enabled sources",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		once, _ := cmd.Flags().GetBool("once")
		sourceKey, _ := cmd.Flags().GetString("source")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = time.Hour
		}

		pass := func() error {
			if sourceKey != "" {
				result, err := svc.RunSource(ctx, pipeline.RunInput{SourceKey: sourceKey, DryRun: dryRun})
				if err != nil {
					return err
				}
				printRunResult(cmd, result)
				return nil
			}
			results, err := svc.RunAll(ctx, dryRun)
			if err != nil {
				return err
			}
			for _, result := range results {
				printRunResult(cmd, result)
			}
			return nil
		}

		if err := pass(); err != nil {
			return errs.Wrap(err, "sync pass")
		}
		if once {
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := pass(); err != nil {
					logging.Error(ctx, "sync pass failed", slog.Any("err", errs.Loggable(err)))
				}
			}
		}
	}),
}

func printRunResult(cmd *cobra.Command, result pipeline.RunResult) {
	counters := result.Counters
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s run=%s status=%s fetched=%d parsed=%d parse_failed=%d anchored=%d pending=%d changes=%d conflicts=%d di_bound=%d di_pending=%d di_skipped=%d\n",
		result.SourceKey, result.SourceRunID, result.Status,
		counters.Fetched, counters.Parsed, counters.ParseFailed,
		counters.Anchored, counters.AnchorPending, counters.Changes, counters.Conflicts,
		counters.DIBound, counters.DIPending, counters.DISkipped)
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("once", false, "Run a single pass and exit")
	syncCmd.Flags().String("source", "", "Restrict to one source key")
	syncCmd.Flags().Bool("dry-run", false, "Fetch and parse without writing")
	syncCmd.Flags().Duration("interval", time.Hour, "Pass interval when running continuously")
}
