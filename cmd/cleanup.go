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

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive and delete hidden product rows",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		execute, _ := cmd.Flags().GetBool("execute")
		sourceKey, _ := cmd.Flags().GetString("source")
		reason, _ := cmd.Flags().GetString("reason")
		batchID, _ := cmd.Flags().GetString("archive-batch-id")
		beforeRaw, _ := cmd.Flags().GetString("before")

		var before time.Time
		if beforeRaw != "" {
			parsed, err := time.Parse("2006-01-02", beforeRaw)
			if err != nil {
				return errs.Wrap(err, "parse --before")
			}
			before = parsed
		}

		result, err := svc.Cleanup(ctx, pipeline.CleanupInput{
			DryRun:    dryRun,
			Execute:   execute,
			SourceKey: sourceKey,
			Reason:    reason,
			BatchID:   batchID,
			Before:    before,
		})
		if err != nil {
			return errs.Wrap(err, "cleanup")
		}

		mode := "archived"
		if result.DryRun {
			mode = "would archive"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %d products, %d change events (batch %s)\n",
			mode, result.Counts.Products, result.Counts.ChangeEvents, result.BatchID); err != nil {
			return errs.Wrap(err, "write cleanup output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Bool("dry-run", false, "Report exact counts without writing")
	cleanupCmd.Flags().Bool("execute", false, "Perform the archive and delete")
	cleanupCmd.Flags().String("source", "", "Restrict to products from one source key")
	cleanupCmd.Flags().String("reason", "", "Operator reason recorded on the batch")
	cleanupCmd.Flags().String("archive-batch-id", "", "Batch id (generated when omitted)")
	cleanupCmd.Flags().String("before", "", "Only rows created before this date (YYYY-MM-DD)")
}
