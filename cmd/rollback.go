package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"ivdhub/internal/bootstrap"
	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
	"ivdhub/internal/usecase/pipeline"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore an archived batch and recompute affected metrics",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		execute, _ := cmd.Flags().GetBool("execute")
		batchID, _ := cmd.Flags().GetString("archive-batch-id")
		recomputeDays, _ := cmd.Flags().GetInt("recompute-days")

		result, err := svc.Rollback(ctx, pipeline.RollbackInput{
			DryRun:        dryRun,
			Execute:       execute,
			BatchID:       batchID,
			RecomputeDays: recomputeDays,
		})
		if err != nil {
			return errs.Wrap(err, "rollback")
		}

		mode := "restored"
		if result.DryRun {
			mode = "would restore"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %d products, %d change events (batch %s)\n",
			mode, result.Counts.Products, result.Counts.ChangeEvents, result.BatchID); err != nil {
			return errs.Wrap(err, "write rollback output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().Bool("dry-run", false, "Report exact counts without writing")
	rollbackCmd.Flags().Bool("execute", false, "Perform the restore")
	rollbackCmd.Flags().String("archive-batch-id", "", "Batch id to restore")
	rollbackCmd.Flags().Int("recompute-days", 0, "Widen the metric recompute window to now minus N days")
	_ = rollbackCmd.MarkFlagRequired("archive-batch-id")
}
