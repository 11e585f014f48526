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

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Conflict case commands",
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open conflict cases with their candidates",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		views, err := svc.ListOpenConflicts(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "list conflicts")
		}
		for _, view := range views {
			fmt.Fprintf(cmd.OutOrStdout(), "case %d registration=%d field=%s\n",
				view.Case.ConflictCaseID, view.Case.RegistrationID, view.Case.Field)
			for _, cand := range view.Candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d) %q source=%s grade=%s observed=%s\n",
					cand.Position, cand.Value, cand.SourceKey, cand.EvidenceGrade,
					cand.ObservedAt.Format("2006-01-02"))
			}
		}
		return nil
	}),
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an open conflict case with a candidate value",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		caseID, _ := cmd.Flags().GetUint64("case")
		value, _ := cmd.Flags().GetString("value")
		reason, _ := cmd.Flags().GetString("reason")
		resolvedBy, _ := cmd.Flags().GetString("resolved-by")

		if err := svc.ResolveConflict(ctx, pipeline.ResolveConflictInput{
			CaseID:     caseID,
			Value:      value,
			ResolvedBy: resolvedBy,
			Reason:     reason,
		}); err != nil {
			return errs.Wrap(err, "resolve conflict")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "case %d resolved with %q\n", caseID, value)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(conflictCmd)
	conflictCmd.AddCommand(conflictListCmd)
	conflictCmd.AddCommand(conflictResolveCmd)

	conflictListCmd.Flags().Int("limit", 100, "Maximum cases to list")

	conflictResolveCmd.Flags().Uint64("case", 0, "Conflict case id")
	conflictResolveCmd.Flags().String("value", "", "Winning candidate value")
	conflictResolveCmd.Flags().String("reason", "", "Reason for the manual resolution")
	conflictResolveCmd.Flags().String("resolved-by", "operator", "Resolver identity")
	_ = conflictResolveCmd.MarkFlagRequired("case")
	_ = conflictResolveCmd.MarkFlagRequired("value")
	_ = conflictResolveCmd.MarkFlagRequired("reason")
}
