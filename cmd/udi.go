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

var udiCmd = &cobra.Command{
	Use:   "udi",
	Short: "UDI binding maintenance commands",
}

var udiPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote reversible bindings whose claimed registration now resolves",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		result, err := svc.PromoteUDI(ctx, udiInputFromFlags(cmd))
		if err != nil {
			return errs.Wrap(err, "promote udi bindings")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked=%d promoted=%d dry_run=%t\n",
			result.Checked, result.Promoted, result.DryRun)
		return nil
	}),
}

var udiAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit device bindings from a run against their evidence",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		result, err := svc.AuditUDI(ctx, udiInputFromFlags(cmd))
		if err != nil {
			return errs.Wrap(err, "audit udi bindings")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked=%d missing_evidence=%d mismatched=%d unbound=%d dry_run=%t\n",
			result.Checked, result.MissingEvidence, result.Mismatched, result.Unbound, result.DryRun)
		return nil
	}),
}

var udiParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Extract allowlisted structured attributes onto device variants",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		result, err := svc.ExtractUDIParams(ctx, udiInputFromFlags(cmd))
		if err != nil {
			return errs.Wrap(err, "extract udi params")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d updated=%d resumed=%t dry_run=%t\n",
			result.Scanned, result.Updated, result.Resumed, result.DryRun)
		return nil
	}),
}

func udiInputFromFlags(cmd *cobra.Command) pipeline.UDIInput {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	execute, _ := cmd.Flags().GetBool("execute")
	sourceRunID, _ := cmd.Flags().GetString("source-run-id")
	return pipeline.UDIInput{
		DryRun:      dryRun,
		Execute:     execute,
		SourceRunID: sourceRunID,
	}
}

func init() {
	rootCmd.AddCommand(udiCmd)
	for _, sub := range []*cobra.Command{udiPromoteCmd, udiAuditCmd, udiParamsCmd} {
		udiCmd.AddCommand(sub)
		sub.Flags().Bool("dry-run", false, "Report counts without writing")
		sub.Flags().Bool("execute", false, "Apply the changes")
		sub.Flags().String("source-run-id", "", "Run whose records to process")
		_ = sub.MarkFlagRequired("source-run-id")
	}
}
