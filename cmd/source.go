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

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Source catalog commands",
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources with grade and runtime state",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		views, err := svc.ListSources(ctx)
		if err != nil {
			return errs.Wrap(err, "list sources")
		}
		for _, view := range views {
			state := "disabled"
			if view.Config.Enabled {
				state = "enabled"
			}
			role := ""
			if view.Definition.Authoritative {
				role = " authoritative"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s grade=%s %s%s schedule=%s url=%s\n",
				view.Definition.Key, view.Definition.Grade, state, role,
				view.Config.Schedule, view.Config.FeedURL)
		}
		return nil
	}),
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable <key>",
	Short: "Enable a source",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		if err := svc.SetSourceEnabled(ctx, cmd.Flags().Arg(0), true); err != nil {
			return errs.Wrap(err, "enable source")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "source %s enabled\n", cmd.Flags().Arg(0))
		return nil
	}),
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable <key>",
	Short: "Disable a source",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		if err := svc.SetSourceEnabled(ctx, cmd.Flags().Arg(0), false); err != nil {
			return errs.Wrap(err, "disable source")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "source %s disabled\n", cmd.Flags().Arg(0))
		return nil
	}),
}

var sourceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single ingestion pass for one source",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		sourceKey, _ := cmd.Flags().GetString("source")
		sourceRunID, _ := cmd.Flags().GetString("source-run-id")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := svc.RunSource(ctx, pipeline.RunInput{
			SourceKey:   sourceKey,
			SourceRunID: sourceRunID,
			DryRun:      dryRun,
		})
		if err != nil {
			return errs.Wrap(err, "run source")
		}
		printRunResult(cmd, result)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceEnableCmd)
	sourceCmd.AddCommand(sourceDisableCmd)
	sourceCmd.AddCommand(sourceRunCmd)

	sourceRunCmd.Flags().String("source", "", "Source key to run")
	sourceRunCmd.Flags().String("source-run-id", "", "Run id (generated when omitted)")
	sourceRunCmd.Flags().Bool("dry-run", false, "Fetch and parse without writing")
	_ = sourceRunCmd.MarkFlagRequired("source")
}
