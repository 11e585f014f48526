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

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Daily metric commands",
}

var metricsRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute daily metrics from the change event stream",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		sinceRaw, _ := cmd.Flags().GetString("since")
		since, err := time.Parse("2006-01-02", sinceRaw)
		if err != nil {
			return errs.Wrap(err, "parse --since")
		}

		if err := svc.RecomputeMetricsSince(ctx, since); err != nil {
			return errs.Wrap(err, "recompute metrics")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "metrics recomputed since %s\n", sinceRaw); err != nil {
			return errs.Wrap(err, "write metrics output")
		}
		return nil
	}),
}

var metricsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List daily metric rows",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		rows, err := svc.ListMetrics(ctx, from, to)
		if err != nil {
			return errs.Wrap(err, "list metrics")
		}
		for _, row := range rows {
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s new=%d updates=%d cancellations=%d expirations=%d conflicts=%d pending=%d devices=%d\n",
				row.Day, row.NewRegistrations, row.Updates, row.Cancellations, row.Expirations,
				row.ConflictsOpened, row.PendingOpened, row.DevicesBound)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsRecomputeCmd)
	metricsCmd.AddCommand(metricsListCmd)

	metricsRecomputeCmd.Flags().String("since", "", "Recompute from this date (YYYY-MM-DD)")
	_ = metricsRecomputeCmd.MarkFlagRequired("since")

	metricsListCmd.Flags().String("from", "", "Start day (YYYY-MM-DD)")
	metricsListCmd.Flags().String("to", "", "End day (YYYY-MM-DD)")
}
