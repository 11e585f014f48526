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

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Pending queue commands",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open pending items",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.ListPendingItems(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "list pending items")
		}
		for _, item := range items {
			line := fmt.Sprintf("#%d kind=%s source=%s key=%s reason=%s attempts=%d",
				item.PendingItemID, item.Kind, item.SourceKey, item.DedupeKey, item.ReasonCode, item.Attempts)
			if item.NextRetryAt != nil {
				line += " next_retry=" + item.NextRetryAt.Format("2006-01-02T15:04:05Z07:00")
			}
			if item.Terminal {
				line += " terminal"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}),
}

var pendingRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry due pending items and links",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		itemsResolved, itemsRescheduled, err := svc.RetryPendingItems(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "retry pending items")
		}
		linksResolved, linksRescheduled, err := svc.RetryPendingLinks(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "retry pending links")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "items: %d resolved, %d rescheduled; links: %d resolved, %d rescheduled\n",
			itemsResolved, itemsRescheduled, linksResolved, linksRescheduled)
		return nil
	}),
}

var pendingIgnoreCmd = &cobra.Command{
	Use:   "ignore <id>",
	Short: "Close a pending item without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		var id uint64
		if _, err := fmt.Sscanf(cmd.Flags().Arg(0), "%d", &id); err != nil {
			return errs.Wrap(err, "parse pending item id")
		}
		if err := svc.IgnorePendingItem(ctx, id); err != nil {
			return errs.Wrap(err, "ignore pending item")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pending item %d ignored\n", id)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingRetryCmd)
	pendingCmd.AddCommand(pendingIgnoreCmd)

	pendingListCmd.Flags().Int("limit", 100, "Maximum rows to list")
	pendingRetryCmd.Flags().Int("limit", 100, "Maximum due entries to process")
}
