package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ivdhub/internal/bootstrap"
	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
	"ivdhub/internal/usecase/console"
	"ivdhub/internal/usecase/pipeline"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive triage console",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		operator, _ := cmd.Flags().GetString("operator")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")

		model := console.NewTriageModel(ctx, svc, console.Options{
			RefreshInterval: refreshInterval,
			Operator:        operator,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run triage console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("operator", "operator", "Resolver identity recorded on manual resolutions")
	consoleCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
