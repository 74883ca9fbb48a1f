package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/errs"
	"foodtrace/internal/usecase/chainconsole"
	"foodtrace/internal/usecase/traceability"
)

var consoleChainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Start the chain operations console",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		onlyComplete, _ := cmd.Flags().GetBool("complete")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := chainconsole.NewChainModel(ctx, svc, chainconsole.Options{
			ProductID:       productID,
			OnlyComplete:    onlyComplete,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run chain console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleChainCmd)
	consoleChainCmd.Flags().Uint64("product", 0, "Product to select on start")
	consoleChainCmd.Flags().Bool("complete", false, "Only list complete chains")
	consoleChainCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
