package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/app"
)

var (
	showLimit   int
	showOutcome string
	showSummary bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent purchase attempts from the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		outcome, err := app.ParseOutcome(showOutcome)
		if err != nil {
			return err
		}

		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:   showLimit,
			Outcome: outcome,
			Summary: showSummary,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of ledger rows to read")
	showCmd.Flags().StringVar(&showOutcome, "outcome", "", "Only rows with this outcome: bought, failed or dry_run")
	showCmd.Flags().BoolVar(&showSummary, "summary", false, "Print totals after the table")
}
