package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/app"
)

var pruneBefore string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger rows attempted before a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneBefore == "" {
			return fmt.Errorf("--before must be provided")
		}
		before, err := parseTimeFlag("before", pruneBefore)
		if err != nil {
			return err
		}
		return getApp().Prune(cmd.Context(), app.PruneOptions{Before: *before})
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "Cutoff timestamp (RFC3339, exclusive)")
}
