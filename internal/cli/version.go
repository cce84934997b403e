package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sniper build stamp",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sniper %s\n", version.String())
	},
}
