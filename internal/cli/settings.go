package cli

import (
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and edit the persisted sniper settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings the next run will use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowSettings(cmd.Context())
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ResetSettings(cmd.Context())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:     "set <path=value>...",
	Short:   "Change settings by dotted path",
	Example: "  sniper settings set safety.delayBetweenSearches.min=3 search.dryRun=true",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetSettings(cmd.Context(), args)
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsResetCmd, settingsSetCmd)
}
