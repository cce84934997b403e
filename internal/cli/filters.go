package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/app"
)

var (
	filterBucket    string
	filterSelectAll bool
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage saved search filters",
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved filters; * marks the selection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListFilters(cmd.Context())
	},
}

var filtersSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the host page's current search as a new filter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SaveFilter(cmd.Context(), filterBucket)
	},
}

var filtersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace a filter's criteria with the host page's current search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().UpdateFilter(cmd.Context(), args[0])
	},
}

var filtersRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a saved filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveFilter(cmd.Context(), args[0])
	},
}

var filtersClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved filter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ClearFilters(cmd.Context())
	},
}

var filtersSelectCmd = &cobra.Command{
	Use:   "select [id...]",
	Short: "Mark filters active for the next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection(args)
		if err != nil {
			return err
		}
		return getApp().SelectFilters(cmd.Context(), sel)
	},
}

var filtersDeselectCmd = &cobra.Command{
	Use:   "deselect [id...]",
	Short: "Clear the active mark",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection(args)
		if err != nil {
			return err
		}
		return getApp().DeselectFilters(cmd.Context(), sel)
	},
}

var filtersExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write saved filters as YAML (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return getApp().ExportFilters(cmd.Context(), path)
	},
}

var filtersImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Append filters from a YAML export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ImportFilters(cmd.Context(), args[0], cmd.InOrStdin())
	},
}

func selection(args []string) (app.FilterSelection, error) {
	if !filterSelectAll && len(args) == 0 {
		return app.FilterSelection{}, errors.New("pass filter ids or --all")
	}
	return app.FilterSelection{IDs: args, All: filterSelectAll}, nil
}

func init() {
	filtersSaveCmd.Flags().StringVar(&filterBucket, "bucket", "player", "Search bucket: player, staff, club or consumable")
	filtersSelectCmd.Flags().BoolVar(&filterSelectAll, "all", false, "Apply to every saved filter")
	filtersDeselectCmd.Flags().BoolVar(&filterSelectAll, "all", false, "Apply to every saved filter")

	filtersCmd.AddCommand(
		filtersListCmd,
		filtersSaveCmd,
		filtersUpdateCmd,
		filtersRemoveCmd,
		filtersClearCmd,
		filtersSelectCmd,
		filtersDeselectCmd,
		filtersExportCmd,
		filtersImportCmd,
	)
}
