package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportLast      time.Duration
	exportOutcome   string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the purchase ledger as CSV and/or PNG chart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportLast > 0 && exportFrom != "" {
			return fmt.Errorf("--last and --from are mutually exclusive")
		}
		outcome, err := app.ParseOutcome(exportOutcome)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			Outcome:   outcome,
		}
		if opts.To, err = parseTimeFlag("to", exportTo); err != nil {
			return err
		}
		if opts.From, err = parseTimeFlag("from", exportFrom); err != nil {
			return err
		}
		if exportLast > 0 {
			end := time.Now().UTC()
			if opts.To != nil {
				end = *opts.To
			}
			from := end.Add(-exportLast)
			opts.From = &from
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &t, nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive; defaults to 30 days before --to)")
	f.StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	f.DurationVar(&exportLast, "last", 0, "Window length ending at --to, e.g. 168h")
	f.StringVar(&exportOutcome, "outcome", "", "Only rows with this outcome: bought, failed or dry_run")
	f.StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	f.StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	f.IntVar(&exportMaxPoints, "max-points", 0, "Maximum purchases to export (defaults to config)")
}
