package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"transfer-sniper/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the engine against an in-memory market on a virtual clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.HitRate < 0 || simulateOpts.HitRate > 1 || simulateOpts.WinRate < 0 || simulateOpts.WinRate > 1 {
			return errors.New("--hit-rate and --win-rate must be within [0, 1]")
		}
		_, err := getApp().Simulate(cmd.Context(), simulateOpts)
		return err
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simulateOpts.Steps, "steps", 40, "Number of timer firings to drive")
	f.Uint64Var(&simulateOpts.Seed, "seed", 1, "Random seed for the simulated market and delays")
	f.IntVar(&simulateOpts.MaxBuy, "max-buy", 10000, "Max buy-now price of the simulated filter")
	f.IntVar(&simulateOpts.SellPrice, "sell-price", 0, "Relist price; 0 disables relisting")
	f.Float64Var(&simulateOpts.HitRate, "hit-rate", 0.3, "Chance a search returns a listing")
	f.Float64Var(&simulateOpts.WinRate, "win-rate", 0.5, "Chance a bid succeeds")
	f.IntVar(&simulateOpts.CaptchaAt, "captcha-at", 0, "Report a captcha on the n-th search (0 disables)")
	f.BoolVar(&simulateOpts.DryRun, "dry-run", false, "Log buys without bidding")
}
