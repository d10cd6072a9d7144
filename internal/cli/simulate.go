package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"marketpulse/internal/app"
)

var (
	simulateSymbol   string
	simulatePrevious float64
	simulateCurrent  float64
	simulateWhaleTx  int64
	simulateMentions int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic price pair through derivation and alerting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous and --current must be greater than 0")
		}

		opts := app.SimulateOptions{
			Symbol:        simulateSymbol,
			PreviousPrice: decimal.NewFromFloat(simulatePrevious),
			CurrentPrice:  decimal.NewFromFloat(simulateCurrent),
			WhaleTx24h:    simulateWhaleTx,
			Mentions24h:   simulateMentions,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTC", "Symbol for the synthetic observation")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "Previous close price (USD)")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current close price (USD)")
	simulateCmd.Flags().Int64Var(&simulateWhaleTx, "whale-tx", 0, "Simulated whale transaction count (24h)")
	simulateCmd.Flags().Int64Var(&simulateMentions, "mentions", 0, "Simulated social mention volume (24h)")
}
