package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "inbound-carrier",
	Short: "Inbound carrier sales service",
	Long:  "Verifies carriers against the FMCSA registry, matches them to loads, negotiates rates and records call outcomes for an automated inbound call agent.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// useNumericRates makes decimals encode as JSON numbers, which the call
// platform expects for rates. Stored session state decodes either form.
func useNumericRates() {
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	useNumericRates()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
