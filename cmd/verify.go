package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <mc-number>",
	Short: "Check a carrier's operating authority in the FMCSA registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verifier, _, err := initVerifier()
		if err != nil {
			return err
		}

		res, err := verifier.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
