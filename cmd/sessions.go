package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/inbound-carrier/internal/negotiation"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Maintain negotiation sessions",
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete negotiation sessions that have not moved recently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			olderThan = cfg.Negotiation.SessionTTL()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := negotiation.NewService(nil, st, nil).Prune(ctx, olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d session(s) idle for more than %s\n", n, olderThan)
		return nil
	},
}

func init() {
	sessionsPruneCmd.Flags().Duration("older-than", 0, "idle age to prune (default from negotiation.session_ttl_mins)")

	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}
