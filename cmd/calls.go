package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/recorder"
	"github.com/sells-group/inbound-carrier/internal/report"
	"github.com/sells-group/inbound-carrier/internal/store"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect recorded calls",
	Long:  "Commands for listing, summarizing, and exporting recorded inbound calls.",
}

// -- calls list --

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded calls, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := callFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		calls, err := recorder.New(st).List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "calls list")
		}
		if len(calls) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No calls found.")
			return nil
		}

		formatCallsList(cmd.OutOrStdout(), calls)
		return nil
	},
}

// -- calls stats --

var callsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show booking and sentiment statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := recorder.New(st).Summary(ctx)
		if err != nil {
			return eris.Wrap(err, "calls stats")
		}

		formatCallStats(cmd.OutOrStdout(), sum)
		return nil
	},
}

// -- calls export --

var callsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded calls as CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		formatName, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		outPath, _ := cmd.Flags().GetString("out")
		if format == report.FormatXLSX && outPath == "" {
			return eris.New("calls export: --out is required for xlsx")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := callFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		calls, err := recorder.New(st).List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "calls export")
		}

		var out io.Writer = cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "calls export: create %s", outPath)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := report.Write(out, format, calls); err != nil {
			return err
		}
		if outPath != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d call(s) to %s\n", len(calls), outPath)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{callsListCmd, callsExportCmd} {
		c.Flags().String("mc", "", "filter by MC number")
		c.Flags().String("load", "", "filter by load id")
		c.Flags().String("outcome", "", "filter by outcome (booked, no_deal)")
		c.Flags().Duration("since", 0, "only calls recorded within this window (e.g. 24h)")
	}
	callsListCmd.Flags().Int("limit", 50, "max number of calls to display")
	callsExportCmd.Flags().Int("limit", 1000, "max number of calls to export")
	callsExportCmd.Flags().String("format", "csv", "export format (csv, xlsx)")
	callsExportCmd.Flags().String("out", "", "output file (default stdout, required for xlsx)")

	callsCmd.AddCommand(callsListCmd)
	callsCmd.AddCommand(callsStatsCmd)
	callsCmd.AddCommand(callsExportCmd)
	rootCmd.AddCommand(callsCmd)
}

func callFilterFromFlags(cmd *cobra.Command) (store.CallFilter, error) {
	mc, _ := cmd.Flags().GetString("mc")
	load, _ := cmd.Flags().GetString("load")
	outcome, _ := cmd.Flags().GetString("outcome")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.CallFilter{
		MCNumber: mc,
		LoadID:   load,
		Outcome:  model.Outcome(outcome),
		Limit:    limit,
	}
	switch filter.Outcome {
	case "", model.OutcomeBooked, model.OutcomeNoDeal:
	default:
		return store.CallFilter{}, eris.Errorf("unknown outcome %q (want booked or no_deal)", outcome)
	}
	if since > 0 {
		t := time.Now().Add(-since).UTC()
		filter.Since = &t
	}
	return filter, nil
}

// formatCallsList writes a tabular list of calls to w.
func formatCallsList(out io.Writer, calls []model.CallRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMC\tLOAD\tOUTCOME\tSENTIMENT\tRATE\tROUNDS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--\t----\t-------\t---------\t----\t------\t-------")

	for _, c := range calls {
		rate := "-"
		if c.AgreedRate != nil {
			rate = c.AgreedRate.StringFixed(2)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(c.ID),
			c.MCNumber,
			c.LoadID,
			c.Outcome,
			c.Sentiment,
			rate,
			c.Rounds,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatCallStats writes aggregate stats to w.
func formatCallStats(out io.Writer, s *recorder.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total calls:\t%d\n", s.TotalCalls)
	_, _ = fmt.Fprintf(w, "Booked:\t%d\n", s.Booked)
	_, _ = fmt.Fprintf(w, "Booking rate:\t%.1f%%\n", s.BookingRate*100)
	if s.AvgAgreedRate != nil {
		_, _ = fmt.Fprintf(w, "Avg agreed rate:\t%s\n", s.AvgAgreedRate.StringFixed(2))
	}

	outcomes := make([]string, 0, len(s.ByOutcome))
	for o := range s.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", o, s.ByOutcome[model.Outcome(o)])
	}

	_, _ = fmt.Fprintln(w, "Sentiment:")
	for _, snt := range []model.Sentiment{model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative} {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", snt, s.BySentiment[snt])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
