package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/inbound-carrier/internal/catalog"
	"github.com/sells-group/inbound-carrier/internal/model"
)

var loadsCmd = &cobra.Command{
	Use:   "loads",
	Short: "Inspect the load catalog",
}

// -- loads list --

var loadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every load in the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := initCatalog()
		if err != nil {
			return err
		}
		formatLoadsList(cmd.OutOrStdout(), cat.All())
		return nil
	},
}

// -- loads suggest --

var loadsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show the loads a carrier would be offered",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := initCatalog()
		if err != nil {
			return err
		}

		equipment, _ := cmd.Flags().GetString("equipment")
		origin, _ := cmd.Flags().GetString("origin")
		destination, _ := cmd.Flags().GetString("destination")

		loads, err := cat.Suggest(cmd.Context(), catalog.SuggestQuery{
			EquipmentType: equipment,
			Origin:        origin,
			Destination:   destination,
		})
		if err != nil {
			return err
		}
		if len(loads) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No matching loads.")
			return nil
		}
		formatLoadsList(cmd.OutOrStdout(), loads)
		return nil
	},
}

// -- loads show --

var loadsShowCmd = &cobra.Command{
	Use:   "show <load-id>",
	Short: "Show full details of a load",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := initCatalog()
		if err != nil {
			return err
		}
		load, err := cat.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(load)
	},
}

func init() {
	loadsSuggestCmd.Flags().String("equipment", "", "equipment type (Dry Van, Reefer, Flatbed, ...)")
	loadsSuggestCmd.Flags().String("origin", "", "origin city, e.g. \"Chicago, IL\"")
	loadsSuggestCmd.Flags().String("destination", "", "destination city")

	loadsCmd.AddCommand(loadsListCmd)
	loadsCmd.AddCommand(loadsSuggestCmd)
	loadsCmd.AddCommand(loadsShowCmd)
	rootCmd.AddCommand(loadsCmd)
}

// formatLoadsList writes a tabular list of loads to w.
func formatLoadsList(out io.Writer, loads []model.Load) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LOAD\tEQUIPMENT\tORIGIN\tDESTINATION\tPICKUP\tTARGET\tMIN")
	_, _ = fmt.Fprintln(w, "----\t---------\t------\t-----------\t------\t------\t---")

	for _, l := range loads {
		pickup := ""
		if l.PickupDatetime != nil {
			pickup = l.PickupDatetime.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.LoadID,
			l.EquipmentType,
			l.Origin,
			l.Destination,
			pickup,
			l.TargetRate.StringFixed(2),
			l.MinAcceptableRate.StringFixed(2),
		)
	}
	_ = w.Flush()
}
