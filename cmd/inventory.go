package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resolve"
	"github.com/sells-group/diligence-cli/internal/store"
)

var (
	inventoryKind    string
	inventoryEntity  string
	inventoryRetired bool
	inventoryJSON    bool
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory <deal-id> [record-id]",
	Short: "List a deal's reconciled inventory records, or show one with its observations",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 2 {
			rec, err := st.GetRecord(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		filter := store.RecordFilter{IncludeRetired: inventoryRetired}
		if inventoryKind != "" {
			kind, err := model.ParseKind(inventoryKind)
			if err != nil {
				return err
			}
			filter.Kind = kind
		}
		if inventoryEntity != "" {
			ent, err := entity.Parse(inventoryEntity)
			if err != nil {
				return err
			}
			filter.Entity = ent
		}

		recs, err := st.ListRecords(cmd.Context(), args[0], filter)
		if err != nil {
			return err
		}

		if inventoryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}

		for _, rec := range recs {
			marker := " "
			if rec.Retired {
				marker = "R"
			}
			vendor := rec.Vendor
			if vendor == "" {
				vendor = "-"
			}
			fmt.Printf("%s %-24s %-6s %-32s %-24s obs=%d\n",
				marker, rec.ID, rec.Entity, rec.Name, vendor, len(rec.Observations))
		}
		return nil
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <deal-id> <kind> <name>",
	Short: "Find records similar to a name",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[1])
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.SearchSimilar(cmd.Context(), args[0], kind, resolve.Normalize(args[2], kind), searchLimit)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			fmt.Printf("%-24s %-6s %s\n", rec.ID, rec.Entity, rec.Name)
		}
		return nil
	},
}

func init() {
	inventoryCmd.Flags().StringVar(&inventoryKind, "kind", "", "filter by kind (application|infrastructure|org_unit)")
	inventoryCmd.Flags().StringVar(&inventoryEntity, "entity", "", "filter by entity (target|buyer)")
	inventoryCmd.Flags().BoolVar(&inventoryRetired, "retired", false, "include retired records")
	inventoryCmd.Flags().BoolVar(&inventoryJSON, "json", false, "emit JSON instead of a table")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum matches to return")

	rootCmd.AddCommand(inventoryCmd, searchCmd)
}
