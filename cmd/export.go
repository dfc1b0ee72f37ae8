package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/export"
	"github.com/sells-group/diligence-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <deal-id>",
	Short: "Export a deal's inventories with full provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		dealID := args[0]
		deal, err := st.GetDeal(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		recs, err := st.ListRecords(cmd.Context(), dealID, store.RecordFilter{IncludeRetired: true})
		if err != nil {
			return err
		}

		switch exportFormat {
		case "json":
			w := os.Stdout
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return eris.Wrap(err, "export: create output file")
				}
				defer f.Close()
				w = f
			}
			if err := export.WriteJSON(w, deal, recs); err != nil {
				return err
			}
		case "xlsx":
			if exportOut == "" {
				return eris.New("export: --out is required for xlsx")
			}
			if err := export.ExportXLSX(exportOut, deal, recs); err != nil {
				return err
			}
		default:
			return eris.Errorf("export: unsupported format %q", exportFormat)
		}

		zap.L().Info("export complete",
			zap.String("deal_id", dealID),
			zap.String("format", exportFormat),
			zap.Int("records", len(recs)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format (json|xlsx)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (stdout for json when empty)")
	rootCmd.AddCommand(exportCmd)
}
