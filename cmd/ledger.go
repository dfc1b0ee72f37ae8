package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ledgerDocID string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and manage the extraction ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List extraction ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListLedger(cmd.Context(), args[0], ledgerDocID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-24s  %-14s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.DocumentID, e.Kind, e.DedupKey)
		}
		return nil
	},
}

var ledgerCountsCmd = &cobra.Command{
	Use:   "counts <deal-id>",
	Short: "Show admitted extraction counts per kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.LedgerCounts(cmd.Context(), args[0], ledgerDocID)
		if err != nil {
			return err
		}
		for kind, n := range counts {
			fmt.Printf("%-16s %d\n", kind, n)
		}
		return nil
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset <deal-id>",
	Short: "Clear a deal's extraction ledger so documents can be re-extracted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ResetLedger(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		zap.L().Info("ledger reset", zap.String("deal_id", args[0]), zap.Int("removed", n))
		return nil
	},
}

func init() {
	ledgerListCmd.Flags().StringVar(&ledgerDocID, "document", "", "restrict to a single document ID")
	ledgerCountsCmd.Flags().StringVar(&ledgerDocID, "document", "", "restrict to a single document ID")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerCountsCmd, ledgerResetCmd)
	rootCmd.AddCommand(ledgerCmd)
}
