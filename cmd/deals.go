package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-cli/internal/model"
)

var (
	dealName   string
	dealTarget string
	dealBuyer  string
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Manage deals",
}

var dealsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new deal",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		deal, err := model.NewDeal(dealName, dealTarget, dealBuyer)
		if err != nil {
			return err
		}
		if err := st.CreateDeal(cmd.Context(), deal); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deal)
	},
}

var dealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		deals, err := st.ListDeals(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range deals {
			fmt.Printf("%s  %-10s  %s\n", d.ID, d.Status, d.Name)
		}
		return nil
	},
}

var dealsStatusCmd = &cobra.Command{
	Use:   "status <deal-id> <open|review|closed|archived>",
	Short: "Update a deal's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.DealStatus(args[1])
		switch status {
		case model.DealStatusOpen, model.DealStatusReview, model.DealStatusClosed, model.DealStatusArchived:
		default:
			return eris.Errorf("invalid status %q", args[1])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		return st.UpdateDealStatus(cmd.Context(), args[0], status)
	},
}

func init() {
	dealsCreateCmd.Flags().StringVar(&dealName, "name", "", "deal name (required)")
	dealsCreateCmd.Flags().StringVar(&dealTarget, "target", "", "target company display name")
	dealsCreateCmd.Flags().StringVar(&dealBuyer, "buyer", "", "buyer display name")
	dealsCreateCmd.MarkFlagRequired("name") //nolint:errcheck

	dealsCmd.AddCommand(dealsCreateCmd, dealsListCmd, dealsStatusCmd)
	rootCmd.AddCommand(dealsCmd)
}
