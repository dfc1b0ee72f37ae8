package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/ingest"
	"github.com/sells-group/diligence-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <deal-id> <facts-file>...",
	Short: "Run candidate facts through the reconciliation kernel",
	Long:  "Reads candidate facts (jsonl, json, csv, or xlsx), resolves each against the deal's inventories, and persists the resulting records, observations, and ledger entries.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dealID := args[0]
		if _, err := st.GetDeal(ctx, dealID); err != nil {
			return err
		}

		runner, err := newRunner(st)
		if err != nil {
			return err
		}
		if err := runner.Hydrate(ctx, dealID); err != nil {
			return err
		}

		var facts []model.CandidateFact
		for _, path := range args[1:] {
			batch, err := ingest.ReadFacts(path)
			if err != nil {
				return err
			}
			zap.L().Info("loaded facts", zap.String("file", path), zap.Int("count", len(batch)))
			facts = append(facts, batch...)
		}

		out, err := runner.Run(ctx, dealID, facts)
		if err != nil {
			return err
		}

		for kind, counters := range runner.Counters(dealID) {
			zap.L().Info("match counters",
				zap.String("kind", kind.String()),
				zap.Int64("exact_hits", counters.ExactHits),
				zap.Int64("fuzzy_hits", counters.FuzzyHits),
				zap.Int64("linear_scans", counters.LinearScans),
				zap.Int64("indexed_scans", counters.IndexedScans),
				zap.Int64("created", counters.Created),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
