package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/config"
	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/ingest"
	"github.com/sells-group/diligence-cli/internal/store"
)

// openStore opens the configured persistence backend.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newInferencer builds the entity inferencer from config: configured default
// side plus any indicator extension file.
func newInferencer(c *config.Config) (*entity.Inferencer, error) {
	def, err := entity.Parse(c.Infer.DefaultEntity)
	if err != nil {
		return nil, err
	}
	inf, err := entity.NewInferencer(def)
	if err != nil {
		return nil, err
	}
	if c.Infer.IndicatorFile != "" {
		if err := inf.LoadIndicatorFile(c.Infer.IndicatorFile); err != nil {
			return nil, err
		}
	}
	return inf, nil
}

// newRunner wires a kernel runner against the store.
func newRunner(st store.Store) (*ingest.Runner, error) {
	inf, err := newInferencer(cfg)
	if err != nil {
		return nil, err
	}
	return ingest.NewRunner(ingest.Config{
		Workers:             cfg.Ingest.Workers,
		SimilarityThreshold: cfg.Resolve.SimilarityThreshold,
		BreakerThreshold:    cfg.Resolve.BreakerThreshold,
	}, inf, st), nil
}
