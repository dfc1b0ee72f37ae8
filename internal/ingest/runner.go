package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/ledger"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resolve"
	"github.com/sells-group/diligence-cli/internal/store"
)

// Outcome summarizes one ingest run.
type Outcome struct {
	Created       int64 `json:"created"`
	Merged        int64 `json:"merged"`
	SkippedLedger int64 `json:"skipped_ledger"`
	Rejected      int64 `json:"rejected"`
}

// Config tunes the runner.
type Config struct {
	Workers             int
	SimilarityThreshold float64
	BreakerThreshold    int
}

// Runner owns the full kernel for a run: the three kind repositories, the
// extraction ledger, entity inference, and an optional write-through store.
type Runner struct {
	apps  *inventory.Repository[inventory.Application]
	infra *inventory.Repository[inventory.InfrastructureAsset]
	orgs  *inventory.Repository[inventory.OrgUnit]

	inf     *entity.Inferencer
	led     *ledger.Ledger
	st      store.Store // nil means in-memory only
	workers int
}

// NewRunner builds a runner. st may be nil for in-memory runs.
func NewRunner(cfg Config, inf *entity.Inferencer, st store.Store) *Runner {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	var repoOpts []inventory.Option
	if cfg.SimilarityThreshold > 0 {
		repoOpts = append(repoOpts, inventory.WithSimilarityThreshold(cfg.SimilarityThreshold))
	}
	if cfg.BreakerThreshold > 0 {
		repoOpts = append(repoOpts, inventory.WithBreakerThreshold(cfg.BreakerThreshold))
	}
	return &Runner{
		apps:    inventory.NewApplicationRepository(repoOpts...),
		infra:   inventory.NewInfrastructureRepository(repoOpts...),
		orgs:    inventory.NewOrgUnitRepository(repoOpts...),
		inf:     inf,
		led:     ledger.New(),
		st:      st,
		workers: workers,
	}
}

// Ledger exposes the in-memory extraction ledger.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.led
}

// Hydrate loads the deal's persisted records and ledger entries into the
// in-memory kernel so a resumed run deduplicates against prior runs.
func (r *Runner) Hydrate(ctx context.Context, dealID string) error {
	if r.st == nil {
		return nil
	}

	recs, err := r.st.ListRecords(ctx, dealID, store.RecordFilter{IncludeRetired: true})
	if err != nil {
		return eris.Wrap(err, "ingest: hydrate records")
	}
	byKind := make(map[model.Kind][]*inventory.Record)
	for i := range recs {
		byKind[recs[i].Kind] = append(byKind[recs[i].Kind], &recs[i])
	}
	if err := r.apps.Hydrate(dealID, byKind[model.KindApplication]); err != nil {
		return err
	}
	if err := r.infra.Hydrate(dealID, byKind[model.KindInfrastructure]); err != nil {
		return err
	}
	if err := r.orgs.Hydrate(dealID, byKind[model.KindOrgUnit]); err != nil {
		return err
	}

	entries, err := r.st.ListLedger(ctx, dealID, "")
	if err != nil {
		return eris.Wrap(err, "ingest: hydrate ledger")
	}
	for _, e := range entries {
		r.led.MarkExtracted(e.DocumentID, e.Kind, e.DedupKey)
	}

	zap.L().Info("ingest: hydrated deal",
		zap.String("deal_id", dealID),
		zap.Int("records", len(recs)),
		zap.Int("ledger_entries", len(entries)),
	)
	return nil
}

// Run pumps facts through the kernel concurrently. Individual facts that
// fail validation are counted and logged, never abort the run; store
// failures do abort.
func (r *Runner) Run(ctx context.Context, dealID string, facts []model.CandidateFact) (Outcome, error) {
	zap.L().Info("ingest: run start",
		zap.String("deal_id", dealID),
		zap.Int("facts", len(facts)),
		zap.Int("workers", r.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var created, merged, skipped, rejected atomic.Int64

	for _, fact := range facts {
		g.Go(func() error {
			switch outcome, err := r.process(gctx, dealID, fact); {
			case err != nil:
				return err
			case outcome == outcomeCreated:
				created.Add(1)
			case outcome == outcomeMerged:
				merged.Add(1)
			case outcome == outcomeSkipped:
				skipped.Add(1)
			case outcome == outcomeRejected:
				rejected.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Outcome{}, eris.Wrap(err, "ingest: run")
	}

	out := Outcome{
		Created:       created.Load(),
		Merged:        merged.Load(),
		SkippedLedger: skipped.Load(),
		Rejected:      rejected.Load(),
	}
	zap.L().Info("ingest: run complete",
		zap.String("deal_id", dealID),
		zap.Int64("created", out.Created),
		zap.Int64("merged", out.Merged),
		zap.Int64("skipped_ledger", out.SkippedLedger),
		zap.Int64("rejected", out.Rejected),
	)
	return out, nil
}

type factOutcome int

const (
	outcomeCreated factOutcome = iota
	outcomeMerged
	outcomeSkipped
	outcomeRejected
)

// process runs one fact through the gate sequence: validate, resolve entity,
// admit through the ledger, resolve against the inventory, write through.
func (r *Runner) process(ctx context.Context, dealID string, fact model.CandidateFact) (factOutcome, error) {
	fact.Normalize()
	if err := fact.Validate(); err != nil {
		zap.L().Warn("ingest: rejected fact",
			zap.String("deal_id", dealID),
			zap.String("document_id", fact.DocumentID),
			zap.String("name", fact.Name),
			zap.Error(err),
		)
		return outcomeRejected, nil
	}

	// An absent tag is inferred from context; a present but invalid tag is a
	// rejection, never coerced to the default.
	var ent entity.Entity
	if fact.Entity == "" {
		var confidence float64
		ent, confidence = r.inf.Infer(fact.Context)
		zap.L().Debug("ingest: inferred entity",
			zap.String("document_id", fact.DocumentID),
			zap.String("name", fact.Name),
			zap.String("entity", ent.String()),
			zap.Float64("confidence", confidence),
		)
	} else {
		var err error
		ent, err = entity.Parse(fact.Entity)
		if err != nil {
			zap.L().Warn("ingest: rejected fact",
				zap.String("deal_id", dealID),
				zap.String("document_id", fact.DocumentID),
				zap.String("name", fact.Name),
				zap.Error(err),
			)
			return outcomeRejected, nil
		}
	}

	nameNorm := resolve.Normalize(fact.Name, fact.Kind)
	dedupKey := ledger.DedupKey(nameNorm, fact.Field)
	if !r.led.Admit(fact.DocumentID, fact.Kind, dedupKey) {
		return outcomeSkipped, nil
	}
	if r.st != nil {
		if _, err := r.st.MarkExtracted(ctx, dealID, fact.DocumentID, fact.Kind, dedupKey); err != nil {
			return 0, err
		}
	}

	obs := &inventory.Observation{
		Field:       fact.Field,
		Value:       fact.Value,
		Tier:        fact.Tier,
		Entity:      ent,
		DealID:      dealID,
		SourceDocID: fact.DocumentID,
		Quote:       fact.Quote,
	}
	in := inventory.FindInput{
		DealID: dealID,
		Name:   fact.Name,
		Vendor: fact.Vendor,
		Entity: ent,
		Obs:    obs,
	}

	rec, isNew, err := r.resolve(ctx, fact.Kind, in)
	if err != nil {
		if eris.Is(err, inventory.ErrValidation) {
			zap.L().Warn("ingest: rejected fact",
				zap.String("deal_id", dealID),
				zap.String("document_id", fact.DocumentID),
				zap.String("name", fact.Name),
				zap.Error(err),
			)
			return outcomeRejected, nil
		}
		return 0, err
	}

	if r.st != nil {
		if err := r.st.SaveRecord(ctx, rec); err != nil {
			return 0, err
		}
		persisted := *obs
		if persisted.ObservedAt.IsZero() {
			persisted.ObservedAt = time.Now().UTC()
		}
		if err := r.st.AppendObservations(ctx, dealID, rec.ID, []inventory.Observation{persisted}); err != nil {
			return 0, err
		}
	}

	if isNew {
		return outcomeCreated, nil
	}
	return outcomeMerged, nil
}

// resolve dispatches to the kind repository.
func (r *Runner) resolve(ctx context.Context, kind model.Kind, in inventory.FindInput) (*inventory.Record, bool, error) {
	switch kind {
	case model.KindApplication:
		app, isNew, err := r.apps.FindOrCreate(ctx, in)
		return app.Rec(), isNew, err
	case model.KindInfrastructure:
		asset, isNew, err := r.infra.FindOrCreate(ctx, in)
		return asset.Rec(), isNew, err
	case model.KindOrgUnit:
		org, isNew, err := r.orgs.FindOrCreate(ctx, in)
		return org.Rec(), isNew, err
	default:
		return nil, false, eris.Wrapf(model.ErrInvalidKind, "resolve %q", kind)
	}
}

// Records returns every record in the deal across all three inventories.
func (r *Runner) Records(dealID string) []inventory.Record {
	var out []inventory.Record
	for _, app := range r.apps.Records(dealID) {
		out = append(out, *app.Rec())
	}
	for _, asset := range r.infra.Records(dealID) {
		out = append(out, *asset.Rec())
	}
	for _, org := range r.orgs.Records(dealID) {
		out = append(out, *org.Rec())
	}
	return out
}

// Counters returns the matching-strategy counters per kind for a deal.
func (r *Runner) Counters(dealID string) map[model.Kind]inventory.MatchCounters {
	return map[model.Kind]inventory.MatchCounters{
		model.KindApplication:    r.apps.Counters(dealID),
		model.KindInfrastructure: r.infra.Counters(dealID),
		model.KindOrgUnit:        r.orgs.Counters(dealID),
	}
}
