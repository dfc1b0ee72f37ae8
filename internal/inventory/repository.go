package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/resolve"
)

// FindInput carries one candidate into FindOrCreate. Obs, when non-nil, is
// appended to the resolved record whether it was found or created.
type FindInput struct {
	DealID string
	Name   string
	Vendor string
	Entity entity.Entity
	Obs    *Observation
}

// Option tunes a repository at construction.
type Option func(*repoOptions)

type repoOptions struct {
	simThreshold     float64
	breakerThreshold int
}

// WithSimilarityThreshold overrides the fuzzy pre-check threshold.
func WithSimilarityThreshold(threshold float64) Option {
	return func(o *repoOptions) { o.simThreshold = threshold }
}

// WithBreakerThreshold overrides the record count at which fuzzy matching
// switches from the pairwise scan to the sorted name index.
func WithBreakerThreshold(threshold int) Option {
	return func(o *repoOptions) { o.breakerThreshold = threshold }
}

// Repository owns the authoritative record set for one kind, sharded by
// deal. All per-deal operations serialize on the shard mutex, so two
// concurrent FindOrCreate calls for the same candidate resolve to one
// record; operations on different deals never contend.
type Repository[T Aggregate] struct {
	spec KindSpec
	wrap func(*Record) T
	opts repoOptions

	mu     sync.RWMutex
	shards map[string]*dealShard
}

// dealShard is one deal's slice of the index: records by identifier, stable
// insertion order, and the sorted name index the breaker switches to.
type dealShard struct {
	mu       sync.Mutex
	byID     map[string]*Record
	order    []string
	names    *resolve.NameIndex
	breaker  matchBreaker
	counters MatchCounters
}

// NewApplicationRepository builds the application inventory (vendor
// required, APP prefix).
func NewApplicationRepository(opts ...Option) *Repository[Application] {
	return newRepository(ApplicationSpec, func(r *Record) Application { return Application{r} }, opts...)
}

// NewInfrastructureRepository builds the infrastructure inventory.
func NewInfrastructureRepository(opts ...Option) *Repository[InfrastructureAsset] {
	return newRepository(InfrastructureSpec, func(r *Record) InfrastructureAsset { return InfrastructureAsset{r} }, opts...)
}

// NewOrgUnitRepository builds the org-unit inventory.
func NewOrgUnitRepository(opts ...Option) *Repository[OrgUnit] {
	return newRepository(OrgUnitSpec, func(r *Record) OrgUnit { return OrgUnit{r} }, opts...)
}

func newRepository[T Aggregate](spec KindSpec, wrap func(*Record) T, opts ...Option) *Repository[T] {
	o := repoOptions{
		simThreshold:     resolve.DefaultSimilarityThreshold,
		breakerThreshold: DefaultBreakerThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		spec:   spec,
		wrap:   wrap,
		opts:   o,
		shards: make(map[string]*dealShard),
	}
}

// Spec returns the kind spec this repository is bound to.
func (r *Repository[T]) Spec() KindSpec {
	return r.spec
}

// FindOrCreate resolves a candidate to its canonical record:
//
//  1. exact identifier hit on the content-addressed fingerprint;
//  2. fuzzy pre-check against same-entity, same-vendor records, pairwise
//     below the breaker threshold, via the sorted name index above it;
//  3. otherwise a new record is created and indexed.
//
// Returns the aggregate and whether it was newly created. Validation
// failures surface immediately; they never default or create.
func (r *Repository[T]) FindOrCreate(ctx context.Context, in FindInput) (T, bool, error) {
	var zero T
	_ = ctx // kernel calls are synchronous and in-memory

	dealID := strings.TrimSpace(in.DealID)
	if dealID == "" {
		return zero, false, eris.Wrap(ErrValidation, "find_or_create deal id is required")
	}
	if !in.Entity.Valid() {
		return zero, false, eris.Wrapf(ErrValidation, "find_or_create entity %q", in.Entity)
	}

	nameNorm := resolve.Normalize(in.Name, r.spec.Kind)
	if nameNorm == "" {
		return zero, false, eris.Wrapf(ErrValidation, "find_or_create name %q normalizes to empty", in.Name)
	}
	vendorNorm := resolve.NormalizeVendor(in.Vendor)
	if r.spec.VendorRequired && vendorNorm == "" {
		return zero, false, eris.Wrapf(ErrValidation, "%s records require a vendor", r.spec.Kind)
	}

	id := resolve.Fingerprint(nameNorm, vendorNorm, in.Entity, r.spec.Prefix)

	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	// Pass 1: exact identifier.
	if existing, ok := shard.byID[id]; ok {
		shard.counters.ExactHits++
		if err := r.attach(existing, in.Obs); err != nil {
			return zero, false, err
		}
		zap.L().Debug("inventory: matched by identifier",
			zap.String("kind", r.spec.Kind.String()),
			zap.String("record_id", id),
		)
		return r.wrap(existing), false, nil
	}

	// Pass 2: fuzzy pre-check for name drift the normalizer does not cover.
	if match := r.fuzzyMatch(shard, dealID, nameNorm, vendorNorm, in.Entity); match != nil {
		shard.counters.FuzzyHits++
		if err := r.attach(match, in.Obs); err != nil {
			return zero, false, err
		}
		zap.L().Debug("inventory: matched by similarity",
			zap.String("kind", r.spec.Kind.String()),
			zap.String("record_id", match.ID),
			zap.String("candidate", nameNorm),
			zap.String("matched", match.NameNormalized),
		)
		return r.wrap(match), false, nil
	}

	// Pass 3: create.
	record, err := NewRecord(r.spec, dealID, in.Name, in.Vendor, in.Entity)
	if err != nil {
		return zero, false, err
	}
	if err := r.attach(record, in.Obs); err != nil {
		return zero, false, err
	}
	shard.insert(record)
	shard.counters.Created++
	zap.L().Debug("inventory: created record",
		zap.String("kind", r.spec.Kind.String()),
		zap.String("record_id", record.ID),
		zap.String("deal_id", dealID),
	)
	return r.wrap(record), true, nil
}

// fuzzyMatch scans same-entity, same-vendor, non-retired records for a
// normalized name within the similarity threshold. Below the breaker
// threshold it walks every record; above it, only the name-index window.
// Ties resolve to the lowest identifier so the outcome is deterministic.
func (r *Repository[T]) fuzzyMatch(shard *dealShard, dealID, nameNorm, vendorNorm string, ent entity.Entity) *Record {
	var (
		best      *Record
		bestScore float64
	)
	consider := func(rec *Record) {
		if rec == nil || rec.Retired || rec.Entity != ent || rec.VendorNormalized != vendorNorm {
			return
		}
		score := resolve.Similarity(nameNorm, rec.NameNormalized)
		if score < r.opts.simThreshold {
			return
		}
		if score > bestScore || (score == bestScore && best != nil && rec.ID < best.ID) {
			best, bestScore = rec, score
		}
	}

	if shard.breaker.Tripped(len(shard.byID), dealID, r.spec.Kind) {
		shard.counters.IndexedScans++
		for _, e := range shard.names.Narrow(nameNorm) {
			consider(shard.byID[e.ID])
		}
		return best
	}

	shard.counters.LinearScans++
	for _, id := range shard.order {
		consider(shard.byID[id])
	}
	return best
}

// attach appends the optional observation, enforcing record/observation
// agreement.
func (r *Repository[T]) attach(rec *Record, obs *Observation) error {
	if obs == nil {
		return nil
	}
	return rec.AddObservation(*obs)
}

// Get returns the record with the given identifier.
func (r *Repository[T]) Get(dealID, id string) (T, bool) {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return r.wrap(rec), true
}

// FindByEntity returns the deal's non-retired records on one side of the
// transaction, in insertion order.
func (r *Repository[T]) FindByEntity(dealID string, ent entity.Entity) []T {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var out []T
	for _, id := range shard.order {
		rec := shard.byID[id]
		if rec.Retired || rec.Entity != ent {
			continue
		}
		out = append(out, r.wrap(rec))
	}
	return out
}

// FindSimilar returns non-retired records whose normalized names score at or
// above threshold against name, best first, ties by identifier. A miss is an
// empty slice, not an error.
func (r *Repository[T]) FindSimilar(dealID, name string, threshold float64) []T {
	nameNorm := resolve.Normalize(name, r.spec.Kind)
	if nameNorm == "" {
		return nil
	}

	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	type scored struct {
		rec   *Record
		score float64
	}
	var matches []scored
	for _, id := range shard.order {
		rec := shard.byID[id]
		if rec.Retired {
			continue
		}
		if score := resolve.Similarity(nameNorm, rec.NameNormalized); score >= threshold {
			matches = append(matches, scored{rec, score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].rec.ID < matches[j].rec.ID
	})

	out := make([]T, len(matches))
	for i, m := range matches {
		out[i] = r.wrap(m.rec)
	}
	return out
}

// Records returns every record in the deal, retired included, in insertion
// order.
func (r *Repository[T]) Records(dealID string) []T {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	out := make([]T, 0, len(shard.order))
	for _, id := range shard.order {
		out = append(out, r.wrap(shard.byID[id]))
	}
	return out
}

// Len returns the deal's record count, retired included.
func (r *Repository[T]) Len(dealID string) int {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.byID)
}

// Retire soft-retires a record by identifier.
func (r *Repository[T]) Retire(dealID, id string) error {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.byID[id]
	if !ok {
		return eris.Errorf("inventory: retire %s: not found in deal %s", id, dealID)
	}
	rec.Retire()
	return nil
}

// Hydrate loads persisted records into the deal shard, typically before an
// ingest run. Records must belong to the deal and kind; duplicates of an
// already-loaded identifier are rejected.
func (r *Repository[T]) Hydrate(dealID string, records []*Record) error {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for _, rec := range records {
		if rec.DealID != dealID {
			return eris.Wrapf(ErrValidation, "hydrate record %s from deal %q into deal %q", rec.ID, rec.DealID, dealID)
		}
		if rec.Kind != r.spec.Kind {
			return eris.Wrapf(ErrValidation, "hydrate %s record %s into %s repository", rec.Kind, rec.ID, r.spec.Kind)
		}
		if _, exists := shard.byID[rec.ID]; exists {
			return eris.Wrapf(ErrValidation, "hydrate duplicate record %s", rec.ID)
		}
		shard.insert(rec)
	}
	return nil
}

// Counters returns a snapshot of the deal's matching-strategy counters.
func (r *Repository[T]) Counters(dealID string) MatchCounters {
	shard := r.shard(dealID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.counters
}

// shard returns the deal's shard, creating it on first use. Double-checked
// so steady-state access is a read lock and deals never share a mutex.
func (r *Repository[T]) shard(dealID string) *dealShard {
	r.mu.RLock()
	s, ok := r.shards[dealID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.shards[dealID]; ok {
		return s
	}
	s = &dealShard{
		byID:    make(map[string]*Record),
		names:   resolve.NewNameIndex(),
		breaker: matchBreaker{threshold: r.opts.breakerThreshold},
	}
	r.shards[dealID] = s
	return s
}

// insert adds a record to all shard structures. Caller holds the shard lock.
func (s *dealShard) insert(rec *Record) {
	s.byID[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.names.Insert(rec.NameNormalized, rec.ID)
}
