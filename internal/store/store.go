// Package store persists deals, inventory records, their observations, and
// the extraction ledger behind a single interface with SQLite and Postgres
// implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

// ErrNotFound is the sentinel wrapped by lookups that match nothing.
var ErrNotFound = eris.New("store: not found")

// RecordFilter specifies criteria for listing records within a deal.
type RecordFilter struct {
	Kind           model.Kind    `json:"kind,omitempty"`
	Entity         entity.Entity `json:"entity,omitempty"`
	IncludeRetired bool          `json:"include_retired,omitempty"`
	Limit          int           `json:"limit,omitempty"`
	Offset         int           `json:"offset,omitempty"`
}

// LedgerEntry is one persisted (document, kind, dedup key) triple.
type LedgerEntry struct {
	DealID     string     `json:"deal_id"`
	DocumentID string     `json:"document_id"`
	Kind       model.Kind `json:"kind"`
	DedupKey   string     `json:"dedup_key"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Store defines the persistence interface for the diligence kernel.
type Store interface {
	// Deals
	CreateDeal(ctx context.Context, deal *model.Deal) error
	GetDeal(ctx context.Context, dealID string) (*model.Deal, error)
	ListDeals(ctx context.Context) ([]model.Deal, error)
	UpdateDealStatus(ctx context.Context, dealID string, status model.DealStatus) error

	// Records
	SaveRecord(ctx context.Context, rec *inventory.Record) error
	SaveRecords(ctx context.Context, recs []*inventory.Record) error
	GetRecord(ctx context.Context, dealID, recordID string) (*inventory.Record, error)
	ListRecords(ctx context.Context, dealID string, filter RecordFilter) ([]inventory.Record, error)
	AppendObservations(ctx context.Context, dealID, recordID string, obs []inventory.Observation) error

	// SearchSimilar returns non-retired record rows of the kind ranked by
	// name similarity to the search term. Observations are not hydrated.
	SearchSimilar(ctx context.Context, dealID string, kind model.Kind, nameNormalized string, limit int) ([]inventory.Record, error)

	// Extraction ledger
	MarkExtracted(ctx context.Context, dealID, docID string, kind model.Kind, dedupKey string) (bool, error)
	ListLedger(ctx context.Context, dealID, docID string) ([]LedgerEntry, error)
	LedgerCounts(ctx context.Context, dealID, docID string) (map[model.Kind]int, error)
	ResetLedger(ctx context.Context, dealID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
