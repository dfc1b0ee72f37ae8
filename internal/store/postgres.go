package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/db"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_deal":       `SELECT id, name, target_name, buyer_name, status, created_at, updated_at FROM deals WHERE id = $1`,
	"get_record":     `SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at FROM records WHERE deal_id = $1 AND id = $2`,
	"save_record":    upsertRecordSQL,
	"mark_extracted": `INSERT INTO extraction_ledger (deal_id, document_id, kind, dedup_key, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (deal_id, document_id, kind, dedup_key) DO NOTHING`,
	"ledger_counts":  `SELECT kind, COUNT(*) FROM extraction_ledger WHERE deal_id = $1 AND document_id = $2 GROUP BY kind`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const upsertRecordSQL = `INSERT INTO records (deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
 ON CONFLICT (deal_id, id) DO UPDATE SET
   name = EXCLUDED.name, vendor = EXCLUDED.vendor,
   retired = EXCLUDED.retired, updated_at = EXCLUDED.updated_at`

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS deals (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	target_name TEXT NOT NULL DEFAULT '',
	buyer_name  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	deal_id           TEXT NOT NULL REFERENCES deals(id),
	id                TEXT NOT NULL,
	kind              TEXT NOT NULL,
	entity            TEXT NOT NULL,
	name              TEXT NOT NULL,
	name_normalized   TEXT NOT NULL,
	vendor            TEXT NOT NULL DEFAULT '',
	vendor_normalized TEXT NOT NULL DEFAULT '',
	retired           BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (deal_id, id)
);

CREATE TABLE IF NOT EXISTS observations (
	deal_id            TEXT NOT NULL,
	record_id          TEXT NOT NULL,
	field              TEXT NOT NULL,
	value              JSONB NOT NULL,
	tier               INTEGER NOT NULL,
	entity             TEXT NOT NULL,
	source_document_id TEXT NOT NULL,
	quote              TEXT NOT NULL DEFAULT '',
	observed_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	FOREIGN KEY (deal_id, record_id) REFERENCES records(deal_id, id)
);

CREATE TABLE IF NOT EXISTS extraction_ledger (
	deal_id     TEXT NOT NULL,
	document_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	dedup_key   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (deal_id, document_id, kind, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_records_deal_kind ON records(deal_id, kind);
CREATE INDEX IF NOT EXISTS idx_records_name_trgm ON records USING gin (name_normalized gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_observations_record ON observations(deal_id, record_id);
CREATE INDEX IF NOT EXISTS idx_ledger_doc ON extraction_ledger(deal_id, document_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal *model.Deal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, name, target_name, buyer_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		deal.ID, deal.Name, deal.TargetName, deal.BuyerName, string(deal.Status), deal.CreatedAt, deal.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert deal %s", deal.ID)
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, target_name, buyer_name, status, created_at, updated_at FROM deals WHERE id = $1`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.TargetName, &d.BuyerName, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "deal %s", dealID)
		}
		return nil, eris.Wrapf(err, "postgres: get deal %s", dealID)
	}
	return &d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, target_name, buyer_name, status, created_at, updated_at FROM deals ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.Name, &d.TargetName, &d.BuyerName, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list deals iterate")
}

func (s *PostgresStore) UpdateDealStatus(ctx context.Context, dealID string, status model.DealStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update deal status %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "deal %s", dealID)
	}
	return nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *inventory.Record) error {
	_, err := s.pool.Exec(ctx, upsertRecordSQL,
		rec.DealID, rec.ID, string(rec.Kind), string(rec.Entity), rec.Name, rec.NameNormalized,
		rec.Vendor, rec.VendorNormalized, rec.Retired, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save record %s", rec.ID)
}

var recordColumns = []string{
	"deal_id", "id", "kind", "entity", "name", "name_normalized",
	"vendor", "vendor_normalized", "retired", "created_at", "updated_at",
}

// SaveRecords bulk-upserts record rows through a temp table.
func (s *PostgresStore) SaveRecords(ctx context.Context, recs []*inventory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{
			rec.DealID, rec.ID, string(rec.Kind), string(rec.Entity), rec.Name, rec.NameNormalized,
			rec.Vendor, rec.VendorNormalized, rec.Retired, rec.CreatedAt, rec.UpdatedAt,
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "records",
		Columns:      recordColumns,
		ConflictKeys: []string{"deal_id", "id"},
		UpdateCols:   []string{"name", "vendor", "retired", "updated_at"},
	}, rows)
	return eris.Wrap(err, "postgres: save records")
}

func (s *PostgresStore) GetRecord(ctx context.Context, dealID, recordID string) (*inventory.Record, error) {
	var rec inventory.Record
	err := s.pool.QueryRow(ctx,
		`SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
		 FROM records WHERE deal_id = $1 AND id = $2`,
		dealID, recordID,
	).Scan(&rec.DealID, &rec.ID, &rec.Kind, &rec.Entity, &rec.Name, &rec.NameNormalized,
		&rec.Vendor, &rec.VendorNormalized, &rec.Retired, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "record %s in deal %s", recordID, dealID)
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", recordID)
	}

	obs, err := s.loadObservations(ctx, dealID, recordID)
	if err != nil {
		return nil, err
	}
	rec.Observations = obs[recordID]
	return &rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, dealID string, filter RecordFilter) ([]inventory.Record, error) {
	query := `SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
	          FROM records WHERE deal_id = $1`
	args := []any{dealID}
	argIdx := 2

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Entity != "" {
		query += fmt.Sprintf(` AND entity = $%d`, argIdx)
		args = append(args, string(filter.Entity))
		argIdx++
	}
	if !filter.IncludeRetired {
		query += ` AND retired = false`
	}
	query += ` ORDER BY kind, id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
			argIdx++
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []inventory.Record
	for rows.Next() {
		var rec inventory.Record
		if err := rows.Scan(&rec.DealID, &rec.ID, &rec.Kind, &rec.Entity, &rec.Name, &rec.NameNormalized,
			&rec.Vendor, &rec.VendorNormalized, &rec.Retired, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list records iterate")
	}

	obs, err := s.loadObservations(ctx, dealID, "")
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Observations = obs[recs[i].ID]
	}
	return recs, nil
}

var observationColumns = []string{
	"deal_id", "record_id", "field", "value", "tier", "entity",
	"source_document_id", "quote", "observed_at",
}

// AppendObservations streams observation rows through the COPY protocol.
// Observations are append-only, so there is no conflict to resolve.
func (s *PostgresStore) AppendObservations(ctx context.Context, dealID, recordID string, obs []inventory.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	rows := make([][]any, len(obs))
	for i, o := range obs {
		valueJSON, err := json.Marshal(o.Value)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal observation value for %s", o.Field)
		}
		rows[i] = []any{
			dealID, recordID, o.Field, valueJSON, int(o.Tier), string(o.Entity),
			o.SourceDocID, o.Quote, o.ObservedAt,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "observations", observationColumns, rows)
	return eris.Wrapf(err, "postgres: append observations for %s", recordID)
}

// SearchSimilar ranks records by trigram similarity server-side.
func (s *PostgresStore) SearchSimilar(ctx context.Context, dealID string, kind model.Kind, nameNormalized string, limit int) ([]inventory.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
		 FROM records
		 WHERE deal_id = $1 AND kind = $2 AND retired = false AND similarity(name_normalized, $3) > 0
		 ORDER BY similarity(name_normalized, $3) DESC, id
		 LIMIT $4`,
		dealID, string(kind), nameNormalized, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search similar")
	}
	defer rows.Close()

	var recs []inventory.Record
	for rows.Next() {
		var rec inventory.Record
		if err := rows.Scan(&rec.DealID, &rec.ID, &rec.Kind, &rec.Entity, &rec.Name, &rec.NameNormalized,
			&rec.Vendor, &rec.VendorNormalized, &rec.Retired, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: search similar iterate")
}

func (s *PostgresStore) MarkExtracted(ctx context.Context, dealID, docID string, kind model.Kind, dedupKey string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_ledger (deal_id, document_id, kind, dedup_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (deal_id, document_id, kind, dedup_key) DO NOTHING`,
		dealID, docID, string(kind), dedupKey, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark extracted %s", docID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListLedger(ctx context.Context, dealID, docID string) ([]LedgerEntry, error) {
	query := `SELECT deal_id, document_id, kind, dedup_key, created_at FROM extraction_ledger WHERE deal_id = $1`
	args := []any{dealID}
	if docID != "" {
		query += ` AND document_id = $2`
		args = append(args, docID)
	}
	query += ` ORDER BY created_at, kind`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.DealID, &e.DocumentID, &e.Kind, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list ledger iterate")
}

func (s *PostgresStore) LedgerCounts(ctx context.Context, dealID, docID string) (map[model.Kind]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM extraction_ledger WHERE deal_id = $1 AND document_id = $2 GROUP BY kind`,
		dealID, docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: ledger counts")
	}
	defer rows.Close()

	counts := make(map[model.Kind]int)
	for rows.Next() {
		var kind model.Kind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger count")
		}
		counts[kind] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: ledger counts iterate")
}

func (s *PostgresStore) ResetLedger(ctx context.Context, dealID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM extraction_ledger WHERE deal_id = $1`,
		dealID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reset ledger %s", dealID)
	}
	return int(tag.RowsAffected()), nil
}

// loadObservations returns observations grouped by record id. An empty
// recordID loads the whole deal.
func (s *PostgresStore) loadObservations(ctx context.Context, dealID, recordID string) (map[string][]inventory.Observation, error) {
	query := `SELECT record_id, field, value, tier, entity, source_document_id, quote, observed_at
	          FROM observations WHERE deal_id = $1`
	args := []any{dealID}
	if recordID != "" {
		query += ` AND record_id = $2`
		args = append(args, recordID)
	}
	query += ` ORDER BY observed_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load observations")
	}
	defer rows.Close()

	byRecord := make(map[string][]inventory.Observation)
	for rows.Next() {
		var recID string
		var valueJSON []byte
		var o inventory.Observation
		if err := rows.Scan(&recID, &o.Field, &valueJSON, &o.Tier, &o.Entity, &o.SourceDocID, &o.Quote, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if err := json.Unmarshal(valueJSON, &o.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal observation value")
		}
		o.DealID = dealID
		byRecord[recID] = append(byRecord[recID], o)
	}
	return byRecord, eris.Wrap(rows.Err(), "postgres: load observations iterate")
}
