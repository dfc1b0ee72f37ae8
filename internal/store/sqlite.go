package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resolve"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	target_name TEXT NOT NULL DEFAULT '',
	buyer_name  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
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
	retired           INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	PRIMARY KEY (deal_id, id)
);

CREATE TABLE IF NOT EXISTS observations (
	deal_id            TEXT NOT NULL,
	record_id          TEXT NOT NULL,
	field              TEXT NOT NULL,
	value              TEXT NOT NULL,
	tier               INTEGER NOT NULL,
	entity             TEXT NOT NULL,
	source_document_id TEXT NOT NULL,
	quote              TEXT NOT NULL DEFAULT '',
	observed_at        DATETIME NOT NULL,
	FOREIGN KEY (deal_id, record_id) REFERENCES records(deal_id, id)
);

CREATE TABLE IF NOT EXISTS extraction_ledger (
	deal_id     TEXT NOT NULL,
	document_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	dedup_key   TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	UNIQUE (deal_id, document_id, kind, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_records_deal_kind ON records(deal_id, kind);
CREATE INDEX IF NOT EXISTS idx_records_name_norm ON records(deal_id, kind, name_normalized);
CREATE INDEX IF NOT EXISTS idx_observations_record ON observations(deal_id, record_id);
CREATE INDEX IF NOT EXISTS idx_ledger_doc ON extraction_ledger(deal_id, document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDeal(ctx context.Context, deal *model.Deal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, name, target_name, buyer_name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deal.ID, deal.Name, deal.TargetName, deal.BuyerName, string(deal.Status), deal.CreatedAt, deal.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert deal %s", deal.ID)
}

func (s *SQLiteStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, target_name, buyer_name, status, created_at, updated_at FROM deals WHERE id = ?`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.TargetName, &d.BuyerName, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "deal %s", dealID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get deal %s", dealID)
	}
	return &d, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, target_name, buyer_name, status, created_at, updated_at FROM deals ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.Name, &d.TargetName, &d.BuyerName, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list deals iterate")
}

func (s *SQLiteStore) UpdateDealStatus(ctx context.Context, dealID string, status model.DealStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update deal status %s", dealID)
	}
	return checkRowsAffected(res, "deal", dealID)
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *inventory.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (deal_id, id) DO UPDATE SET
		   name = excluded.name, vendor = excluded.vendor,
		   retired = excluded.retired, updated_at = excluded.updated_at`,
		rec.DealID, rec.ID, string(rec.Kind), string(rec.Entity), rec.Name, rec.NameNormalized,
		rec.Vendor, rec.VendorNormalized, rec.Retired, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save record %s", rec.ID)
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, recs []*inventory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO records (deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (deal_id, id) DO UPDATE SET
			   name = excluded.name, vendor = excluded.vendor,
			   retired = excluded.retired, updated_at = excluded.updated_at`,
			rec.DealID, rec.ID, string(rec.Kind), string(rec.Entity), rec.Name, rec.NameNormalized,
			rec.Vendor, rec.VendorNormalized, rec.Retired, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save record %s", rec.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit records")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, dealID, recordID string) (*inventory.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
		 FROM records WHERE deal_id = ? AND id = ?`,
		dealID, recordID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "record %s in deal %s", recordID, dealID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", recordID)
	}

	obs, err := s.loadObservations(ctx, dealID, recordID)
	if err != nil {
		return nil, err
	}
	rec.Observations = obs[recordID]
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, dealID string, filter RecordFilter) ([]inventory.Record, error) {
	query := `SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
	          FROM records WHERE deal_id = ?`
	args := []any{dealID}

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Entity != "" {
		query += ` AND entity = ?`
		args = append(args, string(filter.Entity))
	}
	if !filter.IncludeRetired {
		query += ` AND retired = 0`
	}
	query += ` ORDER BY kind, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []inventory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list records iterate")
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

func (s *SQLiteStore) AppendObservations(ctx context.Context, dealID, recordID string, obs []inventory.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, o := range obs {
		valueJSON, err := json.Marshal(o.Value)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal observation value for %s", o.Field)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO observations (deal_id, record_id, field, value, tier, entity, source_document_id, quote, observed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dealID, recordID, o.Field, string(valueJSON), int(o.Tier), string(o.Entity), o.SourceDocID, o.Quote, o.ObservedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert observation for %s", recordID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

// SearchSimilar ranks non-retired records of the kind by name similarity
// against the search term. Scoring happens in Go; SQLite only narrows by deal and
// kind.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, dealID string, kind model.Kind, nameNormalized string, limit int) ([]inventory.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, id, kind, entity, name, name_normalized, vendor, vendor_normalized, retired, created_at, updated_at
		 FROM records WHERE deal_id = ? AND kind = ? AND retired = 0`,
		dealID, string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search similar")
	}
	defer rows.Close()

	var recs []inventory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search similar iterate")
	}

	type scored struct {
		rec   inventory.Record
		score float64
	}
	var candidates []scored
	for _, rec := range recs {
		score := resolve.Similarity(nameNormalized, rec.NameNormalized)
		if score > 0 {
			candidates = append(candidates, scored{rec, score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.ID < candidates[j].rec.ID
	})

	if limit <= 0 {
		limit = 10
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]inventory.Record, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

func (s *SQLiteStore) MarkExtracted(ctx context.Context, dealID, docID string, kind model.Kind, dedupKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO extraction_ledger (deal_id, document_id, kind, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		dealID, docID, string(kind), dedupKey, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark extracted %s", docID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListLedger(ctx context.Context, dealID, docID string) ([]LedgerEntry, error) {
	query := `SELECT deal_id, document_id, kind, dedup_key, created_at FROM extraction_ledger WHERE deal_id = ?`
	args := []any{dealID}
	if docID != "" {
		query += ` AND document_id = ?`
		args = append(args, docID)
	}
	query += ` ORDER BY created_at, kind`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.DealID, &e.DocumentID, &e.Kind, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list ledger iterate")
}

func (s *SQLiteStore) LedgerCounts(ctx context.Context, dealID, docID string) (map[model.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM extraction_ledger WHERE deal_id = ? AND document_id = ? GROUP BY kind`,
		dealID, docID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: ledger counts")
	}
	defer rows.Close()

	counts := make(map[model.Kind]int)
	for rows.Next() {
		var kind model.Kind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger count")
		}
		counts[kind] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: ledger counts iterate")
}

func (s *SQLiteStore) ResetLedger(ctx context.Context, dealID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM extraction_ledger WHERE deal_id = ?`,
		dealID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reset ledger %s", dealID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

// loadObservations returns observations grouped by record id. An empty
// recordID loads the whole deal.
func (s *SQLiteStore) loadObservations(ctx context.Context, dealID, recordID string) (map[string][]inventory.Observation, error) {
	query := `SELECT record_id, field, value, tier, entity, source_document_id, quote, observed_at
	          FROM observations WHERE deal_id = ?`
	args := []any{dealID}
	if recordID != "" {
		query += ` AND record_id = ?`
		args = append(args, recordID)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load observations")
	}
	defer rows.Close()

	byRecord := make(map[string][]inventory.Observation)
	for rows.Next() {
		var recID, valueJSON string
		var o inventory.Observation
		if err := rows.Scan(&recID, &o.Field, &valueJSON, &o.Tier, &o.Entity, &o.SourceDocID, &o.Quote, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if err := json.Unmarshal([]byte(valueJSON), &o.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal observation value")
		}
		o.DealID = dealID
		byRecord[recID] = append(byRecord[recID], o)
	}
	return byRecord, eris.Wrap(rows.Err(), "sqlite: load observations iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*inventory.Record, error) {
	var rec inventory.Record
	err := row.Scan(&rec.DealID, &rec.ID, &rec.Kind, &rec.Entity, &rec.Name, &rec.NameNormalized,
		&rec.Vendor, &rec.VendorNormalized, &rec.Retired, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
