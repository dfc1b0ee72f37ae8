package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/ledger"
	"github.com/sells-group/diligence-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedDeal(t *testing.T, st *SQLiteStore) *model.Deal {
	t.Helper()
	deal, err := model.NewDeal("Project Atlas", "Acme Corp", "Globex Inc")
	require.NoError(t, err)
	require.NoError(t, st.CreateDeal(context.Background(), deal))
	return deal
}

func appRecord(t *testing.T, dealID, name, vendor string, ent entity.Entity) *inventory.Record {
	t.Helper()
	rec, err := inventory.NewRecord(inventory.ApplicationSpec, dealID, name, vendor, ent)
	require.NoError(t, err)
	return rec
}

// --- Deals ---

func TestSQLite_Deal_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, st)

	got, err := st.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.ID, got.ID)
	assert.Equal(t, "Project Atlas", got.Name)
	assert.Equal(t, "Acme Corp", got.TargetName)
	assert.Equal(t, "Globex Inc", got.BuyerName)
	assert.Equal(t, model.DealStatusOpen, got.Status)
}

func TestSQLite_Deal_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDeal(context.Background(), "no-such-deal")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Deal_UpdateStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	require.NoError(t, st.UpdateDealStatus(ctx, deal.ID, model.DealStatusReview))

	got, err := st.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DealStatusReview, got.Status)

	err = st.UpdateDealStatus(ctx, "missing", model.DealStatusClosed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Deal_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedDeal(t, st)
	seedDeal(t, st)

	deals, err := st.ListDeals(ctx)
	require.NoError(t, err)
	assert.Len(t, deals, 2)
}

// --- Records ---

func TestSQLite_Record_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	rec := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	require.NoError(t, st.SaveRecord(ctx, rec))

	got, err := st.GetRecord(ctx, deal.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, model.KindApplication, got.Kind)
	assert.Equal(t, entity.Target, got.Entity)
	assert.Equal(t, "Salesforce CRM", got.Name)
	assert.Equal(t, rec.NameNormalized, got.NameNormalized)
	assert.Equal(t, rec.VendorNormalized, got.VendorNormalized)
	assert.False(t, got.Retired)
	assert.Empty(t, got.Observations)
}

func TestSQLite_Record_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	deal := seedDeal(t, st)

	_, err := st.GetRecord(context.Background(), deal.ID, "APP-TARGET-00000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Record_UpsertUpdatesMutableColumns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	rec := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	require.NoError(t, st.SaveRecord(ctx, rec))

	rec.Retire()
	require.NoError(t, st.SaveRecord(ctx, rec))

	got, err := st.GetRecord(ctx, deal.ID, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Retired)
}

func TestSQLite_Record_SaveBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	recs := []*inventory.Record{
		appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target),
		appRecord(t, deal.ID, "Workday HCM", "Workday Inc", entity.Target),
		appRecord(t, deal.ID, "Slack", "Salesforce Inc", entity.Buyer),
	}
	require.NoError(t, st.SaveRecords(ctx, recs))

	listed, err := st.ListRecords(ctx, deal.ID, RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestSQLite_ListRecords_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	target := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	buyer := appRecord(t, deal.ID, "Workday HCM", "Workday Inc", entity.Buyer)
	retired := appRecord(t, deal.ID, "Lotus Notes", "IBM", entity.Target)
	retired.Retire()

	infra, err := inventory.NewRecord(inventory.InfrastructureSpec, deal.ID, "db-prod-01", "", entity.Target)
	require.NoError(t, err)

	require.NoError(t, st.SaveRecords(ctx, []*inventory.Record{target, buyer, retired, infra}))

	byKind, err := st.ListRecords(ctx, deal.ID, RecordFilter{Kind: model.KindApplication})
	require.NoError(t, err)
	assert.Len(t, byKind, 2) // retired excluded by default

	byEntity, err := st.ListRecords(ctx, deal.ID, RecordFilter{Entity: entity.Buyer})
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	assert.Equal(t, buyer.ID, byEntity[0].ID)

	withRetired, err := st.ListRecords(ctx, deal.ID, RecordFilter{Kind: model.KindApplication, IncludeRetired: true})
	require.NoError(t, err)
	assert.Len(t, withRetired, 3)
}

func TestSQLite_ListRecords_DealScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	dealA := seedDeal(t, st)
	dealB := seedDeal(t, st)

	require.NoError(t, st.SaveRecord(ctx, appRecord(t, dealA.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)))

	got, err := st.ListRecords(ctx, dealB.ID, RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Observations ---

func TestSQLite_Observations_AppendAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	rec := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	require.NoError(t, st.SaveRecord(ctx, rec))

	obs := []inventory.Observation{
		{
			Field: "name", Value: "Salesforce CRM", Tier: model.TierStructured,
			Entity: entity.Target, DealID: deal.ID, SourceDocID: "doc-1",
		},
		{
			Field: "seats", Value: float64(250), Tier: model.TierProse,
			Entity: entity.Target, DealID: deal.ID, SourceDocID: "doc-2",
			Quote: "about 250 licensed users",
		},
	}
	require.NoError(t, st.AppendObservations(ctx, deal.ID, rec.ID, obs))

	got, err := st.GetRecord(ctx, deal.ID, rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Observations, 2)
	assert.Equal(t, "name", got.Observations[0].Field)
	assert.Equal(t, model.TierStructured, got.Observations[0].Tier)
	assert.Equal(t, "doc-1", got.Observations[0].SourceDocID)
	assert.Equal(t, float64(250), got.Observations[1].Value)
	assert.Equal(t, "about 250 licensed users", got.Observations[1].Quote)
	assert.Equal(t, deal.ID, got.Observations[1].DealID)
}

func TestSQLite_Observations_SurviveFieldMerge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	rec := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	require.NoError(t, st.SaveRecord(ctx, rec))

	obs := []inventory.Observation{
		{Field: "version", Value: "Spring 24", Tier: model.TierProse, Entity: entity.Target, DealID: deal.ID, SourceDocID: "doc-1"},
		{Field: "version", Value: "Summer 24", Tier: model.TierStructured, Entity: entity.Target, DealID: deal.ID, SourceDocID: "doc-2"},
	}
	require.NoError(t, st.AppendObservations(ctx, deal.ID, rec.ID, obs))

	got, err := st.GetRecord(ctx, deal.ID, rec.ID)
	require.NoError(t, err)

	fields := got.Fields()
	require.Contains(t, fields, "version")
	assert.Equal(t, "Summer 24", fields["version"].Value) // structured beats prose
}

// --- SearchSimilar ---

func TestSQLite_SearchSimilar_Ranking(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	exact := appRecord(t, deal.ID, "Salesforce", "Salesforce Inc", entity.Target)
	near := appRecord(t, deal.ID, "Salesforce CRM", "Salesforce Inc", entity.Target)
	far := appRecord(t, deal.ID, "Workday HCM", "Workday Inc", entity.Target)
	require.NoError(t, st.SaveRecords(ctx, []*inventory.Record{exact, near, far}))

	got, err := st.SearchSimilar(ctx, deal.ID, model.KindApplication, "salesforce", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, exact.ID, got[0].ID)
	assert.Equal(t, near.ID, got[1].ID)
}

func TestSQLite_SearchSimilar_SkipsRetired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	rec := appRecord(t, deal.ID, "Salesforce", "Salesforce Inc", entity.Target)
	rec.Retire()
	require.NoError(t, st.SaveRecord(ctx, rec))

	got, err := st.SearchSimilar(ctx, deal.ID, model.KindApplication, "salesforce", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Extraction ledger ---

func TestSQLite_Ledger_MarkExtractedIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	key := ledger.DedupKey("salesforce", "name")

	first, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, key)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, key)
	require.NoError(t, err)
	assert.False(t, second)

	// Same key under another kind is an independent triple.
	other, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindOrgUnit, key)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestSQLite_Ledger_CountsAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	_, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, ledger.DedupKey("salesforce", "name"))
	require.NoError(t, err)
	_, err = st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, ledger.DedupKey("workday", "name"))
	require.NoError(t, err)
	_, err = st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindInfrastructure, ledger.DedupKey("db-prod-01", "name"))
	require.NoError(t, err)

	counts, err := st.LedgerCounts(ctx, deal.ID, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.KindApplication])
	assert.Equal(t, 1, counts[model.KindInfrastructure])

	entries, err := st.ListLedger(ctx, deal.ID, "doc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	all, err := st.ListLedger(ctx, deal.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLite_Ledger_Reset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deal := seedDeal(t, st)

	key := ledger.DedupKey("salesforce", "name")
	_, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, key)
	require.NoError(t, err)

	n, err := st.ResetLedger(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The triple can be claimed again after a reset.
	again, err := st.MarkExtracted(ctx, deal.ID, "doc-1", model.KindApplication, key)
	require.NoError(t, err)
	assert.True(t, again)
}
