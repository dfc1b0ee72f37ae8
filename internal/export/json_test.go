package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

func testRecord(t *testing.T, name, vendor string) *inventory.Record {
	t.Helper()
	rec, err := inventory.NewRecord(inventory.ApplicationSpec, "deal-1", name, vendor, entity.Target)
	require.NoError(t, err)
	return rec
}

func testObservation(field string, value any, tier model.SourceTier) inventory.Observation {
	return inventory.Observation{
		Field: field, Value: value, Tier: tier,
		Entity: entity.Target, DealID: "deal-1", SourceDocID: "doc-1",
		ObservedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmitRecord_Contract(t *testing.T) {
	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	require.NoError(t, rec.AddObservation(testObservation("seats", 250, model.TierProse)))

	out, err := EmitRecord(rec)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, out.ID)
	assert.Equal(t, model.KindApplication, out.Kind)
	assert.Equal(t, entity.Target, out.Entity)
	assert.Equal(t, "deal-1", out.DealID)
	require.NotNil(t, out.Vendor)
	assert.Equal(t, "Salesforce Inc", *out.Vendor)
	require.Len(t, out.Observations, 1)
	assert.Equal(t, "doc-1", out.Observations[0].SourceDocID)
	assert.Equal(t, "deal-1", out.Observations[0].DealID)
}

func TestEmitRecord_VendorNullWhenAbsent(t *testing.T) {
	rec, err := inventory.NewRecord(inventory.InfrastructureSpec, "deal-1", "db-prod-01", "", entity.Target)
	require.NoError(t, err)

	out, err := EmitRecord(rec)
	require.NoError(t, err)
	assert.Nil(t, out.Vendor)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"vendor":null`)
}

func TestEmitRecord_MissingEntityRejected(t *testing.T) {
	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	rec.Entity = ""

	_, err := EmitRecord(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContract)
}

func TestEmitRecord_MissingDealRejected(t *testing.T) {
	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	rec.DealID = ""

	_, err := EmitRecord(rec)
	assert.ErrorIs(t, err, ErrContract)
}

func TestEmitRecord_ObservationMissingSourceRejected(t *testing.T) {
	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	require.NoError(t, rec.AddObservation(testObservation("seats", 250, model.TierProse)))
	rec.Observations[0].SourceDocID = ""

	_, err := EmitRecord(rec)
	assert.ErrorIs(t, err, ErrContract)
}

func TestEmitRecord_MergedFieldsWin(t *testing.T) {
	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	require.NoError(t, rec.AddObservation(testObservation("version", "Spring 24", model.TierProse)))
	require.NoError(t, rec.AddObservation(testObservation("version", "Summer 24", model.TierStructured)))

	out, err := EmitRecord(rec)
	require.NoError(t, err)
	require.Contains(t, out.Fields, "version")
	assert.Equal(t, "Summer 24", out.Fields["version"].Value)
	assert.Len(t, out.Observations, 2) // merge never drops provenance
}

func TestExportDeal_StableOrderAndCounts(t *testing.T) {
	deal, err := model.NewDeal("Project Atlas", "Acme Corp", "Globex Inc")
	require.NoError(t, err)

	app := testRecord(t, "Workday HCM", "Workday Inc")
	infra, err := inventory.NewRecord(inventory.InfrastructureSpec, "deal-1", "db-prod-01", "", entity.Target)
	require.NoError(t, err)

	// Input order is infra-first; export must order by kind then id.
	doc, err := ExportDeal(deal, []inventory.Record{*infra, *app})
	require.NoError(t, err)

	require.Len(t, doc.Records, 2)
	assert.Equal(t, model.KindApplication, doc.Records[0].Kind)
	assert.Equal(t, model.KindInfrastructure, doc.Records[1].Kind)
	assert.Equal(t, 1, doc.Counts[model.KindApplication])
	assert.Equal(t, 1, doc.Counts[model.KindInfrastructure])
	assert.False(t, doc.ExportedAt.IsZero())
}

func TestExportDeal_PropagatesContractError(t *testing.T) {
	deal, err := model.NewDeal("Project Atlas", "", "")
	require.NoError(t, err)

	bad := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	bad.Entity = ""

	_, err = ExportDeal(deal, []inventory.Record{*bad})
	assert.ErrorIs(t, err, ErrContract)
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	deal, err := model.NewDeal("Project Atlas", "Acme Corp", "Globex Inc")
	require.NoError(t, err)

	rec := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	require.NoError(t, rec.AddObservation(testObservation("seats", float64(250), model.TierStructured)))

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, deal, []inventory.Record{*rec}))

	var doc DealExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, deal.ID, doc.Deal.ID)
	require.Len(t, doc.Records, 1)
	assert.Equal(t, rec.ID, doc.Records[0].ID)
	require.Len(t, doc.Records[0].Observations, 1)
	assert.Equal(t, float64(250), doc.Records[0].Observations[0].Value)
}
