package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

func TestExportXLSX_WorkbookLayout(t *testing.T) {
	deal, err := model.NewDeal("Project Atlas", "Acme Corp", "Globex Inc")
	require.NoError(t, err)

	app := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	require.NoError(t, app.AddObservation(testObservation("seats", 250, model.TierStructured)))

	infra, err := inventory.NewRecord(inventory.InfrastructureSpec, "deal-1", "db-prod-01", "", entity.Target)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "atlas.xlsx")
	require.NoError(t, ExportXLSX(path, deal, []inventory.Record{*app, *infra}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	require.Contains(t, f.Sheet, "Applications")
	require.Contains(t, f.Sheet, "Infrastructure")
	require.Contains(t, f.Sheet, "Org Units")
	require.Contains(t, f.Sheet, "Observations")

	apps := f.Sheet["Applications"]
	require.Len(t, apps.Rows, 2) // header + one record
	assert.Equal(t, "ID", apps.Rows[0].Cells[0].String())
	assert.Equal(t, app.ID, apps.Rows[1].Cells[0].String())
	assert.Equal(t, "target", apps.Rows[1].Cells[1].String())
	assert.Equal(t, "Salesforce Inc", apps.Rows[1].Cells[3].String())

	// Org Units has only its header row.
	assert.Len(t, f.Sheet["Org Units"].Rows, 1)

	obs := f.Sheet["Observations"]
	require.Len(t, obs.Rows, 2)
	assert.Equal(t, app.ID, obs.Rows[1].Cells[0].String())
	assert.Equal(t, "seats", obs.Rows[1].Cells[1].String())
	assert.Equal(t, "250", obs.Rows[1].Cells[2].String())
	assert.Equal(t, "structured", obs.Rows[1].Cells[3].String())
	assert.Equal(t, "doc-1", obs.Rows[1].Cells[5].String())
}

func TestExportXLSX_ContractViolation(t *testing.T) {
	deal, err := model.NewDeal("Project Atlas", "", "")
	require.NoError(t, err)

	bad := testRecord(t, "Salesforce CRM", "Salesforce Inc")
	bad.Entity = ""

	path := filepath.Join(t.TempDir(), "bad.xlsx")
	err = ExportXLSX(path, deal, []inventory.Record{*bad})
	assert.ErrorIs(t, err, ErrContract)
}
