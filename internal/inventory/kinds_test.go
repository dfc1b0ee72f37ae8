package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/model"
)

func TestSpecFor(t *testing.T) {
	spec, err := SpecFor(model.KindApplication)
	require.NoError(t, err)
	assert.Equal(t, "APP", spec.Prefix)
	assert.True(t, spec.VendorRequired)

	spec, err = SpecFor(model.KindInfrastructure)
	require.NoError(t, err)
	assert.Equal(t, "INFRA", spec.Prefix)
	assert.False(t, spec.VendorRequired)

	spec, err = SpecFor(model.KindOrgUnit)
	require.NoError(t, err)
	assert.Equal(t, "ORG", spec.Prefix)
	assert.False(t, spec.VendorRequired)

	_, err = SpecFor(model.Kind("warehouse"))
	require.Error(t, err)
}

func TestApplication_TypedAccessors(t *testing.T) {
	rec := newAppRecord(t)

	version := validObservation()
	version.Field = "version"
	version.Value = "Spring '26"
	require.NoError(t, rec.AddObservation(version))

	seats := validObservation()
	seats.Field = "seats"
	seats.Value = float64(450) // numbers arrive as float64 from JSON facts
	require.NoError(t, rec.AddObservation(seats))

	app := Application{rec}
	assert.Equal(t, "Spring '26", app.Version())
	assert.Equal(t, 450, app.Seats())
	assert.Equal(t, "", app.Hosting(), "absent field yields zero value")
}

func TestInfrastructureAsset_TypedAccessors(t *testing.T) {
	rec, err := NewRecord(InfrastructureSpec, "deal-1", "Core Router", "", entity.Target)
	require.NoError(t, err)

	loc := validObservation()
	loc.Field = "location"
	loc.Value = "Frankfurt DC"
	require.NoError(t, rec.AddObservation(loc))

	asset := InfrastructureAsset{rec}
	assert.Equal(t, "Frankfurt DC", asset.Location())
	assert.Equal(t, "", asset.OperatingSystem())
	assert.Equal(t, "", asset.Environment())
}

func TestOrgUnit_TypedAccessors(t *testing.T) {
	rec, err := NewRecord(OrgUnitSpec, "deal-1", "Finance Department", "", entity.Target)
	require.NoError(t, err)

	head := validObservation()
	head.Field = "headcount"
	head.Value = 12
	require.NoError(t, rec.AddObservation(head))

	unit := OrgUnit{rec}
	assert.Equal(t, 12, unit.Headcount())
	assert.Equal(t, "", unit.Leader())
	assert.Equal(t, "finance", rec.NameNormalized)
}
