package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind_CanonicalAndShortForms(t *testing.T) {
	cases := map[string]Kind{
		"application":          KindApplication,
		"APP":                  KindApplication,
		"software":             KindApplication,
		"infrastructure":       KindInfrastructure,
		"infra":                KindInfrastructure,
		"asset":                KindInfrastructure,
		"infrastructure_asset": KindInfrastructure,
		"org_unit":             KindOrgUnit,
		"org":                  KindOrgUnit,
		"person":               KindOrgUnit,
		" Organization ":       KindOrgUnit,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseKind_Invalid(t *testing.T) {
	for _, raw := range []string{"", "warehouse", "company"} {
		_, err := ParseKind(raw)
		require.Error(t, err, raw)
		assert.True(t, eris.Is(err, ErrInvalidKind), raw)
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("warehouse").Valid())
}
