package entity

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Target(t *testing.T) {
	e, err := Parse("target")
	require.NoError(t, err)
	assert.Equal(t, Target, e)
}

func TestParse_Buyer(t *testing.T) {
	e, err := Parse("buyer")
	require.NoError(t, err)
	assert.Equal(t, Buyer, e)
}

func TestParse_CaseInsensitive(t *testing.T) {
	for _, raw := range []string{"Target", "TARGET", "  tArGeT  "} {
		e, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Target, e, raw)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "both", "unknown", "vendor"} {
		_, err := Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, eris.Is(err, ErrInvalidEntity), raw)
	}
}

func TestEntity_Valid(t *testing.T) {
	assert.True(t, Target.Valid())
	assert.True(t, Buyer.Valid())
	assert.False(t, Entity("").Valid())
	assert.False(t, Entity("both").Valid())
}

func TestEntity_Code(t *testing.T) {
	assert.Equal(t, "TARGET", Target.Code())
	assert.Equal(t, "BUYER", Buyer.Code())
}

func TestEntity_Other(t *testing.T) {
	assert.Equal(t, Buyer, Target.Other())
	assert.Equal(t, Target, Buyer.Other())
}
