package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("salesforce", "salesforce"))
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("salesforce", ""))
	assert.Equal(t, 0.0, Similarity("", "salesforce"))
}

func TestSimilarity_MinorDrift(t *testing.T) {
	// Single-character drift on a single token: caught by the edit ratio.
	assert.GreaterOrEqual(t, Similarity("salesforce", "salesfore"), DefaultSimilarityThreshold)
	assert.GreaterOrEqual(t, Similarity("postgresql", "postgresq"), DefaultSimilarityThreshold)
}

func TestSimilarity_WordOrder(t *testing.T) {
	// Reordered tokens: caught by the token-set ratio.
	assert.Equal(t, 1.0, Similarity("crm salesforce", "salesforce crm"))
}

func TestSimilarity_QualifierSuffixContainment(t *testing.T) {
	// One name extending the other with a qualifier token must clear the
	// threshold, but never outrank an exact match.
	assert.GreaterOrEqual(t, Similarity("salesforce crm", "salesforce"), DefaultSimilarityThreshold)
	assert.GreaterOrEqual(t, Similarity("quickbooks", "quickbooks online"), DefaultSimilarityThreshold)
	assert.Less(t, Similarity("salesforce crm", "salesforce"), 1.0)
}

func TestSimilarity_DistinctProducts(t *testing.T) {
	// Genuinely different products from the same vendor must stay below the
	// threshold, which is the whole point of the kernel.
	assert.Less(t, Similarity("sap erp", "sap successfactors"), DefaultSimilarityThreshold)
	assert.Less(t, Similarity("oracle", "workday"), DefaultSimilarityThreshold)
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "microsoft dynamics", "microsoft dynamcs"
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestSimilarity_Deterministic(t *testing.T) {
	first := Similarity("global payroll system", "global payrol system")
	for range 5 {
		assert.Equal(t, first, Similarity("global payroll system", "global payrol system"))
	}
}

func TestLevenshtein_KnownDistances(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, levenshtein([]rune(tc.a), []rune(tc.b)), "%s vs %s", tc.a, tc.b)
	}
}
