package resolve

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameIndex_InsertKeepsSorted(t *testing.T) {
	ix := NewNameIndex()
	for _, name := range []string{"zeta", "alpha", "mango", "beta", "alpha"} {
		ix.Insert(name, "id-"+name)
	}

	require.Equal(t, 5, ix.Len())
	var prev string
	for _, e := range ix.Narrow("a") {
		assert.GreaterOrEqual(t, e.Name, prev)
		prev = e.Name
	}
}

func TestNameIndex_NarrowFindsSharedPrefix(t *testing.T) {
	ix := NewNameIndex()
	ix.Insert("salesforce", "APP-TARGET-00000001")
	ix.Insert("salesforce crm", "APP-TARGET-00000002")
	ix.Insert("sap erp", "APP-TARGET-00000003")
	ix.Insert("workday", "APP-TARGET-00000004")

	got := ix.Narrow("salesforce marketing cloud")
	names := entryNames(got)
	assert.Contains(t, names, "salesforce")
	assert.Contains(t, names, "salesforce crm")
}

func TestNameIndex_NarrowBoundedOnLargeIndex(t *testing.T) {
	ix := NewNameIndex()
	for i := range 2000 {
		ix.Insert(fmt.Sprintf("record %04d", i), fmt.Sprintf("id-%04d", i))
	}
	ix.Insert("salesforce", "id-sf")

	got := ix.Narrow("salesforce crm")
	assert.Contains(t, entryNames(got), "salesforce")
	// The window stays far below the full index size.
	assert.Less(t, len(got), 100)
}

func TestNameIndex_NarrowRadiusCatchesNeighbors(t *testing.T) {
	ix := NewNameIndex()
	ix.Insert("microsoft dynamics", "id-1")
	ix.Insert("microsoft office", "id-2")

	// A lookup whose 4-byte prefix ("micr" vs "mics") misses, but the neighbor
	// window still surfaces the adjacent entries.
	got := ix.Narrow("micsoft dynamics")
	assert.Contains(t, entryNames(got), "microsoft dynamics")
}

func TestNameIndex_NarrowEmpty(t *testing.T) {
	ix := NewNameIndex()
	assert.Nil(t, ix.Narrow("anything"))

	ix.Insert("salesforce", "id-1")
	assert.Nil(t, ix.Narrow(""))
}

func TestNameIndex_NarrowShortName(t *testing.T) {
	ix := NewNameIndex()
	ix.Insert("git", "id-1")
	ix.Insert("gitlab", "id-2")

	got := ix.Narrow("git")
	names := entryNames(got)
	assert.Contains(t, names, "git")
	assert.Contains(t, names, "gitlab")
}

func entryNames(entries []NameEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
