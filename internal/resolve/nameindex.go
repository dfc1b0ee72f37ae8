package resolve

import "sort"

// narrowPrefixLen is how many leading bytes of the looked-up name define the
// shared-prefix window consulted after the breaker trips.
const narrowPrefixLen = 4

// narrowRadius is how many neighbors on each side of the window are also
// returned, so a typo in the first characters does not hide a match that
// sorts adjacently.
const narrowRadius = 8

// NameEntry pairs a normalized name with the identifier of the record that
// owns it.
type NameEntry struct {
	Name string
	ID   string
}

// NameIndex keeps normalized names sorted so that candidate lookup narrows
// to O(log n) + a bounded window instead of scanning every record. It
// replaces the pairwise fuzzy scan once a deal's record count crosses the
// breaker threshold. Not safe for concurrent use; the owning repository
// shard serializes access.
type NameIndex struct {
	entries []NameEntry
}

// NewNameIndex returns an empty index.
func NewNameIndex() *NameIndex {
	return &NameIndex{}
}

// Len returns the number of indexed names.
func (ix *NameIndex) Len() int {
	return len(ix.entries)
}

// Insert adds a (name, id) pair, keeping the index sorted by name then id.
func (ix *NameIndex) Insert(name, id string) {
	e := NameEntry{Name: name, ID: id}
	pos := sort.Search(len(ix.entries), func(i int) bool {
		if ix.entries[i].Name != e.Name {
			return ix.entries[i].Name > e.Name
		}
		return ix.entries[i].ID >= e.ID
	})
	ix.entries = append(ix.entries, NameEntry{})
	copy(ix.entries[pos+1:], ix.entries[pos:])
	ix.entries[pos] = e
}

// Narrow returns the candidate entries worth scoring against name: every
// entry sharing the name's prefix, padded by narrowRadius neighbors on each
// side. The result is a small, deterministic slice in index order; callers
// score it with Similarity.
func (ix *NameIndex) Narrow(name string) []NameEntry {
	if len(ix.entries) == 0 || name == "" {
		return nil
	}

	prefix := name
	if len(prefix) > narrowPrefixLen {
		prefix = prefix[:narrowPrefixLen]
	}

	// First entry at or after the prefix.
	start := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Name >= prefix
	})
	// First entry past the prefix window.
	end := start
	for end < len(ix.entries) && hasPrefix(ix.entries[end].Name, prefix) {
		end++
	}

	start -= narrowRadius
	if start < 0 {
		start = 0
	}
	end += narrowRadius
	if end > len(ix.entries) {
		end = len(ix.entries)
	}

	out := make([]NameEntry, end-start)
	copy(out, ix.entries[start:end])
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
