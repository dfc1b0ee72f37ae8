// Package ledger implements the extraction coordinator: an append-only
// in-memory record of which (document, kind, dedup key) triples have already
// been counted, so independent extraction passes reading the same text
// cannot inflate more than one kind's inventory with the same fact.
package ledger

import (
	"sync"

	"github.com/sells-group/diligence-cli/internal/model"
)

// sep joins dedup key components; a NUL byte cannot appear in normalized
// names or field names.
const sep = "\x00"

// DedupKey builds the kind-independent dedup key for a fact: the normalized
// name plus the field it evidences. Kind is deliberately excluded so the
// cross-kind gate has something to compare.
func DedupKey(nameNormalized, field string) string {
	return nameNormalized + sep + field
}

type tripleKey struct {
	doc  string
	kind model.Kind
	key  string
}

type docKey struct {
	doc string
	key string
}

// Ledger tracks extracted facts per document. Entries only accumulate;
// the sole way back is Reset, a whole-ledger clear between independent runs.
// Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	triples map[tripleKey]struct{}
	anyKind map[docKey]struct{}
	counts  map[string]map[model.Kind]int
}

// New returns an empty ledger.
func New() *Ledger {
	l := &Ledger{}
	l.reset()
	return l
}

// MarkExtracted records the triple and reports whether this was its first
// sighting. The same key under a different kind is an independent triple.
func (l *Ledger) MarkExtracted(docID string, kind model.Kind, dedupKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mark(docID, kind, dedupKey)
}

// AlreadyExtracted reports whether the exact triple has been marked.
func (l *Ledger) AlreadyExtracted(docID string, kind model.Kind, dedupKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.triples[tripleKey{docID, kind, dedupKey}]
	return seen
}

// AlreadyExtractedAnyKind reports whether the key has been marked for the
// document under any kind.
func (l *Ledger) AlreadyExtractedAnyKind(docID, dedupKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.anyKind[docKey{docID, dedupKey}]
	return seen
}

// Admit is the gate the ingest runner uses: it marks the triple and reports
// true only when no kind has claimed the key for this document yet. Checking
// and marking happen under one lock acquisition, so two concurrent workers
// proposing the same sentence cannot both be admitted.
func (l *Ledger) Admit(docID string, kind model.Kind, dedupKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.anyKind[docKey{docID, dedupKey}]; seen {
		return false
	}
	return l.mark(docID, kind, dedupKey)
}

// Counts returns per-kind counts of marked triples for a document.
func (l *Ledger) Counts(docID string) map[model.Kind]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[model.Kind]int, len(l.counts[docID]))
	for kind, n := range l.counts[docID] {
		out[kind] = n
	}
	return out
}

// Reset clears the whole ledger. There is no per-key rollback.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// mark records the triple; caller holds the lock.
func (l *Ledger) mark(docID string, kind model.Kind, dedupKey string) bool {
	triple := tripleKey{docID, kind, dedupKey}
	if _, seen := l.triples[triple]; seen {
		return false
	}

	l.triples[triple] = struct{}{}
	l.anyKind[docKey{docID, dedupKey}] = struct{}{}
	if l.counts[docID] == nil {
		l.counts[docID] = make(map[model.Kind]int)
	}
	l.counts[docID][kind]++
	return true
}

func (l *Ledger) reset() {
	l.triples = make(map[tripleKey]struct{})
	l.anyKind = make(map[docKey]struct{})
	l.counts = make(map[string]map[model.Kind]int)
}
