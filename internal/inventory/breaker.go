package inventory

import (
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/model"
)

// DefaultBreakerThreshold is the record count above which a deal's fuzzy
// pre-check abandons the pairwise scan for the sorted name index.
const DefaultBreakerThreshold = 500

// matchBreaker is the count-threshold strategy switch bounding fuzzy-match
// cost. Unlike a failure breaker it never rejects anything: crossing the
// threshold only changes which matching path runs, logged once per shard.
// Guarded by the owning shard's mutex.
type matchBreaker struct {
	threshold int
	tripped   bool
}

// Tripped reports whether the indexed path should be used for a shard
// currently holding count records, logging the transition the first time.
func (b *matchBreaker) Tripped(count int, dealID string, kind model.Kind) bool {
	if count <= b.threshold {
		return false
	}
	if !b.tripped {
		b.tripped = true
		zap.L().Info("fuzzy match breaker tripped, switching to indexed lookup",
			zap.String("deal_id", dealID),
			zap.String("kind", kind.String()),
			zap.Int("records", count),
			zap.Int("threshold", b.threshold),
		)
	}
	return true
}

// MatchCounters exposes per-strategy call counts for a deal shard. Tests and
// operators use them to verify which matching path ran.
type MatchCounters struct {
	ExactHits    int64 `json:"exact_hits"`
	FuzzyHits    int64 `json:"fuzzy_hits"`
	LinearScans  int64 `json:"linear_scans"`
	IndexedScans int64 `json:"indexed_scans"`
	Created      int64 `json:"created"`
}
