// Package inventory implements the deduplicating record layer of the
// diligence kernel: validated observations, aggregate records with
// merge-by-priority field resolution, and the deal-scoped repository that
// turns noisy candidate facts into exactly one canonical record per real
// item.
package inventory

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/model"
)

// ErrValidation is the sentinel wrapped by every construction and merge
// failure in this package. Callers gate with eris.Is(err, ErrValidation).
var ErrValidation = eris.New("inventory: validation")

// Observation is one sourced piece of evidence about a record: a field, the
// claimed value, where it was seen, and how much the source is trusted.
// Observations are immutable once attached to a record.
type Observation struct {
	Field       string           `json:"field"`
	Value       any              `json:"value"`
	Tier        model.SourceTier `json:"tier"`
	Entity      entity.Entity    `json:"entity"`
	DealID      string           `json:"deal_id"`
	SourceDocID string           `json:"source_document_id"`
	Quote       string           `json:"quote,omitempty"`
	ObservedAt  time.Time        `json:"observed_at"`
}

// NewObservation validates o and returns it with defaults filled: an unset
// ObservedAt becomes the current UTC time. An observation missing its entity,
// deal, source document, field, or value is rejected, never coerced.
func NewObservation(o Observation) (Observation, error) {
	if err := o.Validate(); err != nil {
		return Observation{}, err
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now().UTC()
	}
	return o, nil
}

// Validate checks the invariants every observation must hold.
func (o *Observation) Validate() error {
	switch {
	case !o.Entity.Valid():
		return eris.Wrapf(ErrValidation, "observation entity %q", o.Entity)
	case strings.TrimSpace(o.DealID) == "":
		return eris.Wrap(ErrValidation, "observation deal id is required")
	case strings.TrimSpace(o.SourceDocID) == "":
		return eris.Wrap(ErrValidation, "observation source document id is required")
	case strings.TrimSpace(o.Field) == "":
		return eris.Wrap(ErrValidation, "observation field is required")
	case o.Value == nil:
		return eris.Wrap(ErrValidation, "observation value is required")
	case !o.Tier.Valid():
		return eris.Wrapf(ErrValidation, "observation tier %d", o.Tier)
	default:
		return nil
	}
}
