package inventory

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resolve"
)

// FieldValue is the winning value for one field after merge-by-priority,
// together with the provenance of the observation that supplied it.
type FieldValue struct {
	Value       any              `json:"value"`
	Tier        model.SourceTier `json:"tier"`
	SourceDocID string           `json:"source_document_id"`
	ObservedAt  time.Time        `json:"observed_at"`
}

// Record is one canonical inventory item. Its identity is the
// content-addressed fingerprint; its substance is the ordered set of
// observations attached to it. Records are never deleted, only soft-retired.
type Record struct {
	ID               string        `json:"id"`
	Kind             model.Kind    `json:"kind"`
	Entity           entity.Entity `json:"entity"`
	DealID           string        `json:"deal_id"`
	Name             string        `json:"name"`
	NameNormalized   string        `json:"name_normalized"`
	Vendor           string        `json:"vendor,omitempty"`
	VendorNormalized string        `json:"vendor_normalized,omitempty"`
	Observations     []Observation `json:"observations"`
	Retired          bool          `json:"retired"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewRecord builds a validated record for the given kind spec. Name and
// vendor are raw display strings; normalization and the fingerprint are
// derived here so a record can never exist with an identifier inconsistent
// with its fields.
func NewRecord(spec KindSpec, dealID, name, vendor string, ent entity.Entity) (*Record, error) {
	dealID = strings.TrimSpace(dealID)
	name = strings.TrimSpace(name)
	vendor = strings.TrimSpace(vendor)

	if dealID == "" {
		return nil, eris.Wrap(ErrValidation, "record deal id is required")
	}
	if !ent.Valid() {
		return nil, eris.Wrapf(ErrValidation, "record entity %q", ent)
	}

	nameNorm := resolve.Normalize(name, spec.Kind)
	if nameNorm == "" {
		return nil, eris.Wrapf(ErrValidation, "record name %q normalizes to empty", name)
	}
	vendorNorm := resolve.NormalizeVendor(vendor)
	if spec.VendorRequired && vendorNorm == "" {
		return nil, eris.Wrapf(ErrValidation, "%s records require a vendor", spec.Kind)
	}

	now := time.Now().UTC()
	return &Record{
		ID:               resolve.Fingerprint(nameNorm, vendorNorm, ent, spec.Prefix),
		Kind:             spec.Kind,
		Entity:           ent,
		DealID:           dealID,
		Name:             name,
		NameNormalized:   nameNorm,
		Vendor:           vendor,
		VendorNormalized: vendorNorm,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddObservation validates obs and appends it. The observation must agree
// with the record's entity and deal; evidence extracted under the wrong
// scope is a caller error, not something to reconcile.
func (r *Record) AddObservation(obs Observation) error {
	validated, err := NewObservation(obs)
	if err != nil {
		return err
	}
	if validated.Entity != r.Entity {
		return eris.Wrapf(ErrValidation, "observation entity %q on %s record", validated.Entity, r.Entity)
	}
	if validated.DealID != r.DealID {
		return eris.Wrapf(ErrValidation, "observation deal %q on record in deal %q", validated.DealID, r.DealID)
	}

	r.Observations = append(r.Observations, validated)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Fields merges the observations into one value per field: the
// highest-tier non-nil value wins, ties broken by the most recent
// ObservedAt.
func (r *Record) Fields() map[string]FieldValue {
	fields := make(map[string]FieldValue)
	for _, obs := range r.Observations {
		if obs.Value == nil {
			continue
		}
		current, ok := fields[obs.Field]
		if !ok || obs.Tier > current.Tier ||
			(obs.Tier == current.Tier && obs.ObservedAt.After(current.ObservedAt)) {
			fields[obs.Field] = FieldValue{
				Value:       obs.Value,
				Tier:        obs.Tier,
				SourceDocID: obs.SourceDocID,
				ObservedAt:  obs.ObservedAt,
			}
		}
	}
	return fields
}

// Merge folds other's observations into r. Both records must carry the same
// identifier; merging across identifiers, entities, or deals is rejected.
func (r *Record) Merge(other *Record) error {
	if other == nil {
		return eris.Wrap(ErrValidation, "merge target is nil")
	}
	if other.ID != r.ID {
		return eris.Wrapf(ErrValidation, "merge %s into %s: identifiers differ", other.ID, r.ID)
	}
	if other.Entity != r.Entity {
		return eris.Wrapf(ErrValidation, "merge across entities %s/%s", other.Entity, r.Entity)
	}
	if other.DealID != r.DealID {
		return eris.Wrapf(ErrValidation, "merge across deals %s/%s", other.DealID, r.DealID)
	}

	r.Observations = append(r.Observations, other.Observations...)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Retire soft-retires the record. Retired records stay in the index (their
// identifier remains claimed) but are skipped by fuzzy matching and listings.
func (r *Record) Retire() {
	r.Retired = true
	r.UpdatedAt = time.Now().UTC()
}
