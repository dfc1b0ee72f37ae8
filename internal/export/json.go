// Package export emits the reconciled inventory of a deal in the downstream
// contract: JSON for machine consumers, an XLSX workbook for reviewers.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/entity"
	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

// ErrContract is the sentinel wrapped when a record or observation is missing
// a field the downstream contract declares mandatory. Emission fails loudly
// rather than omitting the field.
var ErrContract = eris.New("export: contract violation")

// ObservationJSON is the emitted form of one observation.
type ObservationJSON struct {
	Field       string           `json:"field"`
	Value       any              `json:"value"`
	Tier        model.SourceTier `json:"tier"`
	Entity      entity.Entity    `json:"entity"`
	DealID      string           `json:"deal_id"`
	SourceDocID string           `json:"source_document_id"`
	Quote       string           `json:"quote,omitempty"`
	ObservedAt  time.Time        `json:"observed_at"`
}

// RecordJSON is the emitted form of one record. Vendor is a pointer so a
// record without a vendor emits null, not the empty string.
type RecordJSON struct {
	ID           string                          `json:"id"`
	Kind         model.Kind                      `json:"kind"`
	Entity       entity.Entity                   `json:"entity"`
	DealID       string                          `json:"deal_id"`
	Name         string                          `json:"name"`
	Vendor       *string                         `json:"vendor"`
	Retired      bool                            `json:"retired"`
	Fields       map[string]inventory.FieldValue `json:"fields"`
	Observations []ObservationJSON               `json:"observations"`
}

// DealExport is the top-level JSON document for one deal.
type DealExport struct {
	Deal       model.Deal         `json:"deal"`
	Counts     map[model.Kind]int `json:"counts"`
	Records    []RecordJSON       `json:"records"`
	ExportedAt time.Time          `json:"exported_at"`
}

// EmitRecord converts a record to its contract form, validating the
// mandatory fields on the record and every observation.
func EmitRecord(rec *inventory.Record) (RecordJSON, error) {
	if rec == nil {
		return RecordJSON{}, eris.Wrap(ErrContract, "record is nil")
	}
	if !rec.Entity.Valid() {
		return RecordJSON{}, eris.Wrapf(ErrContract, "record %s has no entity", rec.ID)
	}
	if strings.TrimSpace(rec.DealID) == "" {
		return RecordJSON{}, eris.Wrapf(ErrContract, "record %s has no deal id", rec.ID)
	}

	out := RecordJSON{
		ID:      rec.ID,
		Kind:    rec.Kind,
		Entity:  rec.Entity,
		DealID:  rec.DealID,
		Name:    rec.Name,
		Retired: rec.Retired,
		Fields:  rec.Fields(),
	}
	if rec.Vendor != "" {
		vendor := rec.Vendor
		out.Vendor = &vendor
	}

	out.Observations = make([]ObservationJSON, 0, len(rec.Observations))
	for i, obs := range rec.Observations {
		if !obs.Entity.Valid() {
			return RecordJSON{}, eris.Wrapf(ErrContract, "record %s observation %d has no entity", rec.ID, i)
		}
		if strings.TrimSpace(obs.DealID) == "" {
			return RecordJSON{}, eris.Wrapf(ErrContract, "record %s observation %d has no deal id", rec.ID, i)
		}
		if strings.TrimSpace(obs.SourceDocID) == "" {
			return RecordJSON{}, eris.Wrapf(ErrContract, "record %s observation %d has no source document", rec.ID, i)
		}
		out.Observations = append(out.Observations, ObservationJSON{
			Field:       obs.Field,
			Value:       obs.Value,
			Tier:        obs.Tier,
			Entity:      obs.Entity,
			DealID:      obs.DealID,
			SourceDocID: obs.SourceDocID,
			Quote:       obs.Quote,
			ObservedAt:  obs.ObservedAt,
		})
	}
	return out, nil
}

// ExportDeal builds the full export document. Records are emitted in stable
// order (kind, then identifier) regardless of input order.
func ExportDeal(deal *model.Deal, recs []inventory.Record) (*DealExport, error) {
	if deal == nil {
		return nil, eris.Wrap(ErrContract, "deal is nil")
	}

	sorted := make([]inventory.Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := &DealExport{
		Deal:       *deal,
		Counts:     make(map[model.Kind]int),
		Records:    make([]RecordJSON, 0, len(sorted)),
		ExportedAt: time.Now().UTC(),
	}
	for i := range sorted {
		rj, err := EmitRecord(&sorted[i])
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, rj)
		out.Counts[rj.Kind]++
	}
	return out, nil
}

// WriteJSON emits the deal export as indented JSON.
func WriteJSON(w io.Writer, deal *model.Deal, recs []inventory.Record) error {
	doc, err := ExportDeal(deal, recs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// formatValue renders an observation or field value for tabular output.
func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
