package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// CandidateFact is the tuple upstream extraction hands to the kernel for one
// proposed fact: what was seen, where, and under which entity. Entity may be
// empty, in which case Context is run through inference before resolution.
type CandidateFact struct {
	DocumentID string     `json:"document_id"`
	Kind       Kind       `json:"kind"`
	Name       string     `json:"name"`
	Vendor     string     `json:"vendor,omitempty"`
	Entity     string     `json:"entity,omitempty"`
	Context    string     `json:"context,omitempty"`
	Field      string     `json:"field,omitempty"`
	Value      any        `json:"value,omitempty"`
	Quote      string     `json:"quote,omitempty"`
	Tier       SourceTier `json:"tier,omitempty"`
}

// Normalize fills structural defaults: a fact with no field evidences the
// record's name itself, and an unset tier is treated as inference.
func (f *CandidateFact) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Vendor = strings.TrimSpace(f.Vendor)
	f.Entity = strings.TrimSpace(f.Entity)
	if f.Field == "" {
		f.Field = "name"
	}
	if f.Value == nil && f.Name != "" {
		f.Value = f.Name
	}
	if !f.Tier.Valid() {
		f.Tier = TierInference
	}
}

// Validate checks the structural requirements a fact must meet before it is
// worth running through the kernel. Entity/vendor rules are enforced later
// by the repository; this is the cheap reader-side gate.
func (f *CandidateFact) Validate() error {
	if strings.TrimSpace(f.DocumentID) == "" {
		return eris.New("model: fact document_id is required")
	}
	if !f.Kind.Valid() {
		return eris.Wrapf(ErrInvalidKind, "fact kind %q", f.Kind)
	}
	if strings.TrimSpace(f.Name) == "" {
		return eris.New("model: fact name is required")
	}
	return nil
}
