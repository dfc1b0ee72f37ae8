// Package model holds the shared value types of the diligence inventory:
// record kinds, source tiers, deals, and the candidate-fact tuple consumed
// from upstream extraction.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies which inventory a record belongs to.
type Kind string

const (
	// KindApplication covers software products in use at either side.
	KindApplication Kind = "application"
	// KindInfrastructure covers servers, devices, and hosted assets.
	KindInfrastructure Kind = "infrastructure"
	// KindOrgUnit covers organizational units and key people.
	KindOrgUnit Kind = "org_unit"
)

// Kinds lists all record kinds in stable order.
var Kinds = []Kind{KindApplication, KindInfrastructure, KindOrgUnit}

// ErrInvalidKind is returned when a string does not name a record kind.
var ErrInvalidKind = eris.New("model: invalid record kind")

// ParseKind converts a raw string to a Kind. Accepts the canonical names plus
// common short forms used in fact files ("app", "infra", "org").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindApplication), "app", "apps", "software":
		return KindApplication, nil
	case string(KindInfrastructure), "infra", "asset", "infrastructure_asset":
		return KindInfrastructure, nil
	case string(KindOrgUnit), "org", "orgunit", "person", "people", "organization":
		return KindOrgUnit, nil
	default:
		return "", eris.Wrapf(ErrInvalidKind, "parse %q", s)
	}
}

// Valid reports whether k is a defined record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindApplication, KindInfrastructure, KindOrgUnit:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}
