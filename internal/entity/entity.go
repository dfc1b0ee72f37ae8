// Package entity defines the closed transaction-side classification carried
// by every record and observation in a deal, and keyword-based inference of
// that classification from free text.
package entity

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Entity is the side of the transaction a record belongs to. The set is
// closed: a record is either about the target company or about the buyer.
// There is no third value and no "unknown"; callers that cannot supply a
// tag must run inference first.
type Entity string

const (
	// Target is the company being acquired.
	Target Entity = "target"
	// Buyer is the acquiring side.
	Buyer Entity = "buyer"
)

// ErrInvalidEntity is returned when a string does not name a valid entity.
var ErrInvalidEntity = eris.New("entity: invalid entity tag")

// Parse converts a raw string to an Entity. Accepts "target" and "buyer" in
// any case, with surrounding whitespace. Anything else, including the empty
// string, is a validation error, never defaulted.
func Parse(s string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Target):
		return Target, nil
	case string(Buyer):
		return Buyer, nil
	default:
		return "", eris.Wrapf(ErrInvalidEntity, "parse %q", s)
	}
}

// Valid reports whether e is one of the two defined tags.
func (e Entity) Valid() bool {
	return e == Target || e == Buyer
}

// Code returns the uppercase token embedded in record identifiers,
// e.g. APP-TARGET-4f9a21bc.
func (e Entity) Code() string {
	return strings.ToUpper(string(e))
}

// Other returns the opposite side.
func (e Entity) Other() Entity {
	if e == Target {
		return Buyer
	}
	return Target
}

func (e Entity) String() string {
	return string(e)
}
