package model

import (
	"strconv"
	"strings"
)

// SourceTier ranks how much an observation's source is trusted. Higher wins
// during field merges: a value read out of a structured table beats the same
// field extracted from prose, which beats a model inference.
type SourceTier int

const (
	// TierInference marks values inferred rather than stated.
	TierInference SourceTier = 1
	// TierProse marks values extracted from running text.
	TierProse SourceTier = 2
	// TierStructured marks values read from tables or structured exports.
	TierStructured SourceTier = 3
)

// ParseTier maps fact-file spellings to a tier. Unrecognized input falls back
// to TierInference, the least-trusted tier, so a sloppy upstream label can
// only ever lower trust, never raise it.
func ParseTier(s string) SourceTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "table", "structured-table", "3":
		return TierStructured
	case "prose", "text", "document", "2":
		return TierProse
	case "inference", "inferred", "model", "1":
		return TierInference
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		if t := SourceTier(n); t.Valid() {
			return t
		}
	}
	return TierInference
}

// Valid reports whether t is a defined tier.
func (t SourceTier) Valid() bool {
	return t >= TierInference && t <= TierStructured
}

func (t SourceTier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierProse:
		return "prose"
	case TierInference:
		return "inference"
	default:
		return "unknown"
	}
}
