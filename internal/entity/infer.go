package entity

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Confidence tiers returned by Infer. High and Moderate are thresholds for
// callers that gate on inference quality; Weak is the midpoint returned when
// both indicator sets matched equally; Floor is returned when nothing matched
// and the default tag was used.
const (
	ConfidenceHigh     = 0.80
	ConfidenceModerate = 0.60
	ConfidenceWeak     = 0.50
	ConfidenceFloor    = 0.30
)

// indicatorIncrement is the confidence contribution of each matched
// indicator beyond the opposing side's matches.
const indicatorIncrement = 0.10

// confidenceCap bounds inference confidence; keyword matching is never
// treated as certain.
const confidenceCap = 0.95

// Built-in indicator phrases, lowercase. Multi-word phrases are matched as
// substrings of the folded context; each indicator counts at most once.
var (
	builtinBuyerIndicators = []string{
		"buyer",
		"acquirer",
		"acquiror",
		"purchaser",
		"bidder",
		"bidco",
		"newco",
		"holdco",
		"offeror",
		"sponsor",
		"private equity",
		"acquiring company",
		"investment committee",
		"our existing stack",
	}
	builtinTargetIndicators = []string{
		"target",
		"seller",
		"the company",
		"acquired company",
		"being acquired",
		"carve-out",
		"carveout",
		"divestiture",
		"divested",
		"vendor due diligence",
		"management presentation",
		"portfolio company",
		"in-scope entity",
	}
)

// Inferencer estimates which side of the transaction a piece of context text
// is talking about. It never fails: when no indicator matches it returns the
// configured default tag at ConfidenceFloor.
type Inferencer struct {
	defaultEntity    Entity
	buyerIndicators  []string
	targetIndicators []string
}

// NewInferencer builds an Inferencer seeded with the built-in indicator sets.
// defaultEntity is returned on no-match and on ties; it must be valid.
func NewInferencer(defaultEntity Entity) (*Inferencer, error) {
	if !defaultEntity.Valid() {
		return nil, eris.Wrapf(ErrInvalidEntity, "inferencer default %q", defaultEntity)
	}
	inf := &Inferencer{defaultEntity: defaultEntity}
	inf.buyerIndicators = append(inf.buyerIndicators, builtinBuyerIndicators...)
	inf.targetIndicators = append(inf.targetIndicators, builtinTargetIndicators...)
	return inf, nil
}

// AddBuyerIndicators extends the buyer-indicating set. Terms are folded to
// lowercase; empty terms are ignored.
func (inf *Inferencer) AddBuyerIndicators(terms ...string) {
	inf.buyerIndicators = appendIndicators(inf.buyerIndicators, terms)
}

// AddTargetIndicators extends the target-indicating set.
func (inf *Inferencer) AddTargetIndicators(terms ...string) {
	inf.targetIndicators = appendIndicators(inf.targetIndicators, terms)
}

// indicatorFile is the YAML shape for extension files:
//
//	buyer:
//	  - "the consortium"
//	target:
//	  - "opco"
type indicatorFile struct {
	Buyer  []string `yaml:"buyer"`
	Target []string `yaml:"target"`
}

// LoadIndicatorFile extends both sets from a YAML file.
func (inf *Inferencer) LoadIndicatorFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "entity: read indicator file %s", path)
	}
	var f indicatorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrapf(err, "entity: parse indicator file %s", path)
	}
	inf.AddBuyerIndicators(f.Buyer...)
	inf.AddTargetIndicators(f.Target...)
	return nil
}

// Infer estimates the entity for the given context text together with a
// confidence in [ConfidenceFloor, confidenceCap]. Each matched indicator
// contributes a fixed increment; matches from both sets pull the score back
// toward the midpoint. Always returns a usable tag.
func (inf *Inferencer) Infer(contextText string) (Entity, float64) {
	text := strings.ToLower(contextText)

	buyerHits := countIndicators(text, inf.buyerIndicators)
	targetHits := countIndicators(text, inf.targetIndicators)

	if buyerHits == 0 && targetHits == 0 {
		return inf.defaultEntity, ConfidenceFloor
	}
	if buyerHits == targetHits {
		return inf.defaultEntity, ConfidenceWeak
	}

	winner := Target
	margin := targetHits - buyerHits
	if buyerHits > targetHits {
		winner = Buyer
		margin = buyerHits - targetHits
	}

	confidence := ConfidenceWeak + indicatorIncrement*float64(margin)
	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	return winner, confidence
}

// countIndicators counts how many indicators occur in text, each at most once.
func countIndicators(text string, indicators []string) int {
	var n int
	for _, term := range indicators {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}

func appendIndicators(dst []string, terms []string) []string {
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		dst = append(dst, t)
	}
	return dst
}
