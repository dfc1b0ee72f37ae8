// Package resolve implements the deterministic matching primitives of the
// inventory kernel: name normalization, content-addressed fingerprints, the
// similarity measure used by the fuzzy pre-check, and the sorted name index
// that replaces pairwise scans once a deal grows past the breaker threshold.
//
// Everything in this package is pure: same input, same output, no I/O, no
// clocks, no randomness. That property is what makes record identifiers
// reproducible across repeated runs over the same documents.
package resolve

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/diligence-cli/internal/model"
)

// legalSuffixes lists trailing corporate-form tokens that never distinguish
// one record from another. Dotted variants must come before their bare forms
// so the maximal suffix is stripped. Tokens are matched against the
// lowercased name and only when preceded by a space; a name that IS a
// suffix ("LLC") is left alone.
var legalSuffixes = []string{
	"incorporated", "inc.", "inc",
	"corporation", "corp.", "corp",
	"limited", "ltd.", "ltd",
	"l.l.c.", "l.l.c", "llc", "llp",
	"l.p.", "lp",
	"p.l.c.", "plc",
	"gmbh", "s.a.", "n.v.", "ag",
	"co.", "co",
}

// orgSuffixes extends the legal forms with unit words that restate "this is
// an org unit" without distinguishing which one.
var orgSuffixes = append([]string{"department", "dept.", "dept"}, legalSuffixes...)

// infraSuffixes lists tokens that restate the record kind for infrastructure
// assets. Environment markers (prod, staging, dr) are deliberately absent:
// they distinguish genuinely different assets.
var infraSuffixes = []string{"server", "servers", "host", "appliance", "instance"}

// kindSuffixes maps each record kind to its strip whitelist.
var kindSuffixes = map[model.Kind][]string{
	model.KindApplication:    legalSuffixes,
	model.KindInfrastructure: infraSuffixes,
	model.KindOrgUnit:        orgSuffixes,
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// foldPool hands out transformers that decompose characters and drop
// combining marks, so "Café" and "Cafe" normalize identically. A chained
// Transformer carries internal buffers and must not be shared across
// goroutines, so each fold call takes one from the pool.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// Normalize canonicalizes a raw name into the comparison key for its kind:
// diacritics folded, lowercased, whitespace collapsed, kind-whitelisted
// trailing tokens stripped. Hyphens and internal punctuation are preserved
// because they distinguish product lines and role titles. Empty or unknown input
// yields "", never an absent value, so fingerprinting stays total.
func Normalize(raw string, kind model.Kind) string {
	name := fold(raw)
	if name == "" {
		return ""
	}
	return stripSuffixes(name, kindSuffixes[kind])
}

// NormalizeVendor canonicalizes a vendor name. Vendors are companies, so the
// legal-form whitelist applies regardless of the record kind.
func NormalizeVendor(raw string) string {
	name := fold(raw)
	if name == "" {
		return ""
	}
	return stripSuffixes(name, legalSuffixes)
}

// fold applies the kind-independent steps: mark folding, lowercasing,
// whitespace collapse, and control-byte removal.
func fold(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	foldMarks := foldPool.Get().(transform.Transformer)
	if folded, _, err := transform.String(foldMarks, s); err == nil {
		s = folded
	}
	foldPool.Put(foldMarks)
	s = strings.ToLower(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// stripSuffixes repeatedly removes whitelisted trailing tokens. A strip that
// would leave nothing is not applied.
func stripSuffixes(name string, suffixes []string) string {
	for {
		stripped := name
		for _, suffix := range suffixes {
			if cut, ok := strings.CutSuffix(stripped, " "+suffix); ok {
				stripped = cut
				break
			}
		}
		if stripped == name {
			return name
		}
		stripped = strings.TrimRight(stripped, " ,;:&")
		if stripped == "" {
			return name
		}
		name = stripped
	}
}
