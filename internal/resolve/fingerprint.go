package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/entity"
)

// fingerprintSep separates the hashed fields. A NUL byte cannot survive
// normalization, so "ab"+"c" and "a"+"bc" can never hash identically.
const fingerprintSep = "\x00"

// emptyVendorMarker stands in for an absent vendor inside the hash input.
// It is a control byte normalization strips from real names, so a vendor
// whose name normalizes to "" still fingerprints differently from no vendor.
const emptyVendorMarker = "\x1f"

// hashWidth is the number of hex digits of the digest kept in identifiers.
const hashWidth = 8

// Fingerprint derives the stable record identifier
// {kindPrefix}-{ENTITY}-{hash8} from the already-normalized name and vendor.
// The hash covers name, vendor-or-marker, and entity, so changing any of the
// three changes the identifier: same-vendor product lines stay distinct, and
// target/buyer records for an identically named item never collide. Nothing
// mutable feeds the hash: identical input yields the identical identifier
// on every run.
func Fingerprint(nameNormalized, vendorNormalized string, ent entity.Entity, kindPrefix string) string {
	vendor := vendorNormalized
	if vendor == "" {
		vendor = emptyVendorMarker
	}

	sum := sha256.Sum256([]byte(nameNormalized + fingerprintSep + vendor + fingerprintSep + ent.Code()))
	return kindPrefix + "-" + ent.Code() + "-" + hex.EncodeToString(sum[:])[:hashWidth]
}

// ParseFingerprint splits an identifier into its kind prefix, entity, and
// hash components. Used for diagnostics and export validation, not for
// matching; matching always goes through the full identifier.
func ParseFingerprint(id string) (prefix string, ent entity.Entity, hash string, err error) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return "", "", "", eris.Errorf("resolve: malformed identifier %q", id)
	}
	prefix, code, hash := parts[0], parts[1], parts[2]

	ent, parseErr := entity.Parse(code)
	if parseErr != nil {
		return "", "", "", eris.Wrapf(parseErr, "resolve: identifier %q", id)
	}
	if prefix == "" || len(hash) != hashWidth {
		return "", "", "", eris.Errorf("resolve: malformed identifier %q", id)
	}
	return prefix, ent, hash, nil
}
