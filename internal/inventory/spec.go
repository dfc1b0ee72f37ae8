package inventory

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/model"
)

// KindSpec declares how one record kind parameterizes the kernel: its
// identifier prefix and whether a vendor is required. Vendor requirement is
// the anti-collision lever: applications demand it so same-vendor product
// lines ("SAP ERP" vs "SAP SuccessFactors") can never share an identifier.
type KindSpec struct {
	Kind           model.Kind
	Prefix         string
	VendorRequired bool
}

var (
	// ApplicationSpec: software products. Vendor required.
	ApplicationSpec = KindSpec{Kind: model.KindApplication, Prefix: "APP", VendorRequired: true}
	// InfrastructureSpec: servers, devices, hosted assets. Vendor optional.
	InfrastructureSpec = KindSpec{Kind: model.KindInfrastructure, Prefix: "INFRA", VendorRequired: false}
	// OrgUnitSpec: org units and key people. Vendor optional.
	OrgUnitSpec = KindSpec{Kind: model.KindOrgUnit, Prefix: "ORG", VendorRequired: false}
)

// SpecFor returns the KindSpec for a record kind.
func SpecFor(kind model.Kind) (KindSpec, error) {
	switch kind {
	case model.KindApplication:
		return ApplicationSpec, nil
	case model.KindInfrastructure:
		return InfrastructureSpec, nil
	case model.KindOrgUnit:
		return OrgUnitSpec, nil
	default:
		return KindSpec{}, eris.Wrapf(model.ErrInvalidKind, "spec for %q", kind)
	}
}
