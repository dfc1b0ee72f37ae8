package inventory

// Aggregate is the view a kind specialization exposes over its underlying
// record. Repositories are generic over it so each kind gets typed results
// without duplicating the matching machinery.
type Aggregate interface {
	Rec() *Record
}

// Application is the software-inventory specialization. Typed accessors read
// the merged field set; absent fields yield zero values.
type Application struct {
	*Record
}

// Rec implements Aggregate.
func (a Application) Rec() *Record { return a.Record }

// Version returns the merged product version, if observed.
func (a Application) Version() string { return fieldString(a.Record, "version") }

// Seats returns the merged licensed-seat count, if observed.
func (a Application) Seats() int { return fieldInt(a.Record, "seats") }

// Hosting returns the merged hosting model ("saas", "on-prem", ...).
func (a Application) Hosting() string { return fieldString(a.Record, "hosting") }

// InfrastructureAsset is the infrastructure-inventory specialization.
type InfrastructureAsset struct {
	*Record
}

// Rec implements Aggregate.
func (i InfrastructureAsset) Rec() *Record { return i.Record }

// Location returns the merged physical or cloud location.
func (i InfrastructureAsset) Location() string { return fieldString(i.Record, "location") }

// OperatingSystem returns the merged OS name.
func (i InfrastructureAsset) OperatingSystem() string { return fieldString(i.Record, "os") }

// Environment returns the merged environment marker ("prod", "dr", ...).
func (i InfrastructureAsset) Environment() string { return fieldString(i.Record, "environment") }

// OrgUnit is the organization-inventory specialization.
type OrgUnit struct {
	*Record
}

// Rec implements Aggregate.
func (o OrgUnit) Rec() *Record { return o.Record }

// Headcount returns the merged headcount, if observed.
func (o OrgUnit) Headcount() int { return fieldInt(o.Record, "headcount") }

// Leader returns the merged unit leader or role holder.
func (o OrgUnit) Leader() string { return fieldString(o.Record, "leader") }

func fieldString(r *Record, key string) string {
	if fv, ok := r.Fields()[key]; ok {
		if s, ok := fv.Value.(string); ok {
			return s
		}
	}
	return ""
}

func fieldInt(r *Record, key string) int {
	fv, ok := r.Fields()[key]
	if !ok {
		return 0
	}
	switch n := fv.Value.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
