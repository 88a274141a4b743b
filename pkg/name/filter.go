package name

// Parameter selects one component of a NAME
type Parameter int

const (
	Other                   Parameter = -1
	IdentityNumber          Parameter = 0
	ManufacturerCode        Parameter = 1
	ECUInstance             Parameter = 2
	FunctionInstance        Parameter = 3
	FunctionCode            Parameter = 4
	DeviceClass             Parameter = 5
	DeviceClassInstance     Parameter = 6
	IndustryGroup           Parameter = 7
	ArbitraryAddressCapable Parameter = 8
)

// String returns string representation of Parameter
func (p Parameter) String() string {
	switch p {
	case IdentityNumber:
		return "IdentityNumber"
	case ManufacturerCode:
		return "ManufacturerCode"
	case ECUInstance:
		return "ECUInstance"
	case FunctionInstance:
		return "FunctionInstance"
	case FunctionCode:
		return "FunctionCode"
	case DeviceClass:
		return "DeviceClass"
	case DeviceClassInstance:
		return "DeviceClassInstance"
	case IndustryGroup:
		return "IndustryGroup"
	case ArbitraryAddressCapable:
		return "ArbitraryAddressCapable"
	default:
		return "Other"
	}
}

// ParseParameter maps a parameter name back to its value.
func ParseParameter(s string) Parameter {
	for p := IdentityNumber; p <= ArbitraryAddressCapable; p++ {
		if p.String() == s {
			return p
		}
	}
	return Other
}

// Filter associates a NAME component with the value it must have.
type Filter struct {
	Parameter Parameter
	Value     uint32
}

// NewFilter creates a filter for one NAME component.
func NewFilter(p Parameter, value uint32) Filter {
	return Filter{Parameter: p, Value: value}
}

// Matches reports whether n carries the filtered value. A filter on Other
// never matches.
func (f Filter) Matches(n NAME) bool {
	if f.Parameter < IdentityNumber || f.Parameter > ArbitraryAddressCapable {
		return false
	}
	return n.Get(f.Parameter) == f.Value
}

// MatchesAll reports whether every filter matches n. An empty set matches
// nothing so a partner without criteria is never bound by accident.
func MatchesAll(filters []Filter, n NAME) bool {
	if len(filters) == 0 {
		return false
	}
	for _, f := range filters {
		if !f.Matches(n) {
			return false
		}
	}
	return true
}
