package enums

import "fmt"

// ServiceType identifies one of the independently billable service tracks.
type ServiceType string

const (
	ServiceTypeAdvertising ServiceType = "advertising"
	ServiceTypeRecruiting  ServiceType = "recruiting"
)

var validServiceTypes = []ServiceType{
	ServiceTypeAdvertising,
	ServiceTypeRecruiting,
}

// AllServiceTypes returns every billable service type in a stable order.
func AllServiceTypes() []ServiceType {
	out := make([]ServiceType, len(validServiceTypes))
	copy(out, validServiceTypes)
	return out
}

// String implements fmt.Stringer.
func (s ServiceType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceType.
func (s ServiceType) IsValid() bool {
	for _, candidate := range validServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceType converts raw input into a ServiceType.
func ParseServiceType(value string) (ServiceType, error) {
	for _, candidate := range validServiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service type %q", value)
}
