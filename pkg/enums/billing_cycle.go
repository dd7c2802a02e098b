package enums

import "fmt"

// BillingCycle defines the commitment cadence of a track.
type BillingCycle string

const (
	BillingCycleNone          BillingCycle = "none"
	BillingCycleMonthly       BillingCycle = "monthly"
	BillingCycleAnnual        BillingCycle = "annual"
	BillingCycleAnnualInvoice BillingCycle = "annual_invoice"
)

var validBillingCycles = []BillingCycle{
	BillingCycleNone,
	BillingCycleMonthly,
	BillingCycleAnnual,
	BillingCycleAnnualInvoice,
}

// String implements fmt.Stringer.
func (b BillingCycle) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingCycle.
func (b BillingCycle) IsValid() bool {
	for _, candidate := range validBillingCycles {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsAnnual reports whether the cycle is an annual commitment.
func (b BillingCycle) IsAnnual() bool {
	return b == BillingCycleAnnual || b == BillingCycleAnnualInvoice
}

// ParseBillingCycle converts raw input into a BillingCycle.
func ParseBillingCycle(value string) (BillingCycle, error) {
	for _, candidate := range validBillingCycles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing cycle %q", value)
}
