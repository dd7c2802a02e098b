package enums

import "fmt"

// LifecycleStage is the billing state of a single track.
type LifecycleStage string

const (
	StageNone            LifecycleStage = "none"
	StagePendingCheckout LifecycleStage = "pending_checkout"
	StagePendingInvoice  LifecycleStage = "pending_invoice"
	StageTrialing        LifecycleStage = "trialing"
	StageActive          LifecycleStage = "active"
	StagePausedByUser    LifecycleStage = "paused_by_user"
	StagePastDue         LifecycleStage = "past_due"
	StageCanceled        LifecycleStage = "canceled"
)

var validLifecycleStages = []LifecycleStage{
	StageNone,
	StagePendingCheckout,
	StagePendingInvoice,
	StageTrialing,
	StageActive,
	StagePausedByUser,
	StagePastDue,
	StageCanceled,
}

// AllLifecycleStages returns every stage in declaration order.
func AllLifecycleStages() []LifecycleStage {
	out := make([]LifecycleStage, len(validLifecycleStages))
	copy(out, validLifecycleStages)
	return out
}

// String implements fmt.Stringer.
func (s LifecycleStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LifecycleStage.
func (s LifecycleStage) IsValid() bool {
	for _, candidate := range validLifecycleStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPending reports whether the stage waits on a payment confirmation.
func (s LifecycleStage) IsPending() bool {
	return s == StagePendingCheckout || s == StagePendingInvoice
}

// ParseLifecycleStage converts raw input into a LifecycleStage.
func ParseLifecycleStage(value string) (LifecycleStage, error) {
	for _, candidate := range validLifecycleStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lifecycle stage %q", value)
}
