package enums

import "fmt"

// OutboundIntent names a command sent to the payment platform.
type OutboundIntent string

const (
	IntentCreateCheckoutSession OutboundIntent = "create_checkout_session"
	IntentCreateInvoice         OutboundIntent = "create_invoice"
	IntentPauseSubscription     OutboundIntent = "pause_subscription"
	IntentResumeSubscription    OutboundIntent = "resume_subscription"
)

var validOutboundIntents = []OutboundIntent{
	IntentCreateCheckoutSession,
	IntentCreateInvoice,
	IntentPauseSubscription,
	IntentResumeSubscription,
}

// String implements fmt.Stringer.
func (i OutboundIntent) String() string {
	return string(i)
}

// IsValid reports whether the value is a known OutboundIntent.
func (i OutboundIntent) IsValid() bool {
	for _, candidate := range validOutboundIntents {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseOutboundIntent converts raw input into an OutboundIntent.
func ParseOutboundIntent(value string) (OutboundIntent, error) {
	for _, candidate := range validOutboundIntents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbound intent %q", value)
}

// CommandStatus tracks an outbound command through the ledger.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusSucceeded CommandStatus = "succeeded"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusRejected  CommandStatus = "rejected"
)

// String implements fmt.Stringer.
func (c CommandStatus) String() string {
	return string(c)
}
