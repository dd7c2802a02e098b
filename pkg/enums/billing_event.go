package enums

import "fmt"

// BillingEventKind is the normalized kind of an external or scheduler event.
type BillingEventKind string

const (
	EventKindCheckoutCompleted    BillingEventKind = "checkout_completed"
	EventKindInvoicePaid          BillingEventKind = "invoice_paid"
	EventKindPaymentFailed        BillingEventKind = "payment_failed"
	EventKindSubscriptionCanceled BillingEventKind = "subscription_canceled"
	EventKindSubscriptionPaused   BillingEventKind = "subscription_paused"
	EventKindSubscriptionResumed  BillingEventKind = "subscription_resumed"
	EventKindSubscriptionPastDue  BillingEventKind = "subscription_past_due"

	// Scheduler-generated kinds; never accepted from the webhook.
	EventKindTrialEnded         BillingEventKind = "trial_ended"
	EventKindGracePeriodExpired BillingEventKind = "grace_period_expired"
)

var externalEventKinds = []BillingEventKind{
	EventKindCheckoutCompleted,
	EventKindInvoicePaid,
	EventKindPaymentFailed,
	EventKindSubscriptionCanceled,
	EventKindSubscriptionPaused,
	EventKindSubscriptionResumed,
	EventKindSubscriptionPastDue,
}

var internalEventKinds = []BillingEventKind{
	EventKindTrialEnded,
	EventKindGracePeriodExpired,
}

// String implements fmt.Stringer.
func (k BillingEventKind) String() string {
	return string(k)
}

// IsExternal reports whether the payment platform may emit this kind.
func (k BillingEventKind) IsExternal() bool {
	for _, candidate := range externalEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsInternal reports whether the kind is produced by the scheduler.
func (k BillingEventKind) IsInternal() bool {
	for _, candidate := range internalEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is any known kind.
func (k BillingEventKind) IsValid() bool {
	return k.IsExternal() || k.IsInternal()
}

// Precedence orders kinds for timestamp ties: cancellation > past_due > paid > other.
func (k BillingEventKind) Precedence() int {
	switch k {
	case EventKindSubscriptionCanceled, EventKindGracePeriodExpired:
		return 3
	case EventKindSubscriptionPastDue, EventKindPaymentFailed:
		return 2
	case EventKindInvoicePaid, EventKindCheckoutCompleted:
		return 1
	default:
		return 0
	}
}

// ParseBillingEventKind converts raw input into a BillingEventKind.
func ParseBillingEventKind(value string) (BillingEventKind, error) {
	kind := BillingEventKind(value)
	if kind.IsValid() {
		return kind, nil
	}
	return "", fmt.Errorf("invalid billing event kind %q", value)
}

// BillingEventSource records how an event entered the log.
type BillingEventSource string

const (
	EventSourceWebhook  BillingEventSource = "webhook"
	EventSourceInternal BillingEventSource = "internal"
	EventSourceReplay   BillingEventSource = "replay"
)

// EventOutcome is the recorded result of reconciling one event.
type EventOutcome string

const (
	OutcomeApplied  EventOutcome = "applied"
	OutcomeIgnored  EventOutcome = "ignored"
	OutcomeStale    EventOutcome = "stale"
	OutcomeRejected EventOutcome = "rejected"
)

// String implements fmt.Stringer.
func (o EventOutcome) String() string {
	return string(o)
}
