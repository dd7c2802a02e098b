// Package guard holds every business rule that constrains a track transition.
// Event-driven and user-driven changes are both checked here.
package guard

import (
	"errors"
	"fmt"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// Source identifies who proposed a transition.
type Source string

const (
	SourceEvent  Source = "event"
	SourceUser   Source = "user"
	SourceAdmin  Source = "admin"
	SourceSystem Source = "system"
)

// Rule names, surfaced to callers and alerts verbatim.
const (
	RuleAnnualCannotPause             = "annual_cannot_pause"
	RulePendingInvoiceNotUserExitable = "pending_invoice_not_user_exitable"
	RuleCanceledIsTerminal            = "canceled_is_terminal"
	RuleCheckoutRequiresIdle          = "checkout_requires_idle"
	RulePauseRequiresActive           = "pause_requires_active"
	RuleResumeRequiresPaused          = "resume_requires_paused"
	RuleCycleMethodMismatch           = "cycle_method_mismatch"
	RuleIllegalTransition             = "illegal_transition"
)

// Transition is a proposed stage change for one track.
type Transition struct {
	From   enums.LifecycleStage
	To     enums.LifecycleStage
	Source Source
	// Kind is set for event-driven transitions.
	Kind enums.BillingEventKind
	// Intent is set for user-driven transitions.
	Intent enums.OutboundIntent
	// Cycle and Method describe the track after the transition.
	Cycle  enums.BillingCycle
	Method enums.PaymentMethod
}

// Violation names the rule a transition broke.
type Violation struct {
	Rule   string
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return "invariant violation: " + v.Rule
	}
	return fmt.Sprintf("invariant violation: %s (%s)", v.Rule, v.Detail)
}

func violation(rule, format string, args ...any) *Violation {
	return &Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

var edges = map[enums.LifecycleStage][]enums.LifecycleStage{
	enums.StageNone:            {enums.StagePendingCheckout, enums.StagePendingInvoice},
	enums.StagePendingCheckout: {enums.StageTrialing, enums.StageActive},
	enums.StagePendingInvoice:  {enums.StageActive},
	enums.StageTrialing:        {enums.StageActive, enums.StageCanceled},
	enums.StageActive:          {enums.StagePausedByUser, enums.StagePastDue, enums.StageCanceled},
	enums.StagePausedByUser:    {enums.StageActive, enums.StageCanceled},
	enums.StagePastDue:         {enums.StageActive, enums.StageCanceled},
	enums.StageCanceled:        {enums.StagePendingCheckout, enums.StagePendingInvoice},
}

// Allowed reports whether the state machine has an edge from one stage to another.
func Allowed(from, to enums.LifecycleStage) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Check returns nil when the transition is permitted for the track, or a
// *Violation naming the first rule it breaks.
func Check(track models.Track, t Transition) error {
	if t.From == "" {
		t.From = track.LifecycleStage
	}
	if t.Cycle == "" {
		t.Cycle = track.BillingCycle
	}
	if t.Method == "" {
		t.Method = track.PaymentMethod
	}
	if v := check(t); v != nil {
		return v
	}
	return nil
}

func check(t Transition) *Violation {
	if t.To == enums.StagePausedByUser && t.Cycle.IsAnnual() {
		return violation(RuleAnnualCannotPause, "cycle %s", t.Cycle)
	}
	if !t.To.IsValid() {
		return violation(RuleIllegalTransition, "unknown stage %q", t.To)
	}

	if t.From == enums.StagePendingInvoice && t.To != enums.StagePendingInvoice {
		switch t.Source {
		case SourceAdmin:
		case SourceEvent, SourceSystem:
			if t.Kind != enums.EventKindInvoicePaid {
				return violation(RulePendingInvoiceNotUserExitable, "exit by %s", t.Kind)
			}
		default:
			return violation(RulePendingInvoiceNotUserExitable, "exit by %s", t.Source)
		}
	}

	if t.From == enums.StageCanceled && t.Source != SourceAdmin {
		if t.Source != SourceUser || !t.To.IsPending() {
			return violation(RuleCanceledIsTerminal, "%s -> %s", t.From, t.To)
		}
	}

	if t.Source == SourceUser {
		switch t.Intent {
		case enums.IntentCreateCheckoutSession, enums.IntentCreateInvoice:
			if t.From != enums.StageNone && t.From != enums.StageCanceled {
				return violation(RuleCheckoutRequiresIdle, "stage %s", t.From)
			}
		case enums.IntentPauseSubscription:
			if t.From != enums.StageActive {
				return violation(RulePauseRequiresActive, "stage %s", t.From)
			}
		case enums.IntentResumeSubscription:
			if t.From != enums.StagePausedByUser {
				return violation(RuleResumeRequiresPaused, "stage %s", t.From)
			}
		}
	}

	if t.To.IsPending() {
		if v := checkCycleMethod(t.Cycle, t.Method); v != nil {
			return v
		}
		if t.To == enums.StagePendingInvoice && t.Method != enums.PaymentMethodInvoice {
			return violation(RuleCycleMethodMismatch, "pending_invoice with %s", t.Method)
		}
		if t.To == enums.StagePendingCheckout && t.Method != enums.PaymentMethodCard {
			return violation(RuleCycleMethodMismatch, "pending_checkout with %s", t.Method)
		}
	}

	if t.Source != SourceAdmin && !Allowed(t.From, t.To) {
		return violation(RuleIllegalTransition, "%s -> %s", t.From, t.To)
	}
	return nil
}

// CheckCycleMethod validates a billing cycle and payment method pairing.
func CheckCycleMethod(cycle enums.BillingCycle, method enums.PaymentMethod) error {
	if v := checkCycleMethod(cycle, method); v != nil {
		return v
	}
	return nil
}

func checkCycleMethod(cycle enums.BillingCycle, method enums.PaymentMethod) *Violation {
	switch method {
	case enums.PaymentMethodInvoice:
		if cycle != enums.BillingCycleAnnualInvoice {
			return violation(RuleCycleMethodMismatch, "invoice requires annual_invoice, got %s", cycle)
		}
	case enums.PaymentMethodCard:
		if cycle != enums.BillingCycleMonthly && cycle != enums.BillingCycleAnnual {
			return violation(RuleCycleMethodMismatch, "card requires monthly or annual, got %s", cycle)
		}
	default:
		return violation(RuleCycleMethodMismatch, "payment method %q", method)
	}
	return nil
}

// IsEntitled is the single entitlement predicate for a lifecycle stage.
func IsEntitled(stage enums.LifecycleStage) bool {
	return stage == enums.StageActive || stage == enums.StageTrialing
}

// RuleOf extracts the violated rule name from err, if any.
func RuleOf(err error) (string, bool) {
	var v *Violation
	if !errors.As(err, &v) || v == nil {
		return "", false
	}
	return v.Rule, true
}
