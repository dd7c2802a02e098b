// Package reconciler computes the next state of a billing track from one event.
// It performs no I/O; callers persist the result.
package reconciler

import (
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/guard"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// Outcome reasons.
const (
	ReasonAlreadyApplied  = "already_applied"
	ReasonStale           = "older_than_last_transition"
	ReasonTieBreakLost    = "tie_break_lost"
	ReasonNoTransition    = "no_transition"
	ReasonTrialNotElapsed = "trial_not_elapsed"
	ReasonTrialInProgress = "trial_in_progress"
	ReasonAlreadyInStage  = "already_in_stage"
	ReasonTerminal        = "track_canceled"
	ReasonNotStarted      = "track_not_started"
	ReasonUnknownKind     = "unknown_kind"
	ReasonAwaitingConfirm = "awaiting_confirmation"
	ReasonPriorGeneration = "prior_generation"
)

// Event is a normalized billing event addressed to a single track.
type Event struct {
	ID              string
	Kind            enums.BillingEventKind
	OccurredAt      time.Time
	CustomerRef     *string
	SubscriptionRef *string
	TrialEndsAt     *time.Time
}

// Policy carries the static configuration the transition rules depend on.
type Policy struct {
	TrialPeriod              time.Duration
	ServiceAvailabilityStart time.Time
}

// Outcome describes what reconciling one event did.
type Outcome struct {
	Kind   enums.EventOutcome   `json:"kind"`
	Reason string               `json:"reason,omitempty"`
	From   enums.LifecycleStage `json:"from"`
	To     enums.LifecycleStage `json:"to"`
}

// Applied reports whether the track changed.
func (o Outcome) Applied() bool {
	return o.Kind == enums.OutcomeApplied
}

// Result is the track after reconciliation together with the outcome.
// When the outcome is not applied, Track equals the input track.
type Result struct {
	Track   models.Track
	Outcome Outcome
}

// Rank orders lifecycle stages for staleness detection. Stages sharing a rank
// are lateral moves.
func Rank(stage enums.LifecycleStage) int {
	switch stage {
	case enums.StageNone:
		return 0
	case enums.StagePendingCheckout, enums.StagePendingInvoice:
		return 1
	case enums.StageTrialing:
		return 2
	case enums.StageActive, enums.StagePausedByUser, enums.StagePastDue:
		return 3
	case enums.StageCanceled:
		return 4
	default:
		return -1
	}
}

// Forward reports whether moving from one stage to another strictly advances
// the lifecycle.
func Forward(from, to enums.LifecycleStage) bool {
	return Rank(to) > Rank(from)
}

// Reconcile applies ev to track. It is total and deterministic: the same input
// always yields the same result, and feeding the resulting track back with
// the same event yields no further change.
func Reconcile(track models.Track, ev Event, p Policy) Result {
	from := track.LifecycleStage
	keep := func(kind enums.EventOutcome, reason string) Result {
		return Result{Track: track, Outcome: Outcome{Kind: kind, Reason: reason, From: from, To: from}}
	}

	if track.LastEventID != nil && *track.LastEventID == ev.ID {
		return keep(enums.OutcomeIgnored, ReasonAlreadyApplied)
	}
	if !ev.Kind.IsValid() {
		return keep(enums.OutcomeIgnored, ReasonUnknownKind)
	}
	if priorGeneration(track, ev) {
		return keep(enums.OutcomeIgnored, ReasonPriorGeneration)
	}

	step := next(track, ev, p)
	forward := step.ok && Forward(from, step.to)

	if track.LastTransitionAt != nil && ev.OccurredAt.Before(*track.LastTransitionAt) && !forward {
		return keep(enums.OutcomeStale, ReasonStale)
	}
	if track.LastEventTimestamp != nil && track.LastEventKind != nil &&
		ev.OccurredAt.Equal(*track.LastEventTimestamp) &&
		track.LastEventKind.Precedence() > ev.Kind.Precedence() && !forward {
		return keep(enums.OutcomeStale, ReasonTieBreakLost)
	}
	if !step.ok {
		return keep(enums.OutcomeIgnored, step.reason)
	}

	source := guard.SourceEvent
	if ev.Kind.IsInternal() {
		source = guard.SourceSystem
	}
	if err := guard.Check(track, guard.Transition{
		From:   from,
		To:     step.to,
		Source: source,
		Kind:   ev.Kind,
	}); err != nil {
		rule, ok := guard.RuleOf(err)
		if !ok {
			rule = guard.RuleIllegalTransition
		}
		return Result{Track: track, Outcome: Outcome{Kind: enums.OutcomeRejected, Reason: rule, From: from, To: step.to}}
	}

	out := track
	out.LifecycleStage = step.to
	out.TrialEndsAt = step.trialEndsAt
	if out.ExternalCustomerRef == nil && ev.CustomerRef != nil && *ev.CustomerRef != "" {
		out.ExternalCustomerRef = copyString(ev.CustomerRef)
	}
	if out.ExternalSubscriptionRef == nil && ev.SubscriptionRef != nil && *ev.SubscriptionRef != "" {
		out.ExternalSubscriptionRef = copyString(ev.SubscriptionRef)
	}
	occurred := ev.OccurredAt
	kind := ev.Kind
	out.LastEventID = copyString(&ev.ID)
	out.LastEventKind = &kind
	out.LastEventTimestamp = &occurred
	out.LastTransitionAt = &occurred
	out.Version = track.Version + 1

	return Result{Track: out, Outcome: Outcome{Kind: enums.OutcomeApplied, From: from, To: step.to}}
}

// priorGeneration reports whether ev belongs to a purchase the track has
// since replaced: it happened before the current generation began, or it names
// a different subscription than the one the track holds.
func priorGeneration(track models.Track, ev Event) bool {
	if track.GenerationStartedAt != nil && ev.OccurredAt.Before(*track.GenerationStartedAt) {
		return true
	}
	return track.ExternalSubscriptionRef != nil && ev.SubscriptionRef != nil && *ev.SubscriptionRef != "" &&
		*ev.SubscriptionRef != *track.ExternalSubscriptionRef
}

type step struct {
	ok          bool
	to          enums.LifecycleStage
	trialEndsAt *time.Time
	reason      string
}

func move(to enums.LifecycleStage, trialEndsAt *time.Time) step {
	return step{ok: true, to: to, trialEndsAt: trialEndsAt}
}

func ignore(reason string) step {
	return step{reason: reason}
}

func next(track models.Track, ev Event, p Policy) step {
	stage := track.LifecycleStage
	kind := ev.Kind

	if kind == enums.EventKindSubscriptionCanceled {
		switch stage {
		case enums.StageActive, enums.StageTrialing, enums.StagePausedByUser, enums.StagePastDue:
			return move(enums.StageCanceled, track.TrialEndsAt)
		case enums.StageCanceled:
			return ignore(ReasonAlreadyInStage)
		case enums.StageNone:
			return ignore(ReasonNotStarted)
		default:
			return ignore(ReasonAwaitingConfirm)
		}
	}

	switch stage {
	case enums.StageNone:
		return ignore(ReasonNotStarted)

	case enums.StageCanceled:
		return ignore(ReasonTerminal)

	case enums.StagePendingCheckout:
		if kind != enums.EventKindCheckoutCompleted {
			return ignore(ReasonNoTransition)
		}
		trialEnds := trialEnd(ev, p)
		if trialEnds != nil && trialEnds.After(ev.OccurredAt) {
			return move(enums.StageTrialing, trialEnds)
		}
		return move(enums.StageActive, trialEnds)

	case enums.StagePendingInvoice:
		if kind != enums.EventKindInvoicePaid {
			return ignore(ReasonNoTransition)
		}
		return move(enums.StageActive, track.TrialEndsAt)

	case enums.StageTrialing:
		trialEnds := track.TrialEndsAt
		if ev.TrialEndsAt != nil {
			trialEnds = ev.TrialEndsAt
		}
		elapsed := trialEnds == nil || !ev.OccurredAt.Before(*trialEnds)
		switch kind {
		case enums.EventKindTrialEnded:
			if !elapsed {
				return ignore(ReasonTrialNotElapsed)
			}
			return move(enums.StageActive, trialEnds)
		case enums.EventKindCheckoutCompleted, enums.EventKindInvoicePaid:
			if !elapsed {
				return ignore(ReasonTrialInProgress)
			}
			return move(enums.StageActive, trialEnds)
		}
		return ignore(ReasonNoTransition)

	case enums.StageActive:
		switch kind {
		case enums.EventKindPaymentFailed, enums.EventKindSubscriptionPastDue:
			return move(enums.StagePastDue, track.TrialEndsAt)
		case enums.EventKindSubscriptionPaused:
			return move(enums.StagePausedByUser, track.TrialEndsAt)
		}
		return ignore(ReasonAlreadyInStage)

	case enums.StagePausedByUser:
		if kind == enums.EventKindSubscriptionResumed {
			return move(enums.StageActive, track.TrialEndsAt)
		}
		return ignore(ReasonNoTransition)

	case enums.StagePastDue:
		switch kind {
		case enums.EventKindInvoicePaid:
			return move(enums.StageActive, track.TrialEndsAt)
		case enums.EventKindGracePeriodExpired:
			return move(enums.StageCanceled, track.TrialEndsAt)
		}
		return ignore(ReasonNoTransition)
	}

	return ignore(ReasonNoTransition)
}

// trialEnd picks the trial end for a completed checkout. An explicit value on
// the event wins; otherwise the configured period counts from the later of the
// event time and the service availability start.
func trialEnd(ev Event, p Policy) *time.Time {
	if ev.TrialEndsAt != nil {
		v := ev.TrialEndsAt.UTC()
		return &v
	}
	if p.TrialPeriod <= 0 {
		return nil
	}
	start := ev.OccurredAt
	if p.ServiceAvailabilityStart.After(start) {
		start = p.ServiceAvailabilityStart
	}
	v := start.Add(p.TrialPeriod).UTC()
	return &v
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
