package ingest

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
)

var validate = validator.New()

// Envelope is the signed JSON document posted by the payment platform.
type Envelope struct {
	ID         string       `json:"id" validate:"required,max=255"`
	Type       string       `json:"type" validate:"required"`
	OccurredAt time.Time    `json:"occurredAt" validate:"required"`
	Data       EnvelopeData `json:"data" validate:"-"`
}

// EnvelopeData addresses the event to one track and carries optional refs.
// It is only validated for event kinds the service handles.
type EnvelopeData struct {
	AccountID       string     `json:"accountId" validate:"required"`
	ServiceType     string     `json:"serviceType" validate:"required"`
	CustomerRef     *string    `json:"customerRef,omitempty"`
	SubscriptionRef *string    `json:"subscriptionRef,omitempty"`
	TrialEndsAt     *time.Time `json:"trialEndsAt,omitempty"`
}

func decodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed billing event")
	}
	if err := validate.Struct(&env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing event")
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return &env, nil
}

func (e *Envelope) validateData() error {
	if err := validate.Struct(&e.Data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing event data")
	}
	return nil
}

// payloadData is what the write-ahead row keeps besides the indexed columns.
type payloadData struct {
	CustomerRef     *string    `json:"customerRef,omitempty"`
	SubscriptionRef *string    `json:"subscriptionRef,omitempty"`
	TrialEndsAt     *time.Time `json:"trialEndsAt,omitempty"`
}

// InternalEvent is an event synthesised inside the service, such as a trial
// expiry found by the scheduler.
type InternalEvent struct {
	ID          string
	AccountID   string
	ServiceType enums.ServiceType
	Kind        enums.BillingEventKind
	OccurredAt  time.Time
}

func decodePayload(raw []byte) payloadData {
	var env struct {
		Data payloadData `json:"data"`
	}
	if len(raw) == 0 {
		return payloadData{}
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return payloadData{}
	}
	return env.Data
}

func toReconcilerEvent(id string, kind enums.BillingEventKind, occurredAt time.Time, data payloadData) reconciler.Event {
	return reconciler.Event{
		ID:              id,
		Kind:            kind,
		OccurredAt:      occurredAt.UTC(),
		CustomerRef:     data.CustomerRef,
		SubscriptionRef: data.SubscriptionRef,
		TrialEndsAt:     data.TrialEndsAt,
	}
}

// EventFromRow rebuilds the reconciler input from a logged event.
func EventFromRow(row models.BillingEvent) reconciler.Event {
	return toReconcilerEvent(row.EventID, row.Kind, row.OccurredAt, decodePayload(row.Payload))
}
