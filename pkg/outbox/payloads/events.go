package payloads

import (
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// InvariantViolationAlert reports an event or request rejected by the invariant guard.
type InvariantViolationAlert struct {
	AccountID   string                 `json:"account_id"`
	ServiceType enums.ServiceType      `json:"service_type"`
	EventID     string                 `json:"event_id,omitempty"`
	EventKind   enums.BillingEventKind `json:"event_kind,omitempty"`
	Rule        string                 `json:"rule"`
	From        enums.LifecycleStage   `json:"from"`
	To          enums.LifecycleStage   `json:"to"`
	DetectedAt  time.Time              `json:"detected_at"`
}

// SignatureInvalidAlert reports a webhook delivery whose signature did not verify.
type SignatureInvalidAlert struct {
	RemoteAddr string    `json:"remote_addr,omitempty"`
	BodySHA256 string    `json:"body_sha256"`
	BodyBytes  int       `json:"body_bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundCommandFailedAlert reports a platform command that exhausted its retries.
type OutboundCommandFailedAlert struct {
	AccountID      string               `json:"account_id"`
	ServiceType    enums.ServiceType    `json:"service_type"`
	Intent         enums.OutboundIntent `json:"intent"`
	IdempotencyKey string               `json:"idempotency_key"`
	Attempts       int                  `json:"attempts"`
	Error          string               `json:"error"`
	FailedAt       time.Time            `json:"failed_at"`
}

// TrackTransitionedEvent is emitted after an applied transition.
type TrackTransitionedEvent struct {
	AccountID   string                 `json:"account_id"`
	ServiceType enums.ServiceType      `json:"service_type"`
	From        enums.LifecycleStage   `json:"from"`
	To          enums.LifecycleStage   `json:"to"`
	EventID     string                 `json:"event_id,omitempty"`
	EventKind   enums.BillingEventKind `json:"event_kind,omitempty"`
	Version     int64                  `json:"version"`
	Entitled    bool                   `json:"entitled"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
