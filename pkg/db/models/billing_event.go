package models

import (
	"encoding/json"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// BillingEvent is the write-ahead record of an event. A row with ProcessedAt set
// has been fully reconciled; a row without it is safe to replay.
type BillingEvent struct {
	EventID       string                   `gorm:"column:event_id;primaryKey"`
	AccountID     string                   `gorm:"column:account_id;not null;index:ix_billing_events_track_time,priority:1"`
	ServiceType   enums.ServiceType        `gorm:"column:service_type;type:text;not null;index:ix_billing_events_track_time,priority:2"`
	Kind          enums.BillingEventKind   `gorm:"column:kind;type:text;not null"`
	OccurredAt    time.Time                `gorm:"column:occurred_at;not null;index:ix_billing_events_track_time,priority:3"`
	ReceivedAt    time.Time                `gorm:"column:received_at;not null"`
	Source        enums.BillingEventSource `gorm:"column:source;type:text;not null"`
	Payload       json.RawMessage          `gorm:"column:payload;type:jsonb;not null"`
	ProcessedAt   *time.Time               `gorm:"column:processed_at;index"`
	Outcome       *enums.EventOutcome      `gorm:"column:outcome;type:text"`
	OutcomeReason *string                  `gorm:"column:outcome_reason"`
	Attempts      int                      `gorm:"column:attempts;not null;default:0"`
}

func (BillingEvent) TableName() string { return "billing_events" }
