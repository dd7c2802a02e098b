package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// Track is the versioned billing state of one account for one service type.
type Track struct {
	ID                      uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AccountID               string                  `gorm:"column:account_id;not null;uniqueIndex:ux_billing_tracks_account_service"`
	ServiceType             enums.ServiceType       `gorm:"column:service_type;type:text;not null;uniqueIndex:ux_billing_tracks_account_service"`
	LifecycleStage          enums.LifecycleStage    `gorm:"column:lifecycle_stage;type:text;not null;default:'none'"`
	BillingCycle            enums.BillingCycle      `gorm:"column:billing_cycle;type:text;not null;default:'none'"`
	PaymentMethod           enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null;default:'none'"`
	Generation              int                     `gorm:"column:generation;not null;default:0"`
	GenerationStartedAt     *time.Time              `gorm:"column:generation_started_at"`
	ExternalCustomerRef     *string                 `gorm:"column:external_customer_ref"`
	ExternalSubscriptionRef *string                 `gorm:"column:external_subscription_ref"`
	TrialEndsAt             *time.Time              `gorm:"column:trial_ends_at"`
	LastEventID             *string                 `gorm:"column:last_event_id"`
	LastEventKind           *enums.BillingEventKind `gorm:"column:last_event_kind;type:text"`
	LastEventTimestamp      *time.Time              `gorm:"column:last_event_timestamp"`
	LastTransitionAt        *time.Time              `gorm:"column:last_transition_at"`
	Version                 int64                   `gorm:"column:version;not null;default:0"`
	CreatedAt               time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Track) TableName() string { return "billing_tracks" }
