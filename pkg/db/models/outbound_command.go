package models

import (
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// OutboundCommand records a command sent to the payment platform under its idempotency key.
type OutboundCommand struct {
	IdempotencyKey          string               `gorm:"column:idempotency_key;primaryKey"`
	AccountID               string               `gorm:"column:account_id;not null;index"`
	ServiceType             enums.ServiceType    `gorm:"column:service_type;type:text;not null"`
	Intent                  enums.OutboundIntent `gorm:"column:intent;type:text;not null"`
	Status                  enums.CommandStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	Attempts                int                  `gorm:"column:attempts;not null;default:0"`
	ExternalCustomerRef     *string              `gorm:"column:external_customer_ref"`
	ExternalSubscriptionRef *string              `gorm:"column:external_subscription_ref"`
	LastError               *string              `gorm:"column:last_error"`
	CreatedAt               time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	AcknowledgedAt          *time.Time           `gorm:"column:acknowledged_at"`
}

func (OutboundCommand) TableName() string { return "billing_outbound_commands" }
