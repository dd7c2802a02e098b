// Package platform is the boundary to the external payment platform.
package platform

import (
	"context"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// PurchaseRequest starts a new subscription for one track.
type PurchaseRequest struct {
	IdempotencyKey string
	AccountID      string
	ServiceType    enums.ServiceType
	Cycle          enums.BillingCycle
	CustomerRef    string
	CardID         string
	Email          string
	CompanyName    string
}

// Ack is what the platform returns once it accepted a command.
type Ack struct {
	CustomerRef     string
	SubscriptionRef string
}

// Platform issues idempotent commands. Retrying with the same key must not
// apply the command twice.
type Platform interface {
	CreateCheckoutSession(ctx context.Context, req PurchaseRequest) (Ack, error)
	CreateInvoice(ctx context.Context, req PurchaseRequest) (Ack, error)
	PauseSubscription(ctx context.Context, idempotencyKey, subscriptionRef string) (Ack, error)
	ResumeSubscription(ctx context.Context, idempotencyKey, subscriptionRef string) (Ack, error)
}
