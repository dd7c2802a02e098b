package platform

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/plans"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/square"
)

// SquareAPI is the subset of the Square client used for billing commands.
type SquareAPI interface {
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateSubscription(ctx context.Context, params square.SubscriptionCreateParams) (*sq.Subscription, error)
	PauseSubscription(ctx context.Context, subscriptionID, reason string) (*sq.Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
}

// Square maps billing commands onto Square subscriptions. A checkout is a
// subscription charged to a card on file; an invoice is a subscription with
// no card, which Square bills by emailed invoice.
type Square struct {
	api     SquareAPI
	catalog *plans.Catalog
}

func NewSquare(api SquareAPI, catalog *plans.Catalog) (*Square, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square api required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	return &Square{api: api, catalog: catalog}, nil
}

func (s *Square) CreateCheckoutSession(ctx context.Context, req PurchaseRequest) (Ack, error) {
	if strings.TrimSpace(req.CardID) == "" {
		return Ack{}, pkgerrors.New(pkgerrors.CodeValidation, "card id is required for checkout")
	}
	return s.subscribe(ctx, req, enums.PaymentMethodCard)
}

func (s *Square) CreateInvoice(ctx context.Context, req PurchaseRequest) (Ack, error) {
	req.CardID = ""
	return s.subscribe(ctx, req, enums.PaymentMethodInvoice)
}

func (s *Square) subscribe(ctx context.Context, req PurchaseRequest, method enums.PaymentMethod) (Ack, error) {
	plan, ok := s.catalog.Lookup(req.ServiceType, req.Cycle)
	if !ok {
		return Ack{}, pkgerrors.New(pkgerrors.CodeValidation, "no plan configured for "+string(req.ServiceType)+"."+string(req.Cycle))
	}
	if plan.Method != method {
		return Ack{}, pkgerrors.New(pkgerrors.CodeValidation, "plan does not support payment method "+string(method))
	}

	customerID := strings.TrimSpace(req.CustomerRef)
	if customerID == "" {
		customer, err := s.api.EnsureCustomer(ctx, square.CustomerCreateParams{
			ReferenceID:    req.AccountID,
			CompanyName:    req.CompanyName,
			Email:          req.Email,
			IdempotencyKey: req.IdempotencyKey + ":customer",
		})
		if err != nil {
			return Ack{}, err
		}
		if customer == nil || customer.GetID() == nil {
			return Ack{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no customer")
		}
		customerID = *customer.GetID()
	}

	sub, err := s.api.CreateSubscription(ctx, square.SubscriptionCreateParams{
		PlanVariationID:       plan.PlanID,
		CustomerID:            customerID,
		CardID:                req.CardID,
		IdempotencyKey:        req.IdempotencyKey,
		PriceOverrideAmount:   plan.MinorUnits(),
		PriceOverrideCurrency: plan.Currency,
	})
	if err != nil {
		return Ack{}, err
	}
	return ackFor(customerID, sub)
}

// PauseSubscription has no idempotency key on the Square side. The command
// ledger stops an acknowledged pause from being sent again, but an attempt that
// timed out is retried and may reach Square twice.
func (s *Square) PauseSubscription(ctx context.Context, _ string, subscriptionRef string) (Ack, error) {
	sub, err := s.api.PauseSubscription(ctx, subscriptionRef, "paused by account owner")
	if err != nil {
		return Ack{}, err
	}
	return ackFor("", sub)
}

func (s *Square) ResumeSubscription(ctx context.Context, _ string, subscriptionRef string) (Ack, error) {
	sub, err := s.api.ResumeSubscription(ctx, subscriptionRef)
	if err != nil {
		return Ack{}, err
	}
	return ackFor("", sub)
}

func ackFor(customerID string, sub *sq.Subscription) (Ack, error) {
	if sub == nil || sub.GetID() == nil {
		return Ack{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no subscription")
	}
	ack := Ack{CustomerRef: customerID, SubscriptionRef: *sub.GetID()}
	if ack.CustomerRef == "" && sub.GetCustomerID() != nil {
		ack.CustomerRef = *sub.GetCustomerID()
	}
	return ack, nil
}
