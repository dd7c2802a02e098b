package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	"github.com/kaoriishige/adtown-ishige-sub000/api/validators"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/entitlement"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/gateway"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// ActionGateway issues billing commands to the payment platform.
type ActionGateway interface {
	StartCheckout(ctx context.Context, in gateway.CheckoutInput) (gateway.Result, error)
	Pause(ctx context.Context, accountID string, serviceType enums.ServiceType) (gateway.Result, error)
	Resume(ctx context.Context, accountID string, serviceType enums.ServiceType) (gateway.Result, error)
	AdminOverride(ctx context.Context, in gateway.OverrideInput) (gateway.Result, error)
}

type checkoutRequest struct {
	BillingCycle  string `json:"billingCycle" validate:"required,oneof=monthly annual annual_invoice"`
	PaymentMethod string `json:"paymentMethod,omitempty" validate:"omitempty,oneof=card invoice"`
	CustomerRef   string `json:"customerRef,omitempty" validate:"max=191"`
	CardID        string `json:"cardId,omitempty" validate:"max=191"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	CompanyName   string `json:"companyName,omitempty" validate:"max=255"`
}

type actionResponse struct {
	Track          entitlement.TrackView `json:"track"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty"`
	Replayed       bool                  `json:"replayed"`
	Unchanged      bool                  `json:"unchanged"`
}

func newActionResponse(res gateway.Result) actionResponse {
	return actionResponse{
		Track:          entitlement.ViewOf(res.Track),
		IdempotencyKey: res.IdempotencyKey,
		Replayed:       res.Replayed,
		Unchanged:      res.Unchanged,
	}
}

// Checkout starts a card checkout or an invoice subscription for the track.
func Checkout(gw ActionGateway, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gw == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing gateway unavailable"))
			return
		}

		accountID, err := callerAccountID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceType, err := serviceTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := gw.StartCheckout(r.Context(), gateway.CheckoutInput{
			AccountID:   accountID,
			ServiceType: serviceType,
			Cycle:       enums.BillingCycle(payload.BillingCycle),
			Method:      enums.PaymentMethod(payload.PaymentMethod),
			CustomerRef: strings.TrimSpace(payload.CustomerRef),
			CardID:      strings.TrimSpace(payload.CardID),
			Email:       strings.TrimSpace(payload.Email),
			CompanyName: validators.SanitizeString(payload.CompanyName, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if res.Replayed || res.Unchanged {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newActionResponse(res))
	}
}

// Pause pauses the caller's monthly subscription.
func Pause(gw ActionGateway, logg *logger.Logger) http.HandlerFunc {
	return toggle(gw, logg, ActionGateway.Pause)
}

// Resume resumes the caller's paused subscription.
func Resume(gw ActionGateway, logg *logger.Logger) http.HandlerFunc {
	return toggle(gw, logg, ActionGateway.Resume)
}

func toggle(
	gw ActionGateway,
	logg *logger.Logger,
	call func(ActionGateway, context.Context, string, enums.ServiceType) (gateway.Result, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gw == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing gateway unavailable"))
			return
		}

		accountID, err := callerAccountID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceType, err := serviceTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := call(gw, r.Context(), accountID, serviceType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newActionResponse(res))
	}
}
