package billing

import (
	"context"
	"net/http"

	"github.com/kaoriishige/adtown-ishige-sub000/api/middleware"
	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	"github.com/kaoriishige/adtown-ishige-sub000/api/validators"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/entitlement"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/gateway"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// AccountProvisioner creates an account with both tracks at none.
type AccountProvisioner interface {
	EnsureAccount(ctx context.Context, accountID string) (*models.Account, []models.Track, error)
}

type overrideRequest struct {
	LifecycleStage string `json:"lifecycleStage" validate:"required"`
	BillingCycle   string `json:"billingCycle,omitempty"`
	PaymentMethod  string `json:"paymentMethod,omitempty" validate:"omitempty,oneof=none card invoice"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

// AdminProvisionAccount creates the account if missing and returns its view.
func AdminProvisionAccount(repo AccountProvisioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "track repository unavailable"))
			return
		}

		accountID, err := accountIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		_, list, err := repo.EnsureAccount(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entitlement.AccountViewOf(accountID, list))
	}
}

// AdminOverride moves a track to an operator-chosen stage, bypassing the
// transition table but not the billing rules.
func AdminOverride(gw ActionGateway, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gw == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing gateway unavailable"))
			return
		}

		accountID, err := accountIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceType, err := serviceTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload overrideRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stage, err := enums.ParseLifecycleStage(payload.LifecycleStage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lifecycle stage").
				WithDetails(map[string]any{"field": "lifecycleStage"}))
			return
		}
		var cycle enums.BillingCycle
		if payload.BillingCycle != "" {
			if cycle, err = enums.ParseBillingCycle(payload.BillingCycle); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle").
					WithDetails(map[string]any{"field": "billingCycle"}))
				return
			}
		}

		res, err := gw.AdminOverride(r.Context(), gateway.OverrideInput{
			AccountID:   accountID,
			ServiceType: serviceType,
			Stage:       stage,
			Cycle:       cycle,
			Method:      enums.PaymentMethod(payload.PaymentMethod),
			Reason:      validators.SanitizeString(payload.Reason, 500),
			ActorID:     middleware.AccountIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newActionResponse(res))
	}
}
