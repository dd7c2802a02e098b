package billing

import (
	"context"
	"net/http"

	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/entitlement"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// EntitlementReader answers read-only billing questions for an account.
type EntitlementReader interface {
	AccountView(ctx context.Context, accountID string) (entitlement.AccountView, error)
	TrackView(ctx context.Context, accountID string, serviceType enums.ServiceType) (entitlement.TrackView, error)
}

// AccountBilling returns the caller's two tracks and the combined entitlement.
func AccountBilling(svc EntitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		accountID, err := callerAccountID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AccountView(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// TrackBilling returns one of the caller's tracks.
func TrackBilling(svc EntitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
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

		view, err := svc.TrackView(r.Context(), accountID, serviceType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
