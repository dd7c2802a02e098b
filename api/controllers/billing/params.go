package billing

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kaoriishige/adtown-ishige-sub000/api/middleware"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
)

func serviceTypeParam(r *http.Request) (enums.ServiceType, error) {
	raw := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "serviceType")))
	svc, err := enums.ParseServiceType(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service type").
			WithDetails(map[string]any{"field": "serviceType"})
	}
	return svc, nil
}

func callerAccountID(r *http.Request) (string, error) {
	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == "" {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "account context missing")
	}
	return accountID, nil
}

func accountIDParam(r *http.Request) (string, error) {
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account id is required").
			WithDetails(map[string]any{"field": "accountID"})
	}
	return accountID, nil
}
