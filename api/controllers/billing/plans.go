package billing

import (
	"net/http"

	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/plans"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// PlanLister lists the configured plan catalog.
type PlanLister interface {
	List() []plans.Plan
}

type planResponse struct {
	ServiceType   string `json:"serviceType"`
	BillingCycle  string `json:"billingCycle"`
	PaymentMethod string `json:"paymentMethod"`
	PlanID        string `json:"planId"`
	Price         string `json:"price"`
	AmountMinor   int64  `json:"amountMinor"`
	Currency      string `json:"currency"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

// Plans lists every purchasable (service type, billing cycle) combination.
func Plans(catalog PlanLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}

		list := catalog.List()
		resp := planListResponse{Plans: make([]planResponse, 0, len(list))}
		for _, p := range list {
			resp.Plans = append(resp.Plans, planResponse{
				ServiceType:   string(p.ServiceType),
				BillingCycle:  string(p.Cycle),
				PaymentMethod: string(p.Method),
				PlanID:        p.PlanID,
				Price:         p.Price.StringFixed(0),
				AmountMinor:   p.MinorUnits(),
				Currency:      p.Currency,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
