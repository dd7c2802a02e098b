package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/kaoriishige/adtown-ishige-sub000/api/middleware"
	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookIngestor accepts raw billing webhook deliveries.
type WebhookIngestor interface {
	HandleWebhook(ctx context.Context, d ingest.Delivery) (ingest.Result, error)
}

type webhookResponse struct {
	EventID string             `json:"eventId,omitempty"`
	Status  ingest.Status      `json:"status"`
	Outcome reconciler.Outcome `json:"outcome"`
}

// BillingWebhook authenticates and ingests one platform event. Duplicates,
// stale and ignored events are acknowledged with 200 so the platform stops
// redelivering them.
func BillingWebhook(svc WebhookIngestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		res, err := svc.HandleWebhook(ctx, ingest.Delivery{
			Body:       payload,
			Signature:  r.Header.Get(ingest.SignatureHeader),
			RemoteAddr: middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, webhookResponse{
			EventID: res.EventID,
			Status:  res.Status,
			Outcome: res.Outcome,
		})
	}
}
