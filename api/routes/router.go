package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaoriishige/adtown-ishige-sub000/api/controllers"
	billingcontrollers "github.com/kaoriishige/adtown-ishige-sub000/api/controllers/billing"
	webhookcontrollers "github.com/kaoriishige/adtown-ishige-sub000/api/controllers/webhooks"
	"github.com/kaoriishige/adtown-ishige-sub000/api/middleware"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// RedisStore is the Redis surface used by the HTTP middleware.
type RedisStore interface {
	controllers.Pinger
	middlewareStore
}

type middlewareStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params carries the services the router exposes.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	Gatherer    prometheus.Gatherer
	Webhooks    webhookcontrollers.WebhookIngestor
	Entitlement billingcontrollers.EntitlementReader
	Gateway     billingcontrollers.ActionGateway
	Plans       billingcontrollers.PlanLister
	Accounts    billingcontrollers.AccountProvisioner
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var store middlewareStore
	readiness := map[string]controllers.Pinger{}
	if p.DB != nil {
		readiness["database"] = p.DB
	}
	if p.Redis != nil {
		store = p.Redis
		readiness["redis"] = p.Redis
	}

	actionPolicy := middleware.NewRateLimitPolicy(
		"billing-actions",
		cfg.RateLimit.ActionWindow,
		cfg.RateLimit.ActionLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/billing", webhookcontrollers.BillingWebhook(p.Webhooks, logg))
	})

	r.Get("/api/v1/billing/plans", billingcontrollers.Plans(p.Plans, logg))

	r.Route("/api/v1/accounts/me/billing", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAccount(logg))
		r.Get("/", billingcontrollers.AccountBilling(p.Entitlement, logg))
		r.Route("/{serviceType}", func(r chi.Router) {
			r.Get("/", billingcontrollers.TrackBilling(p.Entitlement, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(actionPolicy, store, logg))
				r.Use(middleware.Idempotency(store, logg))
				r.Post("/checkout", billingcontrollers.Checkout(p.Gateway, logg))
				r.Post("/pause", billingcontrollers.Pause(p.Gateway, logg))
				r.Post("/resume", billingcontrollers.Resume(p.Gateway, logg))
			})
		})
	})

	r.Route("/api/v1/admin/accounts/{accountID}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.AccountRoleAdmin, logg))
		r.Use(middleware.Idempotency(store, logg))
		r.Post("/", billingcontrollers.AdminProvisionAccount(p.Accounts, logg))
		r.Post("/billing/{serviceType}/override", billingcontrollers.AdminOverride(p.Gateway, logg))
	})

	return r
}
