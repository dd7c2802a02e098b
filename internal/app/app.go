// Package app assembles the billing components shared by the binaries.
package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/alerts"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/entitlement"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/eventlog"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/gateway"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/plans"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/platform"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/replay"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/metrics"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/redis"
)

const webhookGuardScope = "billing-webhook"

// Params are the infrastructure clients a binary has already opened. Redis and
// Square are optional: without Redis the webhook fast-path guard and the
// gateway are skipped, and without Square only the gateway is skipped.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Square     platform.SquareAPI
	Registerer prometheus.Registerer
}

// Components are the wired billing services.
type Components struct {
	Policy      reconciler.Policy
	Catalog     *plans.Catalog
	Tracks      tracks.Repository
	Events      eventlog.Repository
	Outbox      *outbox.Repository
	Alerts      *alerts.Service
	Ingest      *ingest.Service
	Replay      *replay.Service
	Entitlement *entitlement.Service
	Gateway     *gateway.Service
}

// Build wires every component that the supplied clients allow.
func Build(p Params) (*Components, error) {
	if p.Config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "config required")
	}
	if p.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	catalog, err := plans.NewCatalog(cfg.Billing)
	if err != nil {
		return nil, err
	}
	policy := reconciler.PolicyFromConfig(cfg.Billing)

	c := &Components{
		Policy:  policy,
		Catalog: catalog,
		Tracks:  tracks.NewRepository(conn),
		Events:  eventlog.NewRepository(conn),
		Outbox:  outbox.NewRepository(conn),
	}

	c.Alerts, err = alerts.NewService(outbox.NewService(c.Outbox, p.Logger), p.DB, p.Logger)
	if err != nil {
		return nil, err
	}

	var guard *ingest.IdempotencyGuard
	if p.Redis != nil {
		guard, err = ingest.NewIdempotencyGuard(p.Redis, cfg.Billing.WebhookIdempotencyTTL, webhookGuardScope)
		if err != nil {
			return nil, err
		}
	}

	c.Ingest, err = ingest.NewService(ingest.ServiceParams{
		WebhookSecret:     cfg.Billing.WebhookSecret,
		EnabledKinds:      cfg.Billing.EventKinds,
		Policy:            policy,
		Tracks:            c.Tracks,
		Events:            c.Events,
		Alerts:            c.Alerts,
		Guard:             guard,
		TransactionRunner: p.DB,
		Metrics:           metrics.NewReconcileMetrics(p.Registerer),
		Logger:            p.Logger,
	})
	if err != nil {
		return nil, err
	}

	c.Replay, err = replay.NewService(c.Events, c.Tracks, c.Ingest, policy, p.Logger)
	if err != nil {
		return nil, err
	}

	c.Entitlement, err = entitlement.NewService(c.Tracks)
	if err != nil {
		return nil, err
	}

	if p.Redis == nil || p.Square == nil {
		return c, nil
	}
	square, err := platform.NewSquare(p.Square, catalog)
	if err != nil {
		return nil, err
	}
	c.Gateway, err = gateway.NewService(gateway.ServiceParams{
		Tracks:            c.Tracks,
		Ledger:            gateway.NewLedger(conn),
		Platform:          square,
		Alerts:            c.Alerts,
		TransactionRunner: p.DB,
		Locks:             p.Redis,
		EarlyEvents:       c.Replay,
		Metrics:           metrics.NewOutboundMetrics(p.Registerer),
		Logger:            p.Logger,
		Timeout:           cfg.Billing.OutboundTimeout,
		MaxAttempts:       cfg.Billing.OutboundMaxAttempts,
		BackoffBase:       cfg.Billing.OutboundBackoffBase,
		BackoffMax:        cfg.Billing.OutboundBackoffMax,
		LockTTL:           cfg.Billing.TrackLockTTL,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
