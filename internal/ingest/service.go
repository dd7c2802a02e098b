// Package ingest authenticates billing events, records them write-ahead and
// hands them to the reconciler under per-track compare-and-swap.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/eventlog"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/guard"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/metrics"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox/payloads"
)

const (
	defaultConflictRetries = 5
	reasonUnknownTrack     = "track_not_found"
)

// Status summarises what happened to one delivery.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
)

// Result is returned for every accepted delivery.
type Result struct {
	EventID string
	Status  Status
	Outcome reconciler.Outcome
}

// Delivery is one raw webhook request.
type Delivery struct {
	Body       []byte
	Signature  string
	RemoteAddr string
}

type alertSink interface {
	SignatureInvalid(ctx context.Context, body []byte, remoteAddr string) error
	InvariantViolationTx(ctx context.Context, tx *gorm.DB, alert payloads.InvariantViolationAlert, actor *outbox.ActorRef) error
	TrackTransitionedTx(ctx context.Context, tx *gorm.DB, event payloads.TrackTransitionedEvent, actor *outbox.ActorRef) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	WebhookSecret     string
	EnabledKinds      []string
	Policy            reconciler.Policy
	Tracks            tracks.Repository
	Events            eventlog.Repository
	Alerts            alertSink
	Guard             *IdempotencyGuard
	TransactionRunner txRunner
	Metrics           *metrics.ReconcileMetrics
	Logger            *logger.Logger
	ConflictRetries   int
	Now               func() time.Time
}

type Service struct {
	secret   string
	enabled  map[enums.BillingEventKind]bool
	policy   reconciler.Policy
	tracks   tracks.Repository
	events   eventlog.Repository
	alerts   alertSink
	guard    *IdempotencyGuard
	txRunner txRunner
	metrics  *metrics.ReconcileMetrics
	logg     *logger.Logger
	retries  int
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if strings.TrimSpace(params.WebhookSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	if params.Tracks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "track repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if params.Alerts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "alert sink required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	enabled, err := parseEnabledKinds(params.EnabledKinds)
	if err != nil {
		return nil, err
	}
	retries := params.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewReconcileMetrics(nil)
	}
	return &Service{
		secret:   params.WebhookSecret,
		enabled:  enabled,
		policy:   params.Policy,
		tracks:   params.Tracks,
		events:   params.Events,
		alerts:   params.Alerts,
		guard:    params.Guard,
		txRunner: params.TransactionRunner,
		metrics:  m,
		logg:     params.Logger,
		retries:  retries,
		now:      now,
	}, nil
}

// parseEnabledKinds accepts external kinds only. An empty list enables all of them.
func parseEnabledKinds(raw []string) (map[enums.BillingEventKind]bool, error) {
	out := map[enums.BillingEventKind]bool{}
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		kind := enums.BillingEventKind(value)
		if !kind.IsExternal() {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "event kind "+value+" cannot be enabled for webhooks")
		}
		out[kind] = true
	}
	if len(out) == 0 {
		for _, value := range []enums.BillingEventKind{
			enums.EventKindCheckoutCompleted,
			enums.EventKindInvoicePaid,
			enums.EventKindPaymentFailed,
			enums.EventKindSubscriptionCanceled,
			enums.EventKindSubscriptionPaused,
			enums.EventKindSubscriptionResumed,
			enums.EventKindSubscriptionPastDue,
		} {
			out[value] = true
		}
	}
	return out, nil
}

// HandleWebhook verifies, deduplicates, records and reconciles one delivery.
func (s *Service) HandleWebhook(ctx context.Context, d Delivery) (Result, error) {
	if !VerifySignature(s.secret, d.Body, d.Signature) {
		s.metrics.IncSignatureInvalid()
		if err := s.alerts.SignatureInvalid(ctx, d.Body, d.RemoteAddr); err != nil {
			s.logError(ctx, "queue signature alert", err)
		}
		return Result{}, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature invalid")
	}

	env, err := decodeEnvelope(d.Body)
	if err != nil {
		return Result{}, err
	}
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, env.ID)
		ctx = s.logg.WithField(ctx, "event_type", env.Type)
	}

	kind := enums.BillingEventKind(env.Type)
	if !s.enabled[kind] {
		if s.logg != nil {
			s.logg.Info(ctx, "billing event type not handled; ignored")
		}
		outcome := reconciler.Outcome{Kind: enums.OutcomeIgnored, Reason: reconciler.ReasonUnknownKind}
		s.metrics.ObserveOutcome(env.Type, string(enums.EventSourceWebhook), string(outcome.Kind), 0)
		return Result{EventID: env.ID, Status: StatusIgnored, Outcome: outcome}, nil
	}
	if err := env.validateData(); err != nil {
		return Result{}, err
	}
	serviceType, err := enums.ParseServiceType(env.Data.ServiceType)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service type")
	}

	if s.guard != nil {
		already, err := s.guard.CheckAndMark(ctx, env.ID)
		if err != nil {
			// the event log still deduplicates; continue without the fast path
			s.logWarn(ctx, "idempotency guard unavailable: "+err.Error())
		} else if already && s.processedInLog(ctx, env.ID) {
			s.metrics.IncDuplicate("guard")
			s.logDebug(ctx, "duplicate billing event dropped by guard")
			return Result{EventID: env.ID, Status: StatusDuplicate}, nil
		}
	}

	row := &models.BillingEvent{
		EventID:     env.ID,
		AccountID:   env.Data.AccountID,
		ServiceType: serviceType,
		Kind:        kind,
		OccurredAt:  env.OccurredAt,
		ReceivedAt:  s.now(),
		Source:      enums.EventSourceWebhook,
		Payload:     append([]byte(nil), d.Body...),
	}
	res, err := s.ingest(ctx, row)
	if err != nil && s.guard != nil {
		if relErr := s.guard.Release(context.WithoutCancel(ctx), env.ID); relErr != nil {
			s.logWarn(ctx, "release idempotency guard: "+relErr.Error())
		}
	}
	return res, err
}

// IngestInternal records and reconciles an event produced inside the service.
func (s *Service) IngestInternal(ctx context.Context, ev InternalEvent) (Result, error) {
	if ev.ID == "" || ev.AccountID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "internal event id and account are required")
	}
	if !ev.Kind.IsInternal() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "kind is not an internal event kind")
	}
	if !ev.ServiceType.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, ev.ID)
	}
	row := &models.BillingEvent{
		EventID:     ev.ID,
		AccountID:   ev.AccountID,
		ServiceType: ev.ServiceType,
		Kind:        ev.Kind,
		OccurredAt:  ev.OccurredAt.UTC(),
		ReceivedAt:  s.now(),
		Source:      enums.EventSourceInternal,
		Payload:     []byte("{}"),
	}
	return s.ingest(ctx, row)
}

// Reprocess reconciles a logged event that never finished processing.
func (s *Service) Reprocess(ctx context.Context, eventID string) (Result, error) {
	row, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, eventID)
	}
	if row.ProcessedAt != nil {
		s.metrics.IncDuplicate("log")
		return Result{EventID: eventID, Status: StatusDuplicate}, nil
	}
	if err := s.events.IncrementAttempts(ctx, eventID); err != nil {
		s.logWarn(ctx, "increment event attempts: "+err.Error())
	}
	return s.process(ctx, row, false)
}

// Replay reconciles a logged event again, whether or not it was processed.
// The track only changes when the event still produces a transition.
func (s *Service) Replay(ctx context.Context, eventID string) (Result, error) {
	row, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	return s.process(ctx, row, true)
}

func (s *Service) ingest(ctx context.Context, row *models.BillingEvent) (Result, error) {
	created, err := s.events.InsertIfAbsent(ctx, row)
	if err != nil {
		return Result{}, err
	}
	if !created {
		existing, err := s.events.Get(ctx, row.EventID)
		if err != nil {
			return Result{}, err
		}
		if existing.ProcessedAt != nil {
			s.metrics.IncDuplicate("log")
			s.logDebug(ctx, "duplicate billing event")
			return Result{EventID: row.EventID, Status: StatusDuplicate}, nil
		}
		row = existing
	}
	return s.process(ctx, row, false)
}

// processedInLog reports whether a claimed event id is durably recorded as
// processed. A claim left behind by a crashed delivery is not.
func (s *Service) processedInLog(ctx context.Context, eventID string) bool {
	row, err := s.events.Get(ctx, eventID)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logWarn(ctx, "confirm claimed billing event: "+err.Error())
		}
		return false
	}
	return row.ProcessedAt != nil
}

var errAlreadyProcessed = errors.New("billing event already processed")

func (s *Service) process(ctx context.Context, row *models.BillingEvent, replay bool) (Result, error) {
	if s.logg != nil {
		ctx = s.logg.WithTrack(ctx, row.AccountID, row.ServiceType.String())
	}
	started := time.Now()
	source := row.Source
	if replay {
		source = enums.EventSourceReplay
	}

	for attempt := 0; attempt <= s.retries; attempt++ {
		outcome, err := s.processOnce(ctx, row, replay)
		switch {
		case err == nil:
			s.metrics.ObserveOutcome(row.Kind.String(), string(source), string(outcome.Kind), time.Since(started))
			s.logOutcome(ctx, outcome)
			return Result{EventID: row.EventID, Status: StatusProcessed, Outcome: outcome}, nil
		case errors.Is(err, errAlreadyProcessed):
			s.metrics.IncDuplicate("log")
			s.logDebug(ctx, "billing event processed concurrently")
			return Result{EventID: row.EventID, Status: StatusDuplicate}, nil
		case errors.Is(err, tracks.ErrVersionConflict):
			s.metrics.IncVersionConflict()
			s.logDebug(ctx, "track version conflict; retrying")
			continue
		default:
			return Result{}, err
		}
	}
	return Result{}, pkgerrors.New(pkgerrors.CodeConflict, "track version conflict retries exhausted")
}

func (s *Service) processOnce(ctx context.Context, row *models.BillingEvent, replay bool) (reconciler.Outcome, error) {
	var outcome reconciler.Outcome
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		events := s.events.WithTx(tx)
		trackRepo := s.tracks.WithTx(tx)

		current, err := events.Get(ctx, row.EventID)
		if err != nil {
			return err
		}
		if current.ProcessedAt != nil && !replay {
			return errAlreadyProcessed
		}

		track, err := trackRepo.Get(ctx, row.AccountID, row.ServiceType)
		if err != nil {
			if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			outcome = reconciler.Outcome{Kind: enums.OutcomeIgnored, Reason: reasonUnknownTrack}
			return s.markProcessed(ctx, events, current, outcome)
		}

		ev := EventFromRow(*row)
		result := reconciler.Reconcile(*track, ev, s.policy)
		outcome = result.Outcome
		actor := &outbox.ActorRef{AccountID: row.AccountID, Source: string(row.Source)}

		switch outcome.Kind {
		case enums.OutcomeApplied:
			if err := trackRepo.CompareAndSwap(ctx, &result.Track, track.Version); err != nil {
				return err
			}
			if err := s.alerts.TrackTransitionedTx(ctx, tx, payloads.TrackTransitionedEvent{
				AccountID:   row.AccountID,
				ServiceType: row.ServiceType,
				From:        outcome.From,
				To:          outcome.To,
				EventID:     row.EventID,
				EventKind:   row.Kind,
				Version:     result.Track.Version,
				Entitled:    guard.IsEntitled(outcome.To),
				OccurredAt:  row.OccurredAt,
			}, actor); err != nil {
				return err
			}
		case enums.OutcomeRejected:
			if err := s.alerts.InvariantViolationTx(ctx, tx, payloads.InvariantViolationAlert{
				AccountID:   row.AccountID,
				ServiceType: row.ServiceType,
				EventID:     row.EventID,
				EventKind:   row.Kind,
				Rule:        outcome.Reason,
				From:        outcome.From,
				To:          outcome.To,
				DetectedAt:  s.now(),
			}, actor); err != nil {
				return err
			}
		}
		return s.markProcessed(ctx, events, current, outcome)
	})
	return outcome, err
}

func (s *Service) markProcessed(ctx context.Context, events eventlog.Repository, row *models.BillingEvent, outcome reconciler.Outcome) error {
	if row.ProcessedAt != nil {
		return nil
	}
	err := events.MarkProcessed(ctx, row.EventID, outcome.Kind, outcome.Reason, s.now())
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		return errAlreadyProcessed
	}
	return err
}

func (s *Service) logOutcome(ctx context.Context, outcome reconciler.Outcome) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outcome": outcome.Kind,
		"reason":  outcome.Reason,
		"from":    outcome.From,
		"to":      outcome.To,
	})
	switch outcome.Kind {
	case enums.OutcomeApplied:
		s.logg.Info(ctx, "billing track transitioned")
	case enums.OutcomeStale:
		s.logg.Info(ctx, "stale billing event discarded")
	case enums.OutcomeRejected:
		s.logg.Error(ctx, "billing event rejected by invariant guard", nil)
	default:
		s.logg.Debug(ctx, "billing event ignored")
	}
}

func (s *Service) logDebug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
