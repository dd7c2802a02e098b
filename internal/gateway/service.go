// Package gateway turns user and operator intents into outbound platform
// commands and commits the matching track transition once the platform has
// acknowledged them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/guard"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/plans"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/platform"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/metrics"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox/payloads"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/redis"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultBackoffBase     = 200 * time.Millisecond
	defaultBackoffMax      = 5 * time.Second
	defaultLockTTL         = 30 * time.Second
	defaultConflictRetries = 3
	jitterWindow           = 100 * time.Millisecond
	lockPoll               = 50 * time.Millisecond
)

type alertSink interface {
	OutboundCommandFailed(ctx context.Context, alert payloads.OutboundCommandFailedAlert) error
	TrackTransitionedTx(ctx context.Context, tx *gorm.DB, event payloads.TrackTransitionedEvent, actor *outbox.ActorRef) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LockStore backs the per-track mutex.
type LockStore interface {
	redis.LockStore
	LockKey(scope string, parts ...string) string
}

// EarlyEventRecoverer re-runs confirmations that reached the service before
// the command that started the track was committed locally.
type EarlyEventRecoverer interface {
	RecoverEarly(ctx context.Context, accountID string, serviceType enums.ServiceType, since time.Time) (int, error)
}

type ServiceParams struct {
	Tracks            tracks.Repository
	Ledger            Ledger
	Platform          platform.Platform
	Alerts            alertSink
	TransactionRunner txRunner
	Locks             LockStore
	EarlyEvents       EarlyEventRecoverer
	Metrics           *metrics.OutboundMetrics
	Logger            *logger.Logger
	Timeout           time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	LockTTL           time.Duration
	Now               func() time.Time
	Sleep             func(ctx context.Context, d time.Duration) error
}

type Service struct {
	tracks      tracks.Repository
	ledger      Ledger
	platform    platform.Platform
	alerts      alertSink
	txRunner    txRunner
	locks       LockStore
	early       EarlyEventRecoverer
	metrics     *metrics.OutboundMetrics
	logg        *logger.Logger
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	lockTTL     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tracks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "track repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "command ledger required")
	}
	if params.Platform == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment platform required")
	}
	if params.Alerts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "alert sink required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	s := &Service{
		tracks:      params.Tracks,
		ledger:      params.Ledger,
		platform:    params.Platform,
		alerts:      params.Alerts,
		txRunner:    params.TransactionRunner,
		locks:       params.Locks,
		early:       params.EarlyEvents,
		metrics:     params.Metrics,
		logg:        params.Logger,
		timeout:     params.Timeout,
		maxAttempts: params.MaxAttempts,
		backoffBase: params.BackoffBase,
		backoffMax:  params.BackoffMax,
		lockTTL:     params.LockTTL,
		now:         params.Now,
		sleep:       params.Sleep,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.backoffBase <= 0 {
		s.backoffBase = defaultBackoffBase
	}
	if s.backoffMax < s.backoffBase {
		s.backoffMax = defaultBackoffMax
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.sleep == nil {
		s.sleep = sleep
	}
	if s.metrics == nil {
		s.metrics = metrics.NewOutboundMetrics(nil)
	}
	return s, nil
}

// CheckoutInput starts a purchase for one service type.
type CheckoutInput struct {
	AccountID   string
	ServiceType enums.ServiceType
	Cycle       enums.BillingCycle
	// Method defaults to the method the cycle is settled with.
	Method      enums.PaymentMethod
	CustomerRef string
	CardID      string
	Email       string
	CompanyName string
}

// OverrideInput is an operator correction applied without a platform call.
type OverrideInput struct {
	AccountID   string
	ServiceType enums.ServiceType
	Stage       enums.LifecycleStage
	Cycle       enums.BillingCycle
	Method      enums.PaymentMethod
	Reason      string
	ActorID     string
}

// Result describes a committed command.
type Result struct {
	Track          models.Track
	IdempotencyKey string
	// Replayed is set when the acknowledgement came from the ledger.
	Replayed  bool
	// Unchanged is set when the track already reflected the command.
	Unchanged bool
}

// IdempotencyKey derives the platform key for one attempt group of an intent.
// Every retry inside the group reuses it.
func IdempotencyKey(accountID string, serviceType enums.ServiceType, intent enums.OutboundIntent, group int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", accountID, serviceType, intent, group)
}

type command struct {
	intent enums.OutboundIntent
	to     enums.LifecycleStage
	source guard.Source
	cycle  enums.BillingCycle
	method enums.PaymentMethod
	group  int64
	call   func(ctx context.Context, key string) (platform.Ack, error)
	apply  func(track *models.Track, ack platform.Ack)
	actor  *outbox.ActorRef
}

// StartCheckout opens a card checkout or an invoice for an idle track. The
// track moves to pending_checkout or pending_invoice only after the platform
// acknowledges the command.
func (s *Service) StartCheckout(ctx context.Context, in CheckoutInput) (Result, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !in.ServiceType.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	if !in.Cycle.IsValid() || in.Cycle == enums.BillingCycleNone {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing cycle")
	}
	method := in.Method
	if method == "" {
		method = plans.MethodForCycle(in.Cycle)
	}

	intent := enums.IntentCreateCheckoutSession
	to := enums.StagePendingCheckout
	if method == enums.PaymentMethodInvoice {
		intent = enums.IntentCreateInvoice
		to = enums.StagePendingInvoice
	}

	return s.run(ctx, in.AccountID, in.ServiceType, func(track models.Track) command {
		customerRef := in.CustomerRef
		if customerRef == "" && track.ExternalCustomerRef != nil {
			customerRef = *track.ExternalCustomerRef
		}
		startsGeneration := track.LifecycleStage == enums.StageNone || track.LifecycleStage == enums.StageCanceled
		return command{
			intent: intent,
			to:     to,
			source: guard.SourceUser,
			cycle:  in.Cycle,
			method: method,
			group:  int64(track.Generation) + 1,
			call: func(ctx context.Context, key string) (platform.Ack, error) {
				req := platform.PurchaseRequest{
					IdempotencyKey: key,
					AccountID:      in.AccountID,
					ServiceType:    in.ServiceType,
					Cycle:          in.Cycle,
					CustomerRef:    customerRef,
					CardID:         in.CardID,
					Email:          in.Email,
					CompanyName:    in.CompanyName,
				}
				if intent == enums.IntentCreateInvoice {
					return s.platform.CreateInvoice(ctx, req)
				}
				return s.platform.CreateCheckoutSession(ctx, req)
			},
			apply: func(t *models.Track, ack platform.Ack) {
				if startsGeneration {
					t.Generation++
					t.ExternalCustomerRef = nil
					t.ExternalSubscriptionRef = nil
					if customerRef != "" {
						ref := customerRef
						t.ExternalCustomerRef = &ref
					}
				}
				t.TrialEndsAt = nil
				t.BillingCycle = in.Cycle
				t.PaymentMethod = method
				setRefs(t, ack)
			},
			actor: &outbox.ActorRef{AccountID: in.AccountID, Role: "user", Source: "gateway"},
		}
	})
}

// Pause asks the platform to pause billing for an active monthly track.
func (s *Service) Pause(ctx context.Context, accountID string, serviceType enums.ServiceType) (Result, error) {
	return s.toggle(ctx, accountID, serviceType, enums.IntentPauseSubscription, enums.StagePausedByUser, s.platform.PauseSubscription)
}

// Resume asks the platform to resume billing for a paused track.
func (s *Service) Resume(ctx context.Context, accountID string, serviceType enums.ServiceType) (Result, error) {
	return s.toggle(ctx, accountID, serviceType, enums.IntentResumeSubscription, enums.StageActive, s.platform.ResumeSubscription)
}

func (s *Service) toggle(
	ctx context.Context,
	accountID string,
	serviceType enums.ServiceType,
	intent enums.OutboundIntent,
	to enums.LifecycleStage,
	send func(ctx context.Context, key, subscriptionRef string) (platform.Ack, error),
) (Result, error) {
	if strings.TrimSpace(accountID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !serviceType.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	return s.run(ctx, accountID, serviceType, func(track models.Track) command {
		subscriptionRef := ""
		if track.ExternalSubscriptionRef != nil {
			subscriptionRef = *track.ExternalSubscriptionRef
		}
		return command{
			intent: intent,
			to:     to,
			source: guard.SourceUser,
			group:  track.Version,
			call: func(ctx context.Context, key string) (platform.Ack, error) {
				if subscriptionRef == "" {
					return platform.Ack{}, pkgerrors.New(pkgerrors.CodeStateConflict, "track has no subscription reference")
				}
				return send(ctx, key, subscriptionRef)
			},
			apply: setRefs,
			actor: &outbox.ActorRef{AccountID: accountID, Role: "user", Source: "gateway"},
		}
	})
}

// AdminOverride moves a track to any valid stage without contacting the
// platform. It is the only way out of pending_invoice other than a paid invoice.
func (s *Service) AdminOverride(ctx context.Context, in OverrideInput) (Result, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !in.ServiceType.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	if !in.Stage.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid lifecycle stage")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "override reason is required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"override_reason": in.Reason, "actor_id": in.ActorID})
	}
	return s.run(ctx, in.AccountID, in.ServiceType, func(track models.Track) command {
		cycle, method := in.Cycle, in.Method
		if cycle == "" {
			cycle = track.BillingCycle
		}
		if method == "" {
			method = track.PaymentMethod
			if in.Cycle != "" {
				method = plans.MethodForCycle(in.Cycle)
			}
		}
		startsGeneration := in.Stage.IsPending() &&
			(track.LifecycleStage == enums.StageNone || track.LifecycleStage == enums.StageCanceled)
		return command{
			to:     in.Stage,
			source: guard.SourceAdmin,
			cycle:  cycle,
			method: method,
			apply: func(t *models.Track, _ platform.Ack) {
				if startsGeneration {
					t.Generation++
					t.ExternalCustomerRef = nil
					t.ExternalSubscriptionRef = nil
				}
				if in.Stage != enums.StageTrialing {
					t.TrialEndsAt = nil
				}
				t.BillingCycle = cycle
				t.PaymentMethod = method
			},
			actor: &outbox.ActorRef{AccountID: in.ActorID, Role: "admin", Source: "admin_override"},
		}
	})
}

func (s *Service) run(ctx context.Context, accountID string, serviceType enums.ServiceType, build func(models.Track) command) (Result, error) {
	if s.logg != nil {
		ctx = s.logg.WithTrack(ctx, accountID, serviceType.String())
	}
	release, err := s.lock(ctx, accountID, serviceType)
	if err != nil {
		return Result{}, err
	}
	defer release()

	track, err := s.tracks.Get(ctx, accountID, serviceType)
	if err != nil {
		return Result{}, err
	}
	cmd := build(*track)
	if err := s.check(*track, cmd); err != nil {
		return Result{}, err
	}

	started := s.now()
	var (
		ack      platform.Ack
		key      string
		replayed bool
	)
	if cmd.call != nil {
		key, err = s.attemptKey(ctx, IdempotencyKey(accountID, serviceType, cmd.intent, cmd.group))
		if err != nil {
			return Result{}, err
		}
		if s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{"intent": cmd.intent, "idempotency_key": key})
		}
		ack, replayed, err = s.send(ctx, accountID, serviceType, cmd, key)
		if err != nil {
			return Result{}, err
		}
	}

	// acknowledged: the commit must not be abandoned with the caller
	commitCtx := context.WithoutCancel(ctx)
	res, err := s.commit(commitCtx, accountID, serviceType, cmd, ack, started)
	if err != nil {
		s.logError(commitCtx, "commit acknowledged command", err)
		return Result{}, err
	}
	res.IdempotencyKey = key
	res.Replayed = replayed

	if s.early != nil && !res.Unchanged && res.Track.LifecycleStage.IsPending() {
		if n, err := s.early.RecoverEarly(commitCtx, accountID, serviceType, started); err != nil {
			s.logWarn(commitCtx, "recover early confirmations: "+err.Error())
		} else if n > 0 {
			s.logInfo(commitCtx, fmt.Sprintf("recovered %d early confirmation(s)", n))
			if refreshed, err := s.tracks.Get(commitCtx, accountID, serviceType); err == nil {
				res.Track = *refreshed
			}
		}
	}
	return res, nil
}

func (s *Service) check(track models.Track, cmd command) error {
	err := guard.Check(track, guard.Transition{
		To:     cmd.to,
		Source: cmd.source,
		Intent: cmd.intent,
		Cycle:  cmd.cycle,
		Method: cmd.method,
	})
	if err == nil {
		return nil
	}
	rule, ok := guard.RuleOf(err)
	if !ok {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "action not permitted: "+rule).
		WithDetails(map[string]any{"rule": rule, "stage": track.LifecycleStage})
}

func (s *Service) lock(ctx context.Context, accountID string, serviceType enums.ServiceType) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	lock, err := redis.NewLock(s.locks, s.locks.LockKey("track", accountID, serviceType.String()), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create track lock")
	}
	if err := lock.AcquireWait(ctx, s.timeout, lockPoll); err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "another change to this track is in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire track lock")
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logWarn(ctx, "release track lock: "+err.Error())
		}
	}, nil
}

// attemptKey returns the key for the next attempt in the group named by base.
// A command the platform rejected outright consumes its key, so the next
// attempt, usually with different parameters, gets base-1, base-2 and so on.
// Transient failures keep their key.
func (s *Service) attemptKey(ctx context.Context, base string) (string, error) {
	key := base
	for n := 1; ; n++ {
		existing, err := s.ledger.Get(ctx, key)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return key, nil
		}
		if err != nil {
			return "", err
		}
		if existing.Status != enums.CommandStatusRejected {
			return key, nil
		}
		key = fmt.Sprintf("%s-%d", base, n)
	}
}

// send delivers the command under key, retrying transient failures with the
// same key. An acknowledgement already in the ledger is returned as is.
func (s *Service) send(ctx context.Context, accountID string, serviceType enums.ServiceType, cmd command, key string) (platform.Ack, bool, error) {
	existing, err := s.ledger.Get(ctx, key)
	switch {
	case err == nil && existing.Status == enums.CommandStatusSucceeded:
		s.logInfo(ctx, "outbound command already acknowledged")
		return ackFromCommand(existing), true, nil
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		if _, err := s.ledger.CreatePending(ctx, &models.OutboundCommand{
			IdempotencyKey: key,
			AccountID:      accountID,
			ServiceType:    serviceType,
			Intent:         cmd.intent,
		}); err != nil {
			return platform.Ack{}, false, err
		}
	default:
		return platform.Ack{}, false, err
	}

	var (
		lastErr  error
		attempts int
		backoff  time.Duration
	)
	for attempts < s.maxAttempts {
		if err := ctx.Err(); err != nil {
			return platform.Ack{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request canceled before the platform acknowledged it")
		}
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		began := time.Now()
		ack, callErr := cmd.call(attemptCtx, key)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		took := time.Since(began)

		if callErr == nil {
			s.metrics.ObserveAttempt(cmd.intent.String(), "ok", took)
			if err := s.ledger.MarkSucceeded(context.WithoutCancel(ctx), key, ack.CustomerRef, ack.SubscriptionRef, s.now()); err != nil {
				s.logWarn(ctx, "record acknowledgement: "+err.Error())
			}
			return ack, false, nil
		}

		lastErr = callErr
		if err := s.ledger.RecordAttempt(context.WithoutCancel(ctx), key, callErr); err != nil {
			s.logWarn(ctx, "record outbound attempt: "+err.Error())
		}
		if ctx.Err() != nil {
			s.metrics.ObserveAttempt(cmd.intent.String(), "canceled", took)
			return platform.Ack{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "request canceled before the platform acknowledged it")
		}
		if !timedOut && !pkgerrors.IsRetryable(callErr) {
			s.metrics.ObserveAttempt(cmd.intent.String(), "rejected", took)
			s.fail(ctx, accountID, serviceType, cmd.intent, key, attempts, callErr, true)
			return platform.Ack{}, false, callErr
		}
		if attempts >= s.maxAttempts {
			s.metrics.ObserveAttempt(cmd.intent.String(), "failed", took)
			break
		}
		s.metrics.ObserveAttempt(cmd.intent.String(), "retry", took)
		backoff = nextBackoff(backoff, s.backoffBase, s.backoffMax)
		s.logWarn(ctx, fmt.Sprintf("outbound attempt %d failed; retrying: %v", attempts, callErr))
		if err := s.sleep(ctx, withJitter(backoff)); err != nil {
			return platform.Ack{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request canceled before the platform acknowledged it")
		}
	}

	s.fail(ctx, accountID, serviceType, cmd.intent, key, attempts, lastErr, false)
	return platform.Ack{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "payment platform did not acknowledge the command").
		WithDetails(map[string]any{"idempotency_key": key, "attempts": attempts})
}

func (s *Service) fail(ctx context.Context, accountID string, serviceType enums.ServiceType, intent enums.OutboundIntent, key string, attempts int, cause error, rejected bool) {
	ctx = context.WithoutCancel(ctx)
	mark := s.ledger.MarkFailed
	if rejected {
		mark = s.ledger.MarkRejected
	}
	if err := mark(ctx, key, cause); err != nil {
		s.logWarn(ctx, "mark outbound command failed: "+err.Error())
	}
	s.logError(ctx, "outbound command failed", cause)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.alerts.OutboundCommandFailed(ctx, payloads.OutboundCommandFailedAlert{
		AccountID:      accountID,
		ServiceType:    serviceType,
		Intent:         intent,
		IdempotencyKey: key,
		Attempts:       attempts,
		Error:          msg,
		FailedAt:       s.now(),
	}); err != nil {
		s.logError(ctx, "queue outbound failure alert", err)
	}
}

func (s *Service) commit(ctx context.Context, accountID string, serviceType enums.ServiceType, cmd command, ack platform.Ack, started time.Time) (Result, error) {
	for attempt := 0; attempt <= defaultConflictRetries; attempt++ {
		var res Result
		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.tracks.WithTx(tx)
			current, err := repo.Get(ctx, accountID, serviceType)
			if err != nil {
				return err
			}
			if current.LifecycleStage == cmd.to && cmd.source != guard.SourceAdmin {
				res = Result{Track: *current, Unchanged: true}
				return nil
			}
			if cmd.source == guard.SourceAdmin && current.LifecycleStage == cmd.to &&
				current.BillingCycle == cmd.cycle && current.PaymentMethod == cmd.method {
				res = Result{Track: *current, Unchanged: true}
				return nil
			}
			if err := s.check(*current, cmd); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "track changed while the command was in flight")
			}

			next := *current
			from := current.LifecycleStage
			cmd.apply(&next, ack)
			if next.Generation != current.Generation {
				// events the platform reports for this purchase cannot predate the command
				generationStart := started
				next.GenerationStartedAt = &generationStart
			}
			now := s.now()
			next.LifecycleStage = cmd.to
			next.LastTransitionAt = &now
			next.Version = current.Version + 1
			if err := repo.CompareAndSwap(ctx, &next, current.Version); err != nil {
				return err
			}
			if err := s.alerts.TrackTransitionedTx(ctx, tx, payloads.TrackTransitionedEvent{
				AccountID:   accountID,
				ServiceType: serviceType,
				From:        from,
				To:          next.LifecycleStage,
				Version:     next.Version,
				Entitled:    guard.IsEntitled(next.LifecycleStage),
				OccurredAt:  now,
			}, cmd.actor); err != nil {
				return err
			}
			res = Result{Track: next}
			return nil
		})
		if errors.Is(err, tracks.ErrVersionConflict) {
			s.logInfo(ctx, "track version conflict on commit; retrying")
			continue
		}
		if err != nil {
			return Result{}, err
		}
		if !res.Unchanged {
			s.logInfo(ctx, "billing track transitioned by command")
		}
		return res, nil
	}
	return Result{}, pkgerrors.New(pkgerrors.CodeConflict, "track version conflict retries exhausted")
}

func setRefs(t *models.Track, ack platform.Ack) {
	if ack.CustomerRef != "" {
		ref := ack.CustomerRef
		t.ExternalCustomerRef = &ref
	}
	if ack.SubscriptionRef != "" {
		ref := ack.SubscriptionRef
		t.ExternalSubscriptionRef = &ref
	}
}

func ackFromCommand(cmd *models.OutboundCommand) platform.Ack {
	var ack platform.Ack
	if cmd.ExternalCustomerRef != nil {
		ack.CustomerRef = *cmd.ExternalCustomerRef
	}
	if cmd.ExternalSubscriptionRef != nil {
		ack.SubscriptionRef = *cmd.ExternalSubscriptionRef
	}
	return ack
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int64N(int64(jitterWindow)))
}

func (s *Service) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
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
