package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox/payloads"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service queues operational alerts and track events on the outbox.
type Service struct {
	outbox emitter
	tx     txRunner
	logg   *logger.Logger
}

func NewService(out emitter, tx txRunner, logg *logger.Logger) (*Service, error) {
	if out == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{outbox: out, tx: tx, logg: logg}, nil
}

// TrackAggregateID is the outbox aggregate id of a billing track.
func TrackAggregateID(accountID string, serviceType enums.ServiceType) string {
	return fmt.Sprintf("%s:%s", accountID, serviceType)
}

// InvariantViolationTx queues a violation alert inside tx. Event-driven
// violations are keyed by event id so a replay does not alert twice.
func (s *Service) InvariantViolationTx(ctx context.Context, tx *gorm.DB, alert payloads.InvariantViolationAlert, actor *outbox.ActorRef) error {
	if alert.DetectedAt.IsZero() {
		alert.DetectedAt = time.Now().UTC()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"rule": alert.Rule,
			"from": alert.From,
			"to":   alert.To,
		})
		s.logg.Error(logCtx, "billing invariant violation", nil)
	}
	if alert.EventID != "" {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvariantViolation,
			AggregateType: enums.AggregateBillingEvent,
			AggregateID:   alert.EventID,
			Actor:         actor,
			Data:          alert,
			OccurredAt:    alert.DetectedAt,
		})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvariantViolation,
		AggregateType: enums.AggregateBillingTrack,
		AggregateID:   TrackAggregateID(alert.AccountID, alert.ServiceType),
		Actor:         actor,
		Data:          alert,
		OccurredAt:    alert.DetectedAt,
	})
}

// TrackTransitionedTx queues the notification of an applied transition.
func (s *Service) TrackTransitionedTx(ctx context.Context, tx *gorm.DB, event payloads.TrackTransitionedEvent, actor *outbox.ActorRef) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTrackTransitioned,
		AggregateType: enums.AggregateBillingTrack,
		AggregateID:   TrackAggregateID(event.AccountID, event.ServiceType),
		Actor:         actor,
		Data:          event,
		Version:       int(event.Version),
		OccurredAt:    event.OccurredAt,
	})
}

// SignatureInvalid records a rejected webhook delivery. The raw body is never
// stored, only its digest and size.
func (s *Service) SignatureInvalid(ctx context.Context, body []byte, remoteAddr string) error {
	sum := sha256.Sum256(body)
	alert := payloads.SignatureInvalidAlert{
		RemoteAddr: remoteAddr,
		BodySHA256: hex.EncodeToString(sum[:]),
		BodyBytes:  len(body),
		ReceivedAt: time.Now().UTC(),
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"remote_addr": remoteAddr,
			"body_sha256": alert.BodySHA256,
		}), "webhook signature invalid")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSignatureInvalid,
			AggregateType: enums.AggregateBillingEvent,
			AggregateID:   alert.BodySHA256,
			Actor:         &outbox.ActorRef{Source: "webhook"},
			Data:          alert,
			OccurredAt:    alert.ReceivedAt,
		})
	})
}

// OutboundCommandFailed records a platform command that did not succeed.
func (s *Service) OutboundCommandFailed(ctx context.Context, alert payloads.OutboundCommandFailedAlert) error {
	if alert.FailedAt.IsZero() {
		alert.FailedAt = time.Now().UTC()
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOutboundCommandFailed,
			AggregateType: enums.AggregateBillingTrack,
			AggregateID:   TrackAggregateID(alert.AccountID, alert.ServiceType),
			Actor:         &outbox.ActorRef{AccountID: alert.AccountID, Source: "gateway"},
			Data:          alert,
			OccurredAt:    alert.FailedAt,
		})
	})
}
