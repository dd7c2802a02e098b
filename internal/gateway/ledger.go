package gateway

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
)

// Ledger records every outbound command under its idempotency key so a retry
// reuses the key and an acknowledged command is never sent twice.
type Ledger interface {
	Get(ctx context.Context, key string) (*models.OutboundCommand, error)
	CreatePending(ctx context.Context, cmd *models.OutboundCommand) (bool, error)
	RecordAttempt(ctx context.Context, key string, attemptErr error) error
	MarkSucceeded(ctx context.Context, key, customerRef, subscriptionRef string, at time.Time) error
	MarkFailed(ctx context.Context, key string, cause error) error
	MarkRejected(ctx context.Context, key string, cause error) error
}

type ledger struct {
	db *gorm.DB
}

// NewLedger returns a command ledger bound to db.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) Get(ctx context.Context, key string) (*models.OutboundCommand, error) {
	var cmd models.OutboundCommand
	err := l.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&cmd).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "outbound command not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load outbound command")
	}
	return &cmd, nil
}

// CreatePending inserts the command unless its key is already recorded and
// reports whether this call created it.
func (l *ledger) CreatePending(ctx context.Context, cmd *models.OutboundCommand) (bool, error) {
	if cmd == nil || cmd.IdempotencyKey == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	cmd.Status = enums.CommandStatusPending
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(cmd)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record outbound command")
	}
	return res.RowsAffected == 1, nil
}

func (l *ledger) RecordAttempt(ctx context.Context, key string, attemptErr error) error {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": time.Now().UTC(),
	}
	if attemptErr != nil {
		updates["last_error"] = attemptErr.Error()
	}
	err := l.db.WithContext(ctx).Model(&models.OutboundCommand{}).
		Where("idempotency_key = ?", key).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record outbound attempt")
	}
	return nil
}

func (l *ledger) MarkSucceeded(ctx context.Context, key, customerRef, subscriptionRef string, at time.Time) error {
	updates := map[string]any{
		"status":          enums.CommandStatusSucceeded,
		"acknowledged_at": at,
		"last_error":      nil,
		"updated_at":      at,
	}
	if customerRef != "" {
		updates["external_customer_ref"] = customerRef
	}
	if subscriptionRef != "" {
		updates["external_subscription_ref"] = subscriptionRef
	}
	err := l.db.WithContext(ctx).Model(&models.OutboundCommand{}).
		Where("idempotency_key = ?", key).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark outbound command succeeded")
	}
	return nil
}

// MarkFailed records a command that exhausted its retries. It never
// downgrades an acknowledged command.
func (l *ledger) MarkFailed(ctx context.Context, key string, cause error) error {
	return l.markUnacknowledged(ctx, key, enums.CommandStatusFailed, cause)
}

// MarkRejected records a command the platform refused. Its key is not reused.
func (l *ledger) MarkRejected(ctx context.Context, key string, cause error) error {
	return l.markUnacknowledged(ctx, key, enums.CommandStatusRejected, cause)
}

func (l *ledger) markUnacknowledged(ctx context.Context, key string, status enums.CommandStatus, cause error) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	err := l.db.WithContext(ctx).Model(&models.OutboundCommand{}).
		Where("idempotency_key = ? AND status <> ?", key, enums.CommandStatusSucceeded).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark outbound command "+status.String())
	}
	return nil
}
