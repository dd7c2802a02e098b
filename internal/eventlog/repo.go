// Package eventlog stores the write-ahead log of billing events.
package eventlog

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

// Repository persists billing events before they are reconciled.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, event *models.BillingEvent) (bool, error)
	Get(ctx context.Context, eventID string) (*models.BillingEvent, error)
	MarkProcessed(ctx context.Context, eventID string, outcome enums.EventOutcome, reason string, at time.Time) error
	IncrementAttempts(ctx context.Context, eventID string) error
	ListUnprocessedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.BillingEvent, error)
	ListForTrack(ctx context.Context, accountID string, serviceType enums.ServiceType, from, to time.Time) ([]models.BillingEvent, error)
	ListIgnoredSince(ctx context.Context, accountID string, serviceType enums.ServiceType, reason string, since time.Time) ([]models.BillingEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// InsertIfAbsent writes the event row unless one with the same id exists.
// It reports whether this call created the row.
func (r *repository) InsertIfAbsent(ctx context.Context, event *models.BillingEvent) (bool, error) {
	if event == nil || event.EventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "insert billing event")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Get(ctx context.Context, eventID string) (*models.BillingEvent, error) {
	var row models.BillingEvent
	if err := r.db.WithContext(ctx).First(&row, "event_id = ?", eventID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "billing event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing event")
	}
	return &row, nil
}

// MarkProcessed records the outcome once. A row that is already processed is
// left as is and reported as a state conflict.
func (r *repository) MarkProcessed(ctx context.Context, eventID string, outcome enums.EventOutcome, reason string, at time.Time) error {
	updates := map[string]any{
		"processed_at": at,
		"outcome":      outcome,
	}
	if reason != "" {
		updates["outcome_reason"] = reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.BillingEvent{}).
		Where("event_id = ? AND processed_at IS NULL", eventID).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark billing event processed")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "billing event already processed")
	}
	return nil
}

func (r *repository) IncrementAttempts(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingEvent{}).
		Where("event_id = ?", eventID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *repository) ListUnprocessedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.BillingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.BillingEvent
	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND received_at <= ?", cutoff).
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unprocessed billing events")
	}
	return rows, nil
}

// ListForTrack returns the events of one track with occurred_at in [from, to],
// ordered by occurrence and then by kind precedence.
func (r *repository) ListForTrack(ctx context.Context, accountID string, serviceType enums.ServiceType, from, to time.Time) ([]models.BillingEvent, error) {
	var rows []models.BillingEvent
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND service_type = ? AND occurred_at >= ? AND occurred_at <= ?", accountID, serviceType, from, to).
		Order("occurred_at ASC").
		Order("event_id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing events for track")
	}
	SortForReplay(rows)
	return rows, nil
}

// ListIgnoredSince returns the events of one track received at or after since
// that were processed as ignored for reason, in replay order.
func (r *repository) ListIgnoredSince(ctx context.Context, accountID string, serviceType enums.ServiceType, reason string, since time.Time) ([]models.BillingEvent, error) {
	var rows []models.BillingEvent
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND service_type = ? AND received_at >= ?", accountID, serviceType, since).
		Where("outcome = ? AND outcome_reason = ?", enums.OutcomeIgnored, reason).
		Order("occurred_at ASC").
		Order("event_id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ignored billing events")
	}
	SortForReplay(rows)
	return rows, nil
}
