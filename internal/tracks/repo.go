package tracks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
)

// ErrVersionConflict is returned when a compare-and-swap finds a newer version.
var ErrVersionConflict = errors.New("track version conflict")

// Repository is the versioned store for billing tracks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, accountID string) (*models.Account, []models.Track, error)
	Get(ctx context.Context, accountID string, serviceType enums.ServiceType) (*models.Track, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Track, error)
	CompareAndSwap(ctx context.Context, next *models.Track, expectedVersion int64) error
	ListTrialsEnded(ctx context.Context, now time.Time, limit int) ([]models.Track, error)
	ListPastDueSince(ctx context.Context, cutoff time.Time, limit int) ([]models.Track, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a track repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount creates the account and one track per service type when they
// are missing. Existing rows are left untouched.
func (r *repository) EnsureAccount(ctx context.Context, accountID string) (*models.Account, []models.Track, error) {
	if accountID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account := models.Account{AccountID: accountID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
			return err
		}
		for _, svc := range enums.AllServiceTypes() {
			track := models.Track{
				ID:             uuid.New(),
				AccountID:      accountID,
				ServiceType:    svc,
				LifecycleStage: enums.StageNone,
				BillingCycle:   enums.BillingCycleNone,
				PaymentMethod:  enums.PaymentMethodNone,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "service_type"}},
				DoNothing: true,
			}).Create(&track).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure billing account")
	}

	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "account_id = ?", accountID).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing account")
	}
	tracks, err := r.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	return &account, tracks, nil
}

func (r *repository) Get(ctx context.Context, accountID string, serviceType enums.ServiceType) (*models.Track, error) {
	var track models.Track
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND service_type = ?", accountID, serviceType).
		First(&track).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "billing track not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing track")
	}
	return &track, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID string) ([]models.Track, error) {
	var rows []models.Track
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("service_type ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing tracks")
	}
	return rows, nil
}

// CompareAndSwap writes next only when the stored version still equals
// expectedVersion. next.Version must already be the incremented value.
func (r *repository) CompareAndSwap(ctx context.Context, next *models.Track, expectedVersion int64) error {
	if next == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "track is required")
	}
	if next.Version <= expectedVersion {
		return pkgerrors.New(pkgerrors.CodeInternal, "next version must be greater than expected version")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Track{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(map[string]any{
			"lifecycle_stage":           next.LifecycleStage,
			"billing_cycle":             next.BillingCycle,
			"payment_method":            next.PaymentMethod,
			"generation":                next.Generation,
			"generation_started_at":     next.GenerationStartedAt,
			"external_customer_ref":     next.ExternalCustomerRef,
			"external_subscription_ref": next.ExternalSubscriptionRef,
			"trial_ends_at":             next.TrialEndsAt,
			"last_event_id":             next.LastEventID,
			"last_event_kind":           next.LastEventKind,
			"last_event_timestamp":      next.LastEventTimestamp,
			"last_transition_at":        next.LastTransitionAt,
			"version":                   next.Version,
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update billing track")
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *repository) ListTrialsEnded(ctx context.Context, now time.Time, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []models.Track
	if err := r.db.WithContext(ctx).
		Where("lifecycle_stage = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", enums.StageTrialing, now).
		Order("trial_ends_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ended trials")
	}
	return rows, nil
}

func (r *repository) ListPastDueSince(ctx context.Context, cutoff time.Time, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []models.Track
	if err := r.db.WithContext(ctx).
		Where("lifecycle_stage = ? AND last_transition_at IS NOT NULL AND last_transition_at <= ?", enums.StagePastDue, cutoff).
		Order("last_transition_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list past due tracks")
	}
	return rows, nil
}
