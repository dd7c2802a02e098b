package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

const (
	defaultRecoveryWait    = 5 * time.Minute
	defaultOutboxRetention = 30 * 24 * time.Hour
	outboxDeleteBatch      = 500
)

type unprocessedLister interface {
	ListUnprocessedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.BillingEvent, error)
}

type reprocessor interface {
	Reprocess(ctx context.Context, eventID string) (ingest.Result, error)
}

// EventRecoveryJobParams configure the event-recovery job.
type EventRecoveryJobParams struct {
	Logger      *logger.Logger
	Events      unprocessedLister
	Reprocessor reprocessor
	Wait        time.Duration
	Limit       int
	Now         func() time.Time
}

// NewEventRecoveryJob finishes logged events left unprocessed, typically by a
// crash between the write-ahead insert and the commit.
func NewEventRecoveryJob(params EventRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if params.Reprocessor == nil {
		return nil, fmt.Errorf("reprocessor required")
	}
	wait := params.Wait
	if wait <= 0 {
		wait = defaultRecoveryWait
	}
	return &eventRecoveryJob{
		logg:  params.Logger,
		list:  params.Events,
		redo:  params.Reprocessor,
		wait:  wait,
		limit: batchLimit(params.Limit),
		now:   nowFunc(params.Now),
	}, nil
}

type eventRecoveryJob struct {
	logg  *logger.Logger
	list  unprocessedLister
	redo  reprocessor
	wait  time.Duration
	limit int
	now   func() time.Time
}

func (j *eventRecoveryJob) Name() string { return "event-recovery" }

func (j *eventRecoveryJob) Run(ctx context.Context) error {
	rows, err := j.list.ListUnprocessedOlderThan(ctx, j.now().Add(-j.wait), j.limit)
	if err != nil {
		return fmt.Errorf("list unprocessed events: %w", err)
	}
	var errs error
	recovered := 0
	for _, row := range rows {
		if _, err := j.redo.Reprocess(ctx, row.EventID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", row.EventID, err))
			continue
		}
		recovered++
	}
	if len(rows) > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"candidates": len(rows),
			"recovered":  recovered,
		}), "recovered unprocessed billing events")
	}
	return errs
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox-retention job.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  time.Duration
	Now        func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       nowFunc(params.Now),
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in batches until a batch comes back short.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	var total int64
	for {
		deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff, outboxDeleteBatch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		if deleted < outboxDeleteBatch || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention cleanup complete")
	return nil
}
