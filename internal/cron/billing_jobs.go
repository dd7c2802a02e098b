package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

const defaultBatchLimit = 200

type internalIngestor interface {
	IngestInternal(ctx context.Context, ev ingest.InternalEvent) (ingest.Result, error)
}

type trialTrackLister interface {
	ListTrialsEnded(ctx context.Context, now time.Time, limit int) ([]models.Track, error)
}

type pastDueTrackLister interface {
	ListPastDueSince(ctx context.Context, cutoff time.Time, limit int) ([]models.Track, error)
}

// TrialExpiryJobParams configure the trial-expiry job.
type TrialExpiryJobParams struct {
	Logger   *logger.Logger
	Tracks   trialTrackLister
	Ingestor internalIngestor
	Limit    int
	Now      func() time.Time
}

// NewTrialExpiryJob emits trial_ended for every trialing track whose trial has
// elapsed.
func NewTrialExpiryJob(params TrialExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracks == nil {
		return nil, fmt.Errorf("track repository required")
	}
	if params.Ingestor == nil {
		return nil, fmt.Errorf("ingestor required")
	}
	return &trialExpiryJob{
		logg:     params.Logger,
		tracks:   params.Tracks,
		ingestor: params.Ingestor,
		limit:    batchLimit(params.Limit),
		now:      nowFunc(params.Now),
	}, nil
}

type trialExpiryJob struct {
	logg     *logger.Logger
	tracks   trialTrackLister
	ingestor internalIngestor
	limit    int
	now      func() time.Time
}

func (j *trialExpiryJob) Name() string { return "trial-expiry" }

func (j *trialExpiryJob) Run(ctx context.Context) error {
	due, err := j.tracks.ListTrialsEnded(ctx, j.now(), j.limit)
	if err != nil {
		return fmt.Errorf("list ended trials: %w", err)
	}
	var errs error
	applied := 0
	for _, track := range due {
		if track.TrialEndsAt == nil {
			continue
		}
		res, err := j.ingestor.IngestInternal(ctx, ingest.InternalEvent{
			ID:          TrialEndedEventID(track),
			AccountID:   track.AccountID,
			ServiceType: track.ServiceType,
			Kind:        enums.EventKindTrialEnded,
			OccurredAt:  *track.TrialEndsAt,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("track %s/%s: %w", track.AccountID, track.ServiceType, err))
			continue
		}
		if res.Outcome.Applied() {
			applied++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"applied":    applied,
	}), "trial expiry sweep complete")
	return errs
}

// TrialEndedEventID is stable per track generation, so a sweep that runs twice
// produces a duplicate instead of a second event.
func TrialEndedEventID(track models.Track) string {
	return fmt.Sprintf("trial_ended:%s:%s:%d", track.AccountID, track.ServiceType, track.Generation)
}

// GraceExpiryJobParams configure the past-due grace job.
type GraceExpiryJobParams struct {
	Logger      *logger.Logger
	Tracks      pastDueTrackLister
	Ingestor    internalIngestor
	GracePeriod time.Duration
	Limit       int
	Now         func() time.Time
}

// NewGraceExpiryJob emits grace_period_expired for tracks that stayed past_due
// for longer than the grace period.
func NewGraceExpiryJob(params GraceExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracks == nil {
		return nil, fmt.Errorf("track repository required")
	}
	if params.Ingestor == nil {
		return nil, fmt.Errorf("ingestor required")
	}
	if params.GracePeriod <= 0 {
		return nil, fmt.Errorf("grace period must be positive")
	}
	return &graceExpiryJob{
		logg:     params.Logger,
		tracks:   params.Tracks,
		ingestor: params.Ingestor,
		grace:    params.GracePeriod,
		limit:    batchLimit(params.Limit),
		now:      nowFunc(params.Now),
	}, nil
}

type graceExpiryJob struct {
	logg     *logger.Logger
	tracks   pastDueTrackLister
	ingestor internalIngestor
	grace    time.Duration
	limit    int
	now      func() time.Time
}

func (j *graceExpiryJob) Name() string { return "past-due-grace" }

func (j *graceExpiryJob) Run(ctx context.Context) error {
	due, err := j.tracks.ListPastDueSince(ctx, j.now().Add(-j.grace), j.limit)
	if err != nil {
		return fmt.Errorf("list past due tracks: %w", err)
	}
	var errs error
	canceled := 0
	for _, track := range due {
		if track.LastTransitionAt == nil {
			continue
		}
		res, err := j.ingestor.IngestInternal(ctx, ingest.InternalEvent{
			ID:          GraceExpiredEventID(track),
			AccountID:   track.AccountID,
			ServiceType: track.ServiceType,
			Kind:        enums.EventKindGracePeriodExpired,
			OccurredAt:  track.LastTransitionAt.Add(j.grace),
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("track %s/%s: %w", track.AccountID, track.ServiceType, err))
			continue
		}
		if res.Outcome.Applied() {
			canceled++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"canceled":   canceled,
	}), "past due grace sweep complete")
	return errs
}

// GraceExpiredEventID identifies one past_due episode of a track generation.
func GraceExpiredEventID(track models.Track) string {
	var since int64
	if track.LastTransitionAt != nil {
		since = track.LastTransitionAt.Unix()
	}
	return fmt.Sprintf("grace_period_expired:%s:%s:%d:%d", track.AccountID, track.ServiceType, track.Generation, since)
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return defaultBatchLimit
	}
	return limit
}

func nowFunc(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return func() time.Time { return time.Now().UTC() }
}
