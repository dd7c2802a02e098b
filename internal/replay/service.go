// Package replay re-runs logged billing events of one track through the
// reconciler.
package replay

import (
	"context"
	"strings"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/eventlog"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

type eventReplayer interface {
	Replay(ctx context.Context, eventID string) (ingest.Result, error)
}

// Request selects the events to replay. A zero From starts at the beginning of
// the log and a zero To ends now.
type Request struct {
	AccountID   string
	ServiceType enums.ServiceType
	From        time.Time
	To          time.Time
	// DryRun reconciles in memory and leaves the track untouched.
	DryRun bool
}

// EventReport is the outcome of one replayed event.
type EventReport struct {
	EventID    string                 `json:"eventId"`
	Kind       enums.BillingEventKind `json:"kind"`
	OccurredAt time.Time              `json:"occurredAt"`
	Status     ingest.Status          `json:"status"`
	Outcome    reconciler.Outcome     `json:"outcome"`
}

type Report struct {
	AccountID    string               `json:"accountId"`
	ServiceType  enums.ServiceType    `json:"serviceType"`
	DryRun       bool                 `json:"dryRun"`
	Events       []EventReport        `json:"events"`
	Applied      int                  `json:"applied"`
	FinalStage   enums.LifecycleStage `json:"finalStage"`
	FinalVersion int64                `json:"finalVersion"`
}

type Service struct {
	events eventlog.Repository
	tracks tracks.Repository
	ingest eventReplayer
	policy reconciler.Policy
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(events eventlog.Repository, trackRepo tracks.Repository, replayer eventReplayer, policy reconciler.Policy, logg *logger.Logger) (*Service, error) {
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if trackRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "track repository required")
	}
	if replayer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event replayer required")
	}
	return &Service{
		events: events,
		tracks: trackRepo,
		ingest: replayer,
		policy: policy,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Replay re-runs the selected events in (occurredAt, precedence) order.
// Events already reflected in the track come back ignored or stale, so a
// replay can be repeated safely.
func (s *Service) Replay(ctx context.Context, req Request) (Report, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return Report{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !req.ServiceType.IsValid() {
		return Report{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	to := req.To
	if to.IsZero() {
		to = s.now()
	}
	from := req.From
	if from.After(to) {
		return Report{}, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	if s.logg != nil {
		ctx = s.logg.WithTrack(ctx, req.AccountID, req.ServiceType.String())
	}

	rows, err := s.events.ListForTrack(ctx, req.AccountID, req.ServiceType, from.UTC(), to.UTC())
	if err != nil {
		return Report{}, err
	}
	track, err := s.tracks.Get(ctx, req.AccountID, req.ServiceType)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		AccountID:   req.AccountID,
		ServiceType: req.ServiceType,
		DryRun:      req.DryRun,
		Events:      make([]EventReport, 0, len(rows)),
	}
	current := *track
	for _, row := range rows {
		entry := EventReport{EventID: row.EventID, Kind: row.Kind, OccurredAt: row.OccurredAt}
		if req.DryRun {
			res := reconciler.Reconcile(current, ingest.EventFromRow(row), s.policy)
			current = res.Track
			entry.Status = ingest.StatusProcessed
			entry.Outcome = res.Outcome
		} else {
			res, err := s.ingest.Replay(ctx, row.EventID)
			if err != nil {
				return report, err
			}
			entry.Status = res.Status
			entry.Outcome = res.Outcome
		}
		if entry.Outcome.Applied() {
			report.Applied++
		}
		report.Events = append(report.Events, entry)
	}

	if !req.DryRun {
		refreshed, err := s.tracks.Get(ctx, req.AccountID, req.ServiceType)
		if err != nil {
			return report, err
		}
		current = *refreshed
	}
	report.FinalStage = current.LifecycleStage
	report.FinalVersion = current.Version
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"events":  len(report.Events),
			"applied": report.Applied,
			"dry_run": req.DryRun,
		}), "billing events replayed")
	}
	return report, nil
}

// RecoverEarly replays confirmations received since the given time that were
// ignored because the track had not started yet.
func (s *Service) RecoverEarly(ctx context.Context, accountID string, serviceType enums.ServiceType, since time.Time) (int, error) {
	rows, err := s.events.ListIgnoredSince(ctx, accountID, serviceType, reconciler.ReasonNotStarted, since)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, row := range rows {
		res, err := s.ingest.Replay(ctx, row.EventID)
		if err != nil {
			return applied, err
		}
		if res.Outcome.Applied() {
			applied++
		}
	}
	return applied, nil
}
