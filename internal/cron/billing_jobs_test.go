package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

type stubTracks struct {
	trials  []models.Track
	pastDue []models.Track
	cutoff  time.Time
	err     error
}

func (s *stubTracks) ListTrialsEnded(_ context.Context, now time.Time, _ int) ([]models.Track, error) {
	s.cutoff = now
	return s.trials, s.err
}

func (s *stubTracks) ListPastDueSince(_ context.Context, cutoff time.Time, _ int) ([]models.Track, error) {
	s.cutoff = cutoff
	return s.pastDue, s.err
}

type recordingIngestor struct {
	events []ingest.InternalEvent
	failOn string
}

func (r *recordingIngestor) IngestInternal(_ context.Context, ev ingest.InternalEvent) (ingest.Result, error) {
	r.events = append(r.events, ev)
	if ev.AccountID == r.failOn {
		return ingest.Result{}, errors.New("store unavailable")
	}
	return ingest.Result{
		EventID: ev.ID,
		Status:  ingest.StatusProcessed,
		Outcome: reconciler.Outcome{Kind: enums.OutcomeApplied},
	}, nil
}

func fixedNow() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

func TestTrialExpiryJobEmitsStableEvents(t *testing.T) {
	ends := fixedNow().Add(-time.Hour)
	tracks := &stubTracks{trials: []models.Track{
		{AccountID: "acct-1", ServiceType: enums.ServiceTypeAdvertising, Generation: 2, TrialEndsAt: &ends},
		{AccountID: "acct-2", ServiceType: enums.ServiceTypeRecruiting, Generation: 1},
	}}
	ingestor := &recordingIngestor{}
	job, err := NewTrialExpiryJob(TrialExpiryJobParams{Logger: testLogger(), Tracks: tracks, Ingestor: ingestor, Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, "trial-expiry", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, fixedNow(), tracks.cutoff)
	require.Len(t, ingestor.events, 1)
	ev := ingestor.events[0]
	require.Equal(t, "trial_ended:acct-1:advertising:2", ev.ID)
	require.Equal(t, enums.EventKindTrialEnded, ev.Kind)
	require.Equal(t, ends, ev.OccurredAt)

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, ingestor.events[0].ID, ingestor.events[1].ID)
}

func TestTrialExpiryJobContinuesPastFailures(t *testing.T) {
	ends := fixedNow().Add(-time.Hour)
	tracks := &stubTracks{trials: []models.Track{
		{AccountID: "bad", ServiceType: enums.ServiceTypeAdvertising, TrialEndsAt: &ends},
		{AccountID: "good", ServiceType: enums.ServiceTypeAdvertising, TrialEndsAt: &ends},
	}}
	ingestor := &recordingIngestor{failOn: "bad"}
	job, err := NewTrialExpiryJob(TrialExpiryJobParams{Logger: testLogger(), Tracks: tracks, Ingestor: ingestor, Now: fixedNow})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad/advertising")
	require.Len(t, ingestor.events, 2)
}

func TestGraceExpiryJobUsesGraceCutoff(t *testing.T) {
	grace := 7 * 24 * time.Hour
	since := fixedNow().Add(-8 * 24 * time.Hour)
	tracks := &stubTracks{pastDue: []models.Track{
		{AccountID: "acct-1", ServiceType: enums.ServiceTypeRecruiting, Generation: 1, LastTransitionAt: &since},
	}}
	ingestor := &recordingIngestor{}
	job, err := NewGraceExpiryJob(GraceExpiryJobParams{Logger: testLogger(), Tracks: tracks, Ingestor: ingestor, GracePeriod: grace, Now: fixedNow})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, fixedNow().Add(-grace), tracks.cutoff)
	require.Len(t, ingestor.events, 1)
	ev := ingestor.events[0]
	require.Equal(t, enums.EventKindGracePeriodExpired, ev.Kind)
	require.Equal(t, since.Add(grace), ev.OccurredAt)
	require.Equal(t, GraceExpiredEventID(tracks.pastDue[0]), ev.ID)
}

func TestGraceExpiredEventIDChangesPerEpisode(t *testing.T) {
	first := fixedNow()
	second := first.Add(48 * time.Hour)
	a := GraceExpiredEventID(models.Track{AccountID: "acct-1", ServiceType: enums.ServiceTypeAdvertising, Generation: 1, LastTransitionAt: &first})
	b := GraceExpiredEventID(models.Track{AccountID: "acct-1", ServiceType: enums.ServiceTypeAdvertising, Generation: 1, LastTransitionAt: &second})
	require.NotEqual(t, a, b)
}

func TestGraceExpiryJobRequiresPositiveGrace(t *testing.T) {
	_, err := NewGraceExpiryJob(GraceExpiryJobParams{Logger: testLogger(), Tracks: &stubTracks{}, Ingestor: &recordingIngestor{}})
	require.Error(t, err)
}

func TestBillingJobsPropagateListErrors(t *testing.T) {
	tracks := &stubTracks{err: errors.New("db down")}
	job, err := NewTrialExpiryJob(TrialExpiryJobParams{Logger: testLogger(), Tracks: tracks, Ingestor: &recordingIngestor{}})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "db down")
}
