package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/alerts"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/eventlog"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/dbtest"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/metrics"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/outbox"
)

const testSecret = "whsec_test"

var t0 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	client *db.Client
	tracks tracks.Repository
	events eventlog.Repository
	svc    *Service
}

func newFixture(t *testing.T, mutate func(*ServiceParams)) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	trackRepo := tracks.NewRepository(client.DB())
	eventRepo := eventlog.NewRepository(client.DB())
	alertSvc, err := alerts.NewService(outbox.NewService(outbox.NewRepository(client.DB()), nil), client, nil)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	params := ServiceParams{
		WebhookSecret:     testSecret,
		Tracks:            trackRepo,
		Events:            eventRepo,
		Alerts:            alertSvc,
		TransactionRunner: client,
		Now:               func() time.Time { return t0.Add(time.Hour) },
	}
	if mutate != nil {
		mutate(&params)
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, _, err := trackRepo.EnsureAccount(context.Background(), "acct-1"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return &fixture{client: client, tracks: trackRepo, events: eventRepo, svc: svc}
}

func (f *fixture) setTrack(t *testing.T, svc enums.ServiceType, mutate func(*models.Track)) {
	t.Helper()
	ctx := context.Background()
	current, err := f.tracks.Get(ctx, "acct-1", svc)
	if err != nil {
		t.Fatalf("get track: %v", err)
	}
	next := *current
	mutate(&next)
	next.Version = current.Version + 1
	if err := f.tracks.CompareAndSwap(ctx, &next, current.Version); err != nil {
		t.Fatalf("seed track: %v", err)
	}
}

func (f *fixture) track(t *testing.T, svc enums.ServiceType) *models.Track {
	t.Helper()
	got, err := f.tracks.Get(context.Background(), "acct-1", svc)
	if err != nil {
		t.Fatalf("get track: %v", err)
	}
	return got
}

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}

func envelope(t *testing.T, id, kind string, occurredAt time.Time, data map[string]any) []byte {
	t.Helper()
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["accountId"]; !ok {
		data["accountId"] = "acct-1"
	}
	if _, ok := data["serviceType"]; !ok {
		data["serviceType"] = "advertising"
	}
	body, err := json.Marshal(map[string]any{
		"id":         id,
		"type":       kind,
		"occurredAt": occurredAt.Format(time.RFC3339Nano),
		"data":       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func signed(body []byte) Delivery {
	return Delivery{Body: body, Signature: Sign(testSecret, body), RemoteAddr: "203.0.113.7"}
}

func pendingCheckout(tr *models.Track) {
	tr.LifecycleStage = enums.StagePendingCheckout
	tr.BillingCycle = enums.BillingCycleMonthly
	tr.PaymentMethod = enums.PaymentMethodCard
	at := t0
	tr.LastTransitionAt = &at
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	body := envelope(t, "evt-1", "invoice_paid", t0, nil)

	_, err := f.svc.HandleWebhook(context.Background(), Delivery{Body: body, Signature: Sign("wrong", body)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if _, err := f.events.Get(context.Background(), "evt-1"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("event must not be recorded, got %v", err)
	}
	if got := f.outboxCount(t, enums.EventSignatureInvalid); got != 1 {
		t.Fatalf("expected a security alert, got %d", got)
	}
}

func TestHandleWebhookIgnoresUnknownType(t *testing.T) {
	f := newFixture(t, nil)
	body := envelope(t, "evt-x", "customer.updated", t0, nil)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusIgnored || res.Outcome.Reason != reconciler.ReasonUnknownKind {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHandleWebhookIgnoresUnknownTypeWithoutTrackFields(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"id":"evt-c1","type":"customer.created","occurredAt":"2025-04-01T00:00:00Z","data":{"customerId":"C1"}}`)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EventID != "evt-c1" || res.Status != StatusIgnored || res.Outcome.Reason != reconciler.ReasonUnknownKind {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHandleWebhookRequiresTrackFieldsForHandledKinds(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"id":"evt-p1","type":"invoice_paid","occurredAt":"2025-04-01T00:00:00Z","data":{"customerId":"C1"}}`)
	if _, err := f.svc.HandleWebhook(context.Background(), signed(body)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleWebhookRejectsSchedulerKinds(t *testing.T) {
	f := newFixture(t, nil)
	body := envelope(t, "evt-trial", "trial_ended", t0, nil)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || res.Status != StatusIgnored {
		t.Fatalf("expected ignored, got %+v %v", res, err)
	}
}

func TestHandleWebhookRejectsMalformedEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range [][]byte{
		[]byte(`{not json`),
		[]byte(`{"type":"invoice_paid","occurredAt":"2025-04-01T00:00:00Z","data":{"accountId":"a","serviceType":"advertising"}}`),
		envelope(t, "evt-1", "invoice_paid", t0, map[string]any{"serviceType": "catering"}),
	} {
		if _, err := f.svc.HandleWebhook(context.Background(), signed(body)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %s, got %v", body, err)
		}
	}
}

func TestHandleWebhookCheckoutIntoTrial(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeAdvertising, pendingCheckout)

	body := envelope(t, "evt-1", "checkout_completed", t0.Add(time.Minute), map[string]any{
		"subscriptionRef": "sub-1",
		"customerRef":     "cust-1",
		"trialEndsAt":     t0.Add(14 * 24 * time.Hour).Format(time.RFC3339),
	})
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != StatusProcessed || !res.Outcome.Applied() {
		t.Fatalf("unexpected result %+v", res)
	}
	got := f.track(t, enums.ServiceTypeAdvertising)
	if got.LifecycleStage != enums.StageTrialing || *got.ExternalSubscriptionRef != "sub-1" {
		t.Fatalf("unexpected track %+v", got)
	}
	row, _ := f.events.Get(context.Background(), "evt-1")
	if row.ProcessedAt == nil || *row.Outcome != enums.OutcomeApplied {
		t.Fatalf("event not marked processed: %+v", row)
	}
	if f.outboxCount(t, enums.EventTrackTransitioned) != 1 {
		t.Fatal("expected a transition event on the outbox")
	}

	// the sibling track is never touched
	other := f.track(t, enums.ServiceTypeRecruiting)
	if other.LifecycleStage != enums.StageNone || other.Version != 0 {
		t.Fatalf("recruiting track changed: %+v", other)
	}
}

func TestHandleWebhookDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeAdvertising, func(tr *models.Track) {
		tr.LifecycleStage = enums.StagePendingInvoice
		tr.BillingCycle = enums.BillingCycleAnnualInvoice
		tr.PaymentMethod = enums.PaymentMethodInvoice
	})
	body := envelope(t, "inv-1", "invoice_paid", t0.Add(100*time.Second), nil)

	first, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || !first.Outcome.Applied() {
		t.Fatalf("first delivery: %+v %v", first, err)
	}
	second, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || second.Status != StatusDuplicate {
		t.Fatalf("second delivery: %+v %v", second, err)
	}
	got := f.track(t, enums.ServiceTypeAdvertising)
	if got.LifecycleStage != enums.StageActive || got.Version != 2 {
		t.Fatalf("expected a single transition, got %+v", got)
	}
}

func TestConcurrentDuplicateDeliveriesApplyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(p *ServiceParams) { p.Metrics = metrics.NewReconcileMetrics(reg) })
	f.setTrack(t, enums.ServiceTypeAdvertising, func(tr *models.Track) {
		tr.LifecycleStage = enums.StagePendingInvoice
		tr.BillingCycle = enums.BillingCycleAnnualInvoice
		tr.PaymentMethod = enums.PaymentMethodInvoice
	})
	body := envelope(t, "inv-1", "invoice_paid", t0.Add(100*time.Second), nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.HandleWebhook(context.Background(), signed(body))
		}(i)
	}
	wg.Wait()

	applied, duplicates := 0, 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		switch {
		case results[i].Status == StatusProcessed && results[i].Outcome.Applied():
			applied++
		case results[i].Status == StatusDuplicate:
			duplicates++
		}
	}
	if applied != 1 || duplicates != n-1 {
		t.Fatalf("expected 1 applied and %d duplicates, got %d and %d", n-1, applied, duplicates)
	}
	if got := f.track(t, enums.ServiceTypeAdvertising); got.Version != 2 {
		t.Fatalf("expected one version bump, got %d", got.Version)
	}
}

func TestGuardShortCircuitsClaimedEvents(t *testing.T) {
	store := newFakeIdempotencyStore()
	g, err := NewIdempotencyGuard(store, time.Hour, "billing-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	f := newFixture(t, func(p *ServiceParams) { p.Guard = g })
	f.setTrack(t, enums.ServiceTypeAdvertising, pendingCheckout)
	body := envelope(t, "evt-1", "checkout_completed", t0.Add(time.Minute), nil)

	if res, err := f.svc.HandleWebhook(context.Background(), signed(body)); err != nil || !res.Outcome.Applied() {
		t.Fatalf("first delivery: %+v %v", res, err)
	}
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || res.Status != StatusDuplicate {
		t.Fatalf("expected duplicate, got %+v %v", res, err)
	}
	if store.setCalls != 2 {
		t.Fatalf("expected guard to be consulted twice, got %d", store.setCalls)
	}
}

func TestGuardClaimWithoutLoggedEventIsProcessed(t *testing.T) {
	store := newFakeIdempotencyStore()
	g, _ := NewIdempotencyGuard(store, time.Hour, "billing-webhook")
	f := newFixture(t, func(p *ServiceParams) { p.Guard = g })
	f.setTrack(t, enums.ServiceTypeAdvertising, pendingCheckout)
	// claim left behind by a delivery that crashed before the write-ahead insert
	if claimed, err := g.CheckAndMark(context.Background(), "evt-1"); err != nil || claimed {
		t.Fatalf("pre-claim: claimed=%v err=%v", claimed, err)
	}

	body := envelope(t, "evt-1", "checkout_completed", t0.Add(time.Minute), nil)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || res.Status != StatusProcessed || !res.Outcome.Applied() {
		t.Fatalf("expected redelivery to be processed, got %+v %v", res, err)
	}
	row, err := f.events.Get(context.Background(), "evt-1")
	if err != nil || row.ProcessedAt == nil {
		t.Fatalf("expected event logged as processed, got %+v %v", row, err)
	}
	if got := f.track(t, enums.ServiceTypeAdvertising); got.LifecycleStage == enums.StagePendingCheckout {
		t.Fatalf("expected track to leave pending_checkout, got %s", got.LifecycleStage)
	}
}

func TestGuardReleasedOnFailure(t *testing.T) {
	store := newFakeIdempotencyStore()
	g, _ := NewIdempotencyGuard(store, time.Hour, "billing-webhook")
	failing := &failingEvents{Repository: nil, err: errors.New("db down")}
	f := newFixture(t, func(p *ServiceParams) {
		p.Guard = g
		failing.Repository = p.Events
		p.Events = failing
	})
	body := envelope(t, "evt-1", "checkout_completed", t0, nil)
	if _, err := f.svc.HandleWebhook(context.Background(), signed(body)); err == nil {
		t.Fatal("expected failure")
	}
	if len(store.values) != 0 {
		t.Fatalf("expected guard key released, got %v", store.values)
	}
}

func TestGuardFailureFallsBackToEventLog(t *testing.T) {
	store := newFakeIdempotencyStore()
	store.err = errors.New("redis down")
	g, _ := NewIdempotencyGuard(store, time.Hour, "billing-webhook")
	f := newFixture(t, func(p *ServiceParams) { p.Guard = g })
	f.setTrack(t, enums.ServiceTypeAdvertising, pendingCheckout)
	body := envelope(t, "evt-1", "checkout_completed", t0.Add(time.Minute), nil)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil || !res.Outcome.Applied() {
		t.Fatalf("expected processing without guard, got %+v %v", res, err)
	}
}

func TestStaleEventAfterCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeAdvertising, func(tr *models.Track) {
		tr.LifecycleStage = enums.StageActive
		tr.BillingCycle = enums.BillingCycleMonthly
		tr.PaymentMethod = enums.PaymentMethodCard
		at := t0.Add(200 * time.Second)
		tr.LastTransitionAt = &at
	})
	ctx := context.Background()
	cancel := envelope(t, "evt-cancel", "subscription_canceled", t0.Add(210*time.Second), nil)
	if res, err := f.svc.HandleWebhook(ctx, signed(cancel)); err != nil || !res.Outcome.Applied() {
		t.Fatalf("cancel: %+v %v", res, err)
	}
	late := envelope(t, "evt-late", "checkout_completed", t0.Add(150*time.Second), nil)
	res, err := f.svc.HandleWebhook(ctx, signed(late))
	if err != nil {
		t.Fatalf("late: %v", err)
	}
	if res.Outcome.Kind != enums.OutcomeStale {
		t.Fatalf("expected stale, got %+v", res.Outcome)
	}
	if got := f.track(t, enums.ServiceTypeAdvertising); got.LifecycleStage != enums.StageCanceled {
		t.Fatalf("expected canceled, got %s", got.LifecycleStage)
	}
	row, _ := f.events.Get(ctx, "evt-late")
	if row.Outcome == nil || *row.Outcome != enums.OutcomeStale {
		t.Fatalf("stale outcome not recorded: %+v", row)
	}
}

func TestRejectedEventRaisesAlert(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeAdvertising, func(tr *models.Track) {
		tr.LifecycleStage = enums.StageActive
		tr.BillingCycle = enums.BillingCycleAnnual
		tr.PaymentMethod = enums.PaymentMethodCard
	})
	body := envelope(t, "evt-pause", "subscription_paused", t0, nil)
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Outcome.Kind != enums.OutcomeRejected || res.Outcome.Reason != "annual_cannot_pause" {
		t.Fatalf("unexpected outcome %+v", res.Outcome)
	}
	if got := f.track(t, enums.ServiceTypeAdvertising); got.LifecycleStage != enums.StageActive {
		t.Fatalf("rejected event changed the track: %s", got.LifecycleStage)
	}
	if f.outboxCount(t, enums.EventInvariantViolation) != 1 {
		t.Fatal("expected an invariant alert")
	}
}

func TestEventForUnknownAccountIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	body := envelope(t, "evt-1", "invoice_paid", t0, map[string]any{"accountId": "ghost"})
	res, err := f.svc.HandleWebhook(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Outcome.Kind != enums.OutcomeIgnored || res.Outcome.Reason != reasonUnknownTrack {
		t.Fatalf("unexpected outcome %+v", res.Outcome)
	}
}

func TestIngestInternalTrialEnded(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeRecruiting, func(tr *models.Track) {
		tr.LifecycleStage = enums.StageTrialing
		tr.BillingCycle = enums.BillingCycleMonthly
		tr.PaymentMethod = enums.PaymentMethodCard
		ends := t0
		tr.TrialEndsAt = &ends
	})
	ev := InternalEvent{
		ID:          "trial_ended:acct-1:recruiting:0",
		AccountID:   "acct-1",
		ServiceType: enums.ServiceTypeRecruiting,
		Kind:        enums.EventKindTrialEnded,
		OccurredAt:  t0,
	}
	res, err := f.svc.IngestInternal(context.Background(), ev)
	if err != nil || !res.Outcome.Applied() {
		t.Fatalf("ingest: %+v %v", res, err)
	}
	if got := f.track(t, enums.ServiceTypeRecruiting); got.LifecycleStage != enums.StageActive {
		t.Fatalf("expected active, got %s", got.LifecycleStage)
	}
	again, err := f.svc.IngestInternal(context.Background(), ev)
	if err != nil || again.Status != StatusDuplicate {
		t.Fatalf("expected duplicate, got %+v %v", again, err)
	}

	if _, err := f.svc.IngestInternal(context.Background(), InternalEvent{ID: "x", AccountID: "acct-1", ServiceType: enums.ServiceTypeRecruiting, Kind: enums.EventKindInvoicePaid}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for external kind, got %v", err)
	}
}

func TestReprocessFinishesLoggedEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.setTrack(t, enums.ServiceTypeAdvertising, pendingCheckout)
	ctx := context.Background()
	body := envelope(t, "evt-crash", "checkout_completed", t0.Add(time.Minute), nil)
	// a crash after the write-ahead insert leaves an unprocessed row behind
	if _, err := f.events.InsertIfAbsent(ctx, &models.BillingEvent{
		EventID:     "evt-crash",
		AccountID:   "acct-1",
		ServiceType: enums.ServiceTypeAdvertising,
		Kind:        enums.EventKindCheckoutCompleted,
		OccurredAt:  t0.Add(time.Minute),
		ReceivedAt:  t0.Add(time.Minute),
		Source:      enums.EventSourceWebhook,
		Payload:     body,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := f.svc.Reprocess(ctx, "evt-crash")
	if err != nil || !res.Outcome.Applied() {
		t.Fatalf("reprocess: %+v %v", res, err)
	}
	again, err := f.svc.Reprocess(ctx, "evt-crash")
	if err != nil || again.Status != StatusDuplicate {
		t.Fatalf("second reprocess: %+v %v", again, err)
	}
	// a redelivery of the same id is now a duplicate too
	redelivered, err := f.svc.HandleWebhook(ctx, signed(body))
	if err != nil || redelivered.Status != StatusDuplicate {
		t.Fatalf("redelivery: %+v %v", redelivered, err)
	}
}

func TestNewServiceValidatesKinds(t *testing.T) {
	_, err := NewService(ServiceParams{
		WebhookSecret:     testSecret,
		EnabledKinds:      []string{"trial_ended"},
		Tracks:            tracks.NewRepository(nil),
		Events:            eventlog.NewRepository(nil),
		Alerts:            &alerts.Service{},
		TransactionRunner: &db.Client{},
	})
	if err == nil {
		t.Fatal("expected internal kinds to be refused")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt"}`)
	sig := Sign(testSecret, body)
	cases := []struct {
		name string
		sig  string
		want bool
	}{
		{"valid", sig, true},
		{"prefixed", "sha256=" + sig, true},
		{"tampered", Sign(testSecret, []byte(`{"id":"evu"}`)), false},
		{"not hex", "zz", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		if got := VerifySignature(testSecret, body, tc.sig); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if VerifySignature("", body, Sign("", body)) {
		t.Fatal("an empty secret must never verify")
	}
}

type fakeIdempotencyStore struct {
	mu       sync.Mutex
	values   map[string]string
	setCalls int
	err      error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{values: map[string]string{}}
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "adtown:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

type failingEvents struct {
	eventlog.Repository
	err error
}

func (f *failingEvents) InsertIfAbsent(context.Context, *models.BillingEvent) (bool, error) {
	return false, f.err
}
