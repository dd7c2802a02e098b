package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/entitlement"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/gateway"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/ingest"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/plans"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/reconciler"
	pkgAuth "github.com/kaoriishige/adtown-ishige-sub000/pkg/auth"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubIngestor struct {
	delivery ingest.Delivery
}

func (s *stubIngestor) HandleWebhook(_ context.Context, d ingest.Delivery) (ingest.Result, error) {
	s.delivery = d
	return ingest.Result{
		EventID: "evt_1",
		Status:  ingest.StatusProcessed,
		Outcome: reconciler.Outcome{Kind: enums.OutcomeApplied},
	}, nil
}

type stubEntitlement struct{}

func (stubEntitlement) AccountView(_ context.Context, accountID string) (entitlement.AccountView, error) {
	return entitlement.AccountViewOf(accountID, nil), nil
}

func (stubEntitlement) TrackView(_ context.Context, _ string, serviceType enums.ServiceType) (entitlement.TrackView, error) {
	return entitlement.ViewOf(models.Track{ServiceType: serviceType, LifecycleStage: enums.StageActive}), nil
}

type stubGateway struct {
	checkout gateway.CheckoutInput
	paused   string
	override gateway.OverrideInput
}

func (s *stubGateway) StartCheckout(_ context.Context, in gateway.CheckoutInput) (gateway.Result, error) {
	s.checkout = in
	return gateway.Result{
		Track: models.Track{
			AccountID:      in.AccountID,
			ServiceType:    in.ServiceType,
			LifecycleStage: enums.StagePendingCheckout,
			BillingCycle:   in.Cycle,
			PaymentMethod:  enums.PaymentMethodCard,
		},
		IdempotencyKey: "checkout:key",
	}, nil
}

func (s *stubGateway) Pause(_ context.Context, accountID string, serviceType enums.ServiceType) (gateway.Result, error) {
	s.paused = accountID + ":" + serviceType.String()
	return gateway.Result{Track: models.Track{AccountID: accountID, ServiceType: serviceType, LifecycleStage: enums.StagePausedByUser}}, nil
}

func (s *stubGateway) Resume(_ context.Context, accountID string, serviceType enums.ServiceType) (gateway.Result, error) {
	return gateway.Result{Track: models.Track{AccountID: accountID, ServiceType: serviceType, LifecycleStage: enums.StageActive}}, nil
}

func (s *stubGateway) AdminOverride(_ context.Context, in gateway.OverrideInput) (gateway.Result, error) {
	s.override = in
	return gateway.Result{Track: models.Track{AccountID: in.AccountID, ServiceType: in.ServiceType, LifecycleStage: in.Stage}}, nil
}

type stubPlans struct{}

func (stubPlans) List() []plans.Plan {
	return []plans.Plan{{
		ServiceType: enums.ServiceTypeAdvertising,
		Cycle:       enums.BillingCycleMonthly,
		Method:      enums.PaymentMethodCard,
		PlanID:      "plan_ads_monthly",
		Price:       decimal.NewFromInt(3300),
		Currency:    "JPY",
	}}
}

type stubAccounts struct{}

func (stubAccounts) EnsureAccount(_ context.Context, accountID string) (*models.Account, []models.Track, error) {
	return &models.Account{AccountID: accountID}, []models.Track{
		{AccountID: accountID, ServiceType: enums.ServiceTypeAdvertising, LifecycleStage: enums.StageNone},
		{AccountID: accountID, ServiceType: enums.ServiceTypeRecruiting, LifecycleStage: enums.StageNone},
	}, nil
}

type testDeps struct {
	ingestor *stubIngestor
	gateway  *stubGateway
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) (http.Handler, *testDeps) {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	deps := &testDeps{ingestor: &stubIngestor{}, gateway: &stubGateway{}}
	return NewRouter(Params{
		Config:      cfg,
		Logger:      logg,
		DB:          stubPinger{},
		Gatherer:    prometheus.NewRegistry(),
		Webhooks:    deps.ingestor,
		Entitlement: stubEntitlement{},
		Gateway:     deps.gateway,
		Plans:       stubPlans{},
		Accounts:    stubAccounts{},
	}), deps
}

func buildToken(t *testing.T, cfg *config.Config, accountID string, role enums.AccountRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		AccountID: accountID,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func decodeData(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPlansArePublic(t *testing.T) {
	router, _ := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/billing/plans", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	data := decodeData(t, resp.Body)
	list, ok := data["plans"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected one plan got %v", data["plans"])
	}
}

func TestAccountBillingRejectsMissingJWT(t *testing.T) {
	router, _ := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me/billing", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAccountBillingReturnsCallerView(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me/billing", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-1", enums.AccountRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	data := decodeData(t, resp.Body)
	if data["accountId"] != "acct-1" {
		t.Fatalf("expected caller account got %v", data["accountId"])
	}
}

func TestTrackBillingRejectsUnknownServiceType(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me/billing/catering", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-1", enums.AccountRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutUsesCallerAccount(t *testing.T) {
	cfg := testConfig()
	router, deps := newTestRouter(cfg)

	body := strings.NewReader(`{"billingCycle":"monthly","cardId":"card_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/me/billing/advertising/checkout", body)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-1", enums.AccountRoleMember))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if deps.gateway.checkout.AccountID != "acct-1" {
		t.Fatalf("expected caller account got %q", deps.gateway.checkout.AccountID)
	}
	if deps.gateway.checkout.ServiceType != enums.ServiceTypeAdvertising {
		t.Fatalf("expected advertising got %q", deps.gateway.checkout.ServiceType)
	}
	if deps.gateway.checkout.Cycle != enums.BillingCycleMonthly {
		t.Fatalf("expected monthly got %q", deps.gateway.checkout.Cycle)
	}
}

func TestCheckoutRejectsUnknownCycle(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(cfg)

	body := strings.NewReader(`{"billingCycle":"weekly"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/me/billing/recruiting/checkout", body)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-1", enums.AccountRoleMember))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPauseRoutesToGateway(t *testing.T) {
	cfg := testConfig()
	router, deps := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/me/billing/recruiting/pause", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-2", enums.AccountRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if deps.gateway.paused != "acct-2:recruiting" {
		t.Fatalf("unexpected pause target %q", deps.gateway.paused)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(cfg)

	member := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts/acct-9", nil)
	member.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "acct-1", enums.AccountRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, member)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts/acct-9", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "ops-1", enums.AccountRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin got %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeData(t, resp.Body)
	if data["accountId"] != "acct-9" {
		t.Fatalf("expected provisioned account got %v", data["accountId"])
	}
}

func TestAdminOverrideRecordsActor(t *testing.T) {
	cfg := testConfig()
	router, deps := newTestRouter(cfg)

	body := strings.NewReader(`{"lifecycleStage":"active","billingCycle":"annual","paymentMethod":"card","reason":"manual fix"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts/acct-9/billing/advertising/override", body)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, "ops-1", enums.AccountRoleAdmin))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	got := deps.gateway.override
	if got.AccountID != "acct-9" || got.ActorID != "ops-1" {
		t.Fatalf("unexpected override target %+v", got)
	}
	if got.Stage != enums.StageActive || got.Cycle != enums.BillingCycleAnnual {
		t.Fatalf("unexpected override stage %+v", got)
	}
}

func TestBillingWebhookForwardsSignature(t *testing.T) {
	router, deps := newTestRouter(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("X-Billing-Signature", "sha256=abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if deps.ingestor.delivery.Signature != "sha256=abc" {
		t.Fatalf("expected signature forwarded got %q", deps.ingestor.delivery.Signature)
	}
	if string(deps.ingestor.delivery.Body) != `{"id":"evt_1"}` {
		t.Fatalf("unexpected body %q", deps.ingestor.delivery.Body)
	}
	data := decodeData(t, resp.Body)
	if data["status"] != string(ingest.StatusProcessed) {
		t.Fatalf("expected processed got %v", data["status"])
	}
}
