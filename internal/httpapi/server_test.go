package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stocksense/internal/alerts"
	"stocksense/internal/auth"
	"stocksense/internal/config"
	"stocksense/internal/core"
	"stocksense/internal/risk"
	"stocksense/internal/store"
)

type noOrgs struct{}

func (noOrgs) ListOrgs(ctx context.Context) ([]store.Org, error) { return nil, nil }

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		ListenAddr:     ":0",
		AllowedOrigins: []string{"*"},
		Chat:           config.ChatConfig{Enabled: true, HybridEnabled: false, LowConfidenceThreshold: 0.55},
		Alerts:         config.AlertConfig{CronToken: "cron-secret"},
	}
}

// testServer wires a server that never reaches the database: the tests below
// exercise only the auth, flag and validation layers in front of it.
func testServer(t *testing.T, cfg *config.AppConfig) (*Server, string) {
	t.Helper()
	tokens := auth.NewManager("jwt-secret", 30, 7)
	scheduler := alerts.NewScheduler(noOrgs{}, store.NewMemoryIdemStore(),
		func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
			return &risk.Digest{OrgID: org.ID, OrgName: org.Name}, nil
		})
	c, err := core.New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}

	pair, _ := tokens.IssuePair(&store.User{ID: 1, OrgID: 1, Role: "admin"})
	return NewServer(cfg, nil, c, tokens, scheduler), pair.AccessToken
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	s, _ := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/analytics/stockout-risk", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/analytics/stockout-risk", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestChatDisabledReturns403(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.Enabled = false
	s, token := testServer(t, cfg)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/chat/query", token, `{"prompt":"hi"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHybridDisabledReturns403(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPost, "/api/v1/chat2/query", token, `{"message":"hi"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestStockoutRiskDaysBounds(t *testing.T) {
	s, token := testServer(t, testConfig())

	for _, q := range []string{"days=6", "days=121", "days=abc"} {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/analytics/stockout-risk?"+q, token, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", q, rec.Code)
		}
	}
}

func TestReorderHorizonOverrideBounds(t *testing.T) {
	s, token := testServer(t, testConfig())

	for _, q := range []string{"horizon_days_override=0", "horizon_days_override=366"} {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/purchasing/reorder-suggestions?"+q, token, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", q, rec.Code)
		}
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/purchasing/reorder-suggestions?strategy=bold", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestRunDailyAlertsAuth(t *testing.T) {
	s, _ := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPost, "/api/v1/internal/run-daily-alerts", "wrong-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/internal/run-daily-alerts", "cron-secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	var report alerts.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("report decode: %v", err)
	}
	if report.OrgsProcessed != 0 {
		t.Errorf("orgs_processed = %d, want 0 with no orgs", report.OrgsProcessed)
	}
}

func TestRunDailyAlertsRequiresConfiguredToken(t *testing.T) {
	cfg := testConfig()
	cfg.Alerts.CronToken = ""
	s, _ := testServer(t, cfg)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/internal/run-daily-alerts", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unconfigured token: status = %d, want 401", rec.Code)
	}
}

func TestChatQueryRejectsEmptyBody(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPost, "/api/v1/chat/query", token, `{}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/chat/query", token, `not json`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed body: status = %d, want 422", rec.Code)
	}
}

func TestChatQueryUnknownIntentReturns422(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPost, "/api/v1/chat/query", token, `{"intent":"bogus_intent"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "intent") {
		t.Errorf("body = %s, want the offending field named", rec.Body.String())
	}
}

func TestAdvancePOStatusValidation(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPatch, "/api/v1/purchasing/purchase-orders/7/status", token, `{"status":"shipped"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown status: status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/purchasing/purchase-orders/7/status", token, `{"status":"draft"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("draft target: status = %d, want 422", rec.Code)
	}
}

func TestAdjustmentValidation(t *testing.T) {
	s, token := testServer(t, testConfig())

	rec := doRequest(t, s, http.MethodPost, "/api/v1/inventory/adjustments", token, `{"product_id":0,"quantity":5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing product: status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/inventory/adjustments", token, `{"product_id":3,"quantity":0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero quantity: status = %d, want 422", rec.Code)
	}
}

func TestSplitChannels(t *testing.T) {
	got := splitChannels("")
	if len(got) != 2 || got[0] != "email" || got[1] != "webhook" {
		t.Errorf("default channels = %v", got)
	}
	got = splitChannels("webhook, email,")
	if len(got) != 2 || got[0] != "webhook" || got[1] != "email" {
		t.Errorf("parsed channels = %v", got)
	}
}

func TestSalesWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/sales?start_date=2026-03-01&end_date=2026-03-07", nil)
	days, err := salesWindow(req)
	if err != nil || days != 7 {
		t.Errorf("date range window = (%d, %v), want 7 days", days, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analytics/sales?start_date=2026-03-07&end_date=2026-03-01", nil)
	if _, err := salesWindow(req); err == nil {
		t.Error("inverted range must be rejected")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analytics/sales", nil)
	if days, err := salesWindow(req); err != nil || days != 30 {
		t.Errorf("default window = (%d, %v), want 30 days", days, err)
	}
}
