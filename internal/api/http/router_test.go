package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/api/http/handlers"
	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/persistence"
	"github.com/assetflow/handover-service/internal/repository"
	"github.com/assetflow/handover-service/internal/service"
	"github.com/assetflow/handover-service/internal/testfixtures"
)

type testServer struct {
	app    *fiber.App
	clock  *testfixtures.Clock
	repo   *repository.MemoryAssignmentRepository
	issuer *service.TokenIssuer
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := testfixtures.NewClock(time.Time{})
	repo := repository.NewMemoryAssignmentRepository()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	sigCfg := config.SignatureConfig{
		TokenTTL:               time.Hour,
		TokenMaxAttempts:       5,
		MaxPayloadBytes:        64,
		DisputeReasonMinLength: 10,
		DisputeReasonMaxLength: 100,
	}
	issuer := service.NewTokenIssuer(sigCfg, service.TokenIssuerDependencies{Repo: repo, Clock: clk, Metrics: metrics})
	signatures := service.NewSignatureService(sigCfg, service.SignatureDependencies{Repo: repo, Clock: clk, Dispatcher: dispatcher, Metrics: metrics})
	handovers := service.NewHandoverService(service.HandoverDependencies{Repo: repo, Issuer: issuer, Clock: clk, Dispatcher: dispatcher})
	notifications := service.NewNotificationService(dispatcher, nil, config.NotificationConfig{SignBaseURL: "https://assets.example.com/sign"})
	tokens := auth.NewTokenManager("test-secret", time.Hour, clk)

	app := fiber.New()
	RegisterMiddlewares(app, nil, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("handover-test", "test", map[string]handlers.Pinger{
			"postgres": &persistence.Postgres{},
		}),
		Signatures:     handlers.NewSignatureHandler(signatures, clk),
		Handovers:      handlers.NewHandoverHandler(handovers, notifications),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, clock: clk, repo: repo, issuer: issuer, tokens: tokens}
}

func (s *testServer) seed(t *testing.T, n int, ttl time.Duration) string {
	t.Helper()
	ctx := context.Background()
	a := testfixtures.Assignment(n, s.clock.Now())
	require.NoError(t, s.repo.Create(ctx, a, testfixtures.Items(a.ID, "LT-1")))
	tok, err := s.issuer.Issue(ctx, a.ID, ttl)
	require.NoError(t, err)
	return tok.Value
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestSignFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.seed(t, 1, time.Hour)

	status, body := s.do(t, http.MethodGet, "/api/v1/sign/"+token, nil, "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, true, data["actionable"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sign/"+token, map[string]string{
		"signature_data": "data:image/png;base64,AAAA",
		"signer_email":   "employee1@example.com",
	}, "")
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "SIGNED", data["status"])
	assert.Equal(t, "employee1@example.com", data["signed_by_email"])
	assert.Equal(t, false, data["actionable"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sign/"+token, map[string]string{
		"signature_data": "again",
		"signer_email":   "employee1@example.com",
	}, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_FINALIZED", errorCode(body))

	// Finalized tokens still resolve for receipt display.
	status, body = s.do(t, http.MethodGet, "/api/v1/sign/"+token, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SIGNED", body["data"].(map[string]any)["status"])
}

func TestSignErrorsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.seed(t, 1, time.Second)

	status, body := s.do(t, http.MethodGet, "/api/v1/sign/unknown-token", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TOKEN_NOT_FOUND", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/sign/"+token, map[string]string{
		"signature_data": strings.Repeat("A", 65),
		"signer_email":   "employee1@example.com",
	}, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/sign/"+token+"/dispute", map[string]string{"reason": "short"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "min_length", details["constraint"])

	s.clock.Advance(2 * time.Second)
	status, body = s.do(t, http.MethodPost, "/api/v1/sign/"+token, map[string]string{
		"signature_data": "sig",
		"signer_email":   "employee1@example.com",
	}, "")
	assert.Equal(t, http.StatusGone, status)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(body))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sign/"+token, strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisputeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.seed(t, 1, time.Hour)
	reason := "The docking station listed was not handed over."

	status, body := s.do(t, http.MethodPost, "/api/v1/sign/"+token+"/dispute", map[string]string{"reason": reason}, "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "DISPUTED", data["status"])
	assert.Equal(t, reason, data["dispute_reason"])
}

func TestHandoverEndpoints(t *testing.T) {
	s := newTestServer(t)
	tech, _, err := s.tokens.GenerateToken("tech-1", domain.StaffRoleTechnician)
	require.NoError(t, err)
	auditor, _, err := s.tokens.GenerateToken("aud-1", domain.StaffRoleAuditor)
	require.NoError(t, err)

	payload := map[string]any{
		"recipient": map[string]any{
			"employee_id":   "emp-9",
			"employee_name": "Dana Reyes",
			"primary_email": "dana.reyes@example.com",
			"office":        "North Campus",
		},
		"assets": []map[string]string{{"asset_id": "a-1", "asset_code": "LT-9001"}},
	}

	status, _ := s.do(t, http.MethodPost, "/api/v1/handovers", payload, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/handovers", payload, auditor)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, http.MethodPost, "/api/v1/handovers", payload, tech)
	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "PENDING", data["status"])
	link := data["signing_link"].(map[string]any)
	token := link["token"].(string)
	assert.Equal(t, "https://assets.example.com/sign/"+token, link["url"])

	id := data["id"].(string)
	status, body = s.do(t, http.MethodGet, "/api/v1/handovers/"+id, nil, auditor)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Nil(t, data["signing_link"])
	assert.Len(t, data["items"], 1)

	status, body = s.do(t, http.MethodGet, "/api/v1/handovers/"+token, nil, auditor)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["dependencies"].(map[string]any)["postgres"])

	s.seed(t, 1, time.Hour)
	s.do(t, http.MethodGet, "/api/v1/sign/nope", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "handover_http_requests_total")
	assert.Contains(t, text, `handover_token_issue_attempts_total{outcome="issued"} 1`)
	assert.Contains(t, text, `code="TOKEN_NOT_FOUND"`)
	assert.NotContains(t, text, "/api/v1/sign/nope")
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestPanicIsRecovered(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, nil, nil, 0)
	app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
