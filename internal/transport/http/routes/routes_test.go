package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	httproutes "github.com/zaedhealth/identity-service/internal/transport/http/routes"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	signer := security.NewHMACSigner("routes-test-secret")
	tokens := security.NewTokenService(signer, "zaed.org", time.Hour, 168*time.Hour, 15*time.Minute, 5*time.Minute)

	return httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
		Tokens: tokens,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadyEndpointWithoutCheckers(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestTwoFactorRoutesRequireAuth(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/auth/2fa/status", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestLogoutAllRejectsGarbageToken(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
