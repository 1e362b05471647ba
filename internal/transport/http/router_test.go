package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/config"
	"github.com/go-redemption-api/internal/domain"
	jwtinfra "github.com/go-redemption-api/internal/infrastructure/jwt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

type stubRedemption struct{ redemption.Service }

func (stubRedemption) Validate(context.Context, string, string) (*domain.LinkSummary, error) {
	return &domain.LinkSummary{Link: &domain.RedemptionLink{Token: "abc123"}, Event: &domain.Event{}}, nil
}

func (stubRedemption) Recover(context.Context, time.Duration) (domain.RecoveryReport, error) {
	return domain.RecoveryReport{}, nil
}

type stubVerifier map[string]string

func (s stubVerifier) Verify(token string) (*jwtinfra.Claims, error) {
	role, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &jwtinfra.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: "u-" + token}}, nil
}

func newTestRouter(t *testing.T, verifier stubVerifier) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{AllowedOrigins: []string{"*"}, EnableMetrics: true}
	deps := &Deps{Redemption: stubRedemption{}, RecoveryAge: time.Minute}
	if verifier != nil {
		deps.Verifier = verifier
	}
	return NewRouter(ctx, cfg, deps)
}

func do(h http.Handler, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRouter_PublicRoutes(t *testing.T) {
	h := newTestRouter(t, stubVerifier{})
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/health-check/ping", ""))
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/redeem/919876543210/abc123", ""))
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", ""))
}

func TestRouter_AdminRequiresAdminRole(t *testing.T) {
	h := newTestRouter(t, stubVerifier{"root": jwtinfra.RoleAdmin, "staff": "support"})
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/admin/recovery", ""))
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/admin/recovery", "forged"))
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/v1/admin/recovery", "staff"))
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/admin/recovery", "root"))
}

func TestRouter_AdminRoutesAbsentWithoutVerifier(t *testing.T) {
	h := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/v1/admin/recovery", "root"))
}
