package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroquest/storefront-backend/pkg/auth"
	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/enums"
)

func TestAuthRejectsMissingToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRejectsTokenFromAnotherIssuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	other := cfg
	other.Issuer = "someone-else"
	token, err := auth.MintAccessToken(other, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	handler := Auth(cfg, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	userID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	var captured struct {
		user string
		role string
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		actor, err := ActorFromContext(r.Context())
		require.NoError(t, err)
		assert.True(t, actor.IsAdmin())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID.String(), captured.user)
	assert.Equal(t, string(enums.UserRoleAdmin), captured.role)
}

func TestRequireRoleForbidsCustomers(t *testing.T) {
	handler := RequireRole(enums.UserRoleAdmin, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req = req.WithContext(WithRole(req.Context(), enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	req = req.WithContext(WithRole(req.Context(), enums.UserRoleAdmin))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestActorFromContextRequiresUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ActorFromContext(req.Context())
	require.Error(t, err)
}

func TestAuthReportsExpiredToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	token, err := auth.MintAccessToken(cfg, time.Now().Add(-time.Hour), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	Auth(cfg, nil)(okHandler()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "token expired")
}

func TestAuthFailsClosedWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	resp := httptest.NewRecorder()
	Auth(config.JWTConfig{Issuer: "issuer", ExpirationMinutes: 10}, nil)(okHandler()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
