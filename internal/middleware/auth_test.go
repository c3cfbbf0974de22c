package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpatel-io/clinicbook/internal/config"
	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/pkg/auth"
)

func testRouter(t *testing.T, accessTTL time.Duration) (*gin.Engine, *auth.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-with-at-least-32-characters",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "clinicbook-test",
	})

	r := gin.New()
	r.GET("/protected", Authenticate(jwtManager), func(c *gin.Context) {
		claims := MustClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	r.GET("/admin-only",
		Authenticate(jwtManager),
		RequireRole(domain.RoleAdmin),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return r, jwtManager
}

func bearerFor(t *testing.T, m *auth.JWTManager, role domain.Role) string {
	t.Helper()
	pair, err := m.GenerateTokenPair(&domain.Claims{
		UserID: uuid.New(), Email: "u@example.com", Role: role,
	})
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func TestAuthenticate(t *testing.T) {
	r, m := testRouter(t, 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerFor(t, m, domain.RolePatient))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateRejections(t *testing.T) {
	r, _ := testRouter(t, 15*time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc123"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	r, m := testRouter(t, -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", bearerFor(t, m, domain.RolePatient))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestRequireRole(t *testing.T) {
	r, m := testRouter(t, 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", bearerFor(t, m, domain.RolePatient))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", bearerFor(t, m, domain.RoleAdmin))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
