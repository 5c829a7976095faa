package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repaart/support-desk/internal/domain"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken(domain.Admin{UID: "admin-1", Email: "admin@repaart.es"}, domain.RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, "admin@repaart.es", claims.Admin().Email)
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	token, _, err := tm.GenerateToken(domain.Admin{UID: "admin-1"}, domain.RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 1).ParseToken(token)
	assert.Error(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/api/ping", NewAuthMiddleware(tm).Handle, RequireAdmin(), func(c *fiber.Ctx) error {
		admin, _ := AdminFromContext(c)
		return c.SendString(admin.UID)
	})
	return app
}

func TestMiddlewareRoles(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := newApp(tm)
	admin, _, err := tm.GenerateToken(domain.Admin{UID: "admin-1"}, domain.RoleAdmin)
	require.NoError(t, err)
	customer, _, err := tm.GenerateToken(domain.Admin{UID: "rider-1"}, domain.RoleCustomer)
	require.NoError(t, err)

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing", "/api/ping", "", http.StatusUnauthorized},
		{"malformed", "/api/ping", "Token abc", http.StatusUnauthorized},
		{"customer", "/api/ping", "Bearer " + customer, http.StatusForbidden},
		{"admin", "/api/ping", "Bearer " + admin, http.StatusOK},
		{"query token", "/api/ping?access_token=" + admin, "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
