package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/finref/refdataapi/internal/config"
)

func authRequest(t *testing.T, cfg *config.Config, header string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := AuthMiddleware(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec.Code
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{APITokenHash: string(hash)}

	assert.Equal(t, http.StatusOK, authRequest(t, cfg, "Bearer s3cret-token"))
	assert.Equal(t, http.StatusUnauthorized, authRequest(t, cfg, ""))
	assert.Equal(t, http.StatusUnauthorized, authRequest(t, cfg, "s3cret-token"))
	assert.Equal(t, http.StatusUnauthorized, authRequest(t, cfg, "Bearer wrong-token"))
}
