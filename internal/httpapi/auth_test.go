package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := authMiddleware([]byte("secret"))
	err := mw(func(c echo.Context) error { return nil })(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	secret := []byte("secret")
	token, err := signJWT("user-1", secret, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var sawUserID string
	mw := authMiddleware(secret)
	err = mw(func(c echo.Context) error {
		sawUserID, _ = c.Get("user_id").(string)
		return nil
	})(c)

	require.NoError(t, err)
	require.Equal(t, "user-1", sawUserID)
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	secret := []byte("secret")
	token, err := signJWT("user-1", secret, -time.Hour)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := authMiddleware(secret)
	err = mw(func(c echo.Context) error { return nil })(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}
