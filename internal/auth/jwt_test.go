package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatsync/internal/identity"
)

const testSecret = "test-secret"

func contextWithToken(t *testing.T, signed string) echo.Context {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	token, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	c.Set("user", token)
	return c
}

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	signed, _, err := GenerateNamedToken("user-123", "Ana", testSecret, time.Minute)
	require.NoError(t, err)
	c := contextWithToken(t, signed)

	id, err := IdentityFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{UserID: "user-123"}, id)
	assert.Equal(t, "Ana", NameFromContext(c))
}

func TestIdentityFromContext_MissingUser(t *testing.T) {
	t.Parallel()

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := IdentityFromContext(c)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "", NameFromContext(c))
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	_, _, err := GenerateToken(" ", testSecret, time.Minute)
	assert.ErrorIs(t, err, identity.ErrMissing)
	_, _, err = GenerateToken("u1", "", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken("u1", testSecret, 0)
	assert.Error(t, err)
	_, _, err = GenerateNamedToken("a_b", "Ana", testSecret, time.Minute)
	assert.ErrorIs(t, err, identity.ErrInvalid)
}

func TestIdentityFromContext_SeparatorInSubject(t *testing.T) {
	t.Parallel()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "a_b",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = IdentityFromContext(contextWithToken(t, signed))
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestRefreshTokenFromContext(t *testing.T) {
	t.Parallel()

	initial, _, err := GenerateToken("user-123", testSecret, 5*time.Minute)
	require.NoError(t, err)
	c := contextWithToken(t, initial)

	refreshed, expiresAt, err := RefreshTokenFromContext(c, testSecret, time.Hour)
	require.NoError(t, err)

	token, err := jwt.Parse(refreshed, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-123", claims[claimSubject])
	assert.Equal(t, "user-123", claims[claimUserID])

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	assert.Equal(t, int64(5*60), exp-iat, "refresh keeps the original lifetime")
	assert.Equal(t, expiresAt.Unix(), exp)
}

func TestJWTMiddlewareQueryToken(t *testing.T) {
	t.Parallel()

	signed, _, err := GenerateToken("u1", testSecret, time.Minute)
	require.NoError(t, err)

	e := echo.New()
	e.Use(JWTMiddleware(testSecret, func(c echo.Context) bool { return c.Path() == "/open" }))
	e.GET("/me", func(c echo.Context) error {
		id, err := IdentityFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id.UserID)
	})
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	cases := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + signed, code: http.StatusOK},
		{name: "query token", target: "/me?token=" + signed, code: http.StatusOK},
		{name: "missing token", target: "/me", code: http.StatusUnauthorized},
		{name: "bad token", target: "/me", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "skipped", target: "/open", code: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if tc.code == http.StatusUnauthorized {
				// echo-jwt reports a missing token as 400 in some versions.
				assert.True(t, rec.Code == http.StatusUnauthorized || rec.Code == http.StatusBadRequest, "code %d", rec.Code)
				return
			}
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}
