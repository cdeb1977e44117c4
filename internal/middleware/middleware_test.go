package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

const secret = "test-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		p, err := Principal(c)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, p)
	}, JWTAuth(secret))
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(secret), RequireRole(model.RoleAdmin))
	return e
}

func do(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newEcho()

	tok, err := utils.NewAccessToken(secret, 42, string(model.RoleMember), 5)
	require.NoError(t, err)
	rec := do(e, "/me", tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"UserID":42,"Role":"MEMBER"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", "garbage").Code)

	other, err := utils.NewAccessToken("other-secret", 42, string(model.RoleMember), 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", other.Token).Code)

	expired, err := utils.NewAccessToken(secret, 42, string(model.RoleMember), -5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", expired.Token).Code)

	unknownRole, err := utils.NewAccessToken(secret, 42, "OWNER", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", unknownRole.Token).Code)
}

func TestRequireRole(t *testing.T) {
	e := newEcho()
	member, err := utils.NewAccessToken(secret, 1, string(model.RoleMember), 5)
	require.NoError(t, err)
	admin, err := utils.NewAccessToken(secret, 2, string(model.RoleAdmin), 5)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(e, "/admin", member.Token).Code)
	assert.Equal(t, http.StatusNoContent, do(e, "/admin", admin.Token).Code)
}

func TestUserIDConversions(t *testing.T) {
	e := echo.New()
	for _, v := range []any{uint64(7), 7, int64(7), float64(7), "7"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("user_id", v)
		id, err := userID(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), id)
		assert.Equal(t, "7", currentUserID(c))
	}
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := userID(c)
	assert.Error(t, err)
	assert.Equal(t, "anon", currentUserID(c))
}

func TestNilRedisPassThrough(t *testing.T) {
	e := echo.New()
	calls := 0
	h := func(c echo.Context) error { calls++; return c.String(http.StatusOK, "ok") }
	e.GET("/x", h,
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))

	for i := 0; i < 3; i++ {
		rec := do(e, "/x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 3, calls)

	purger := NewCachePurger(config.CacheConfig{Prefix: "p"}, nil)
	assert.Nil(t, purger)
	assert.NoError(t, purger.Invalidate(context.Background()))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"day":"MONDAY"}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"day":"MONDAY"}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 0, 99})
	assert.False(t, ok)
}

func TestParseBucketResult(t *testing.T) {
	res, ok := parseBucketResult([]interface{}{int64(0), int64(0), int64(1500)})
	require.True(t, ok)
	assert.False(t, res.allowed)
	assert.Equal(t, 1500*time.Millisecond, res.retry)

	res, ok = parseBucketResult([]interface{}{int64(1), int64(4), int64(0)})
	require.True(t, ok)
	assert.True(t, res.allowed)
	assert.EqualValues(t, 4, res.remaining)

	_, ok = parseBucketResult("nope")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/classes/schedule?day=MONDAY", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/classes/schedule")
	c.Set("user_id", float64(9))

	assert.Equal(t, "rl:user:9:route:GET /v1/classes/schedule",
		buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}, c))
	assert.Equal(t, "rl:ip:10.0.0.1",
		buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))

	k1 := cacheKeyFrom(config.CacheConfig{Prefix: "gym:schedule"}, c)
	assert.Contains(t, k1, "gym:schedule:")
	c.Request().URL.RawQuery = "day=TUESDAY"
	assert.NotEqual(t, k1, cacheKeyFrom(config.CacheConfig{Prefix: "gym:schedule"}, c))
}
