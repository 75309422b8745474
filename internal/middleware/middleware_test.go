package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/config"
	"github.com/iliyamo/memberhub/internal/utils"
)

const secret = "test-secret"

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/v1", JWTAuth(secret))
	g.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": c.Get("user_id"), "role": c.Get("role")})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole("ADMIN"))

	rec := serve(e, http.MethodGet, "/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/v1/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	member, err := utils.NewAccessToken(secret, 42, "MEMBER", 5)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/v1/me", member.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":42,"role":"MEMBER"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/v1/admin", member.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := utils.NewAccessToken(secret, 1, "ADMIN", 5)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/v1/admin", admin.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	other, err := utils.NewAccessToken("other-secret", 1, "ADMIN", 5)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/v1/admin", other.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, secret, nil, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	tok, err := utils.NewAccessToken(secret, 7, "STAFF", 5)
	require.NoError(t, err)

	var keys []string
	e.POST(ScanRoute, func(c echo.Context) error {
		for _, s := range []string{"ip", "user", "route", "user_route", ""} {
			keys = append(keys, buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: s}, secret, c))
		}
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, ScanRoute, nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	req.RemoteAddr = "10.0.0.1:1234"
	e.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, keys, 5)
	assert.Equal(t, "rl:ip:10.0.0.1", keys[0])
	assert.Equal(t, "rl:user:7", keys[1])
	assert.Equal(t, "rl:route:POST /v1/scans", keys[2])
	assert.Equal(t, "rl:user:7:route:POST /v1/scans", keys[3])
	assert.Equal(t, "rl:ip:10.0.0.1:user:7:route:POST /v1/scans", keys[4])
}

func TestRateKeyIgnoresForgedTokens(t *testing.T) {
	e := echo.New()
	var keys []string
	e.POST("/v1/auth/login", func(c echo.Context) error {
		keys = append(keys, buildRateKey(config.RateLimitConfig{Prefix: "rl"}, secret, c))
		return nil
	})
	login := func(token string) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.RemoteAddr = "10.0.0.1:1234"
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	for i := uint64(1); i <= 3; i++ {
		forged, err := utils.NewAccessToken("attacker-key", i, "ADMIN", 5)
		require.NoError(t, err)
		login(forged.Token)
	}
	login("not-a-jwt")

	require.Len(t, keys, 4)
	for _, k := range keys {
		assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:POST /v1/auth/login", k)
	}
}

func TestCacheKeyIncludesPathParams(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	var keys []string
	e.GET("/v1/events/:id", func(c echo.Context) error {
		keys = append(keys, cacheKeyFrom(cfg, c))
		return nil
	})
	for _, p := range []string{"/v1/events/1", "/v1/events/2", "/v1/events/1?x=1", "/v1/events/1"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	require.Len(t, keys, 4)
	assert.NotEqual(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])
	assert.Equal(t, keys[0], keys[3])
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}
