package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT() *helpers.JWTManager {
	return helpers.NewJWTManager("access", "refresh", time.Minute, time.Hour, "test")
}

func authedEngine(jwt *helpers.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/me", Auth(nil, jwt), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": UserID(c)})
	})
	return r
}

func TestAuthAcceptsCookieAndBearer(t *testing.T) {
	jwt := newJWT()
	token, _, err := jwt.GenerateAccessToken(7, "sid")
	require.NoError(t, err)
	r := authedEngine(jwt)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":7}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingAndForeignTokens(t *testing.T) {
	r := authedEngine(newJWT())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	other := helpers.NewJWTManager("other", "other", time.Minute, time.Hour, "test")
	token, _, err := other.GenerateAccessToken(7, "sid")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	const id = "4b7a4c36-0a0c-4f3c-9a57-6f1d2a3f6c11"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, w.Body.String())
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

func TestKeyByUserIDAndScope(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/friend-request/", nil)
	key := KeyByUserIDAndScope("friend_request")

	c.Set("real_ip", "10.0.0.1")
	assert.Equal(t, "rl:scope:friend_request:user:anon:ip:10.0.0.1", key(c))

	c.Set(CtxUserIDKey, int64(42))
	assert.Equal(t, "rl:scope:friend_request:user:42", key(c))
}

func TestAllowPrivateIP(t *testing.T) {
	allow := AllowPrivateIP()
	for ip, want := range map[string]bool{
		"127.0.0.1":   true,
		"10.1.2.3":    true,
		"192.168.0.9": true,
		"8.8.8.8":     false,
		"bogus":       false,
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Set("real_ip", ip)
		assert.Equal(t, want, allow(c), ip)
	}
}

func TestRealIPPrefersForwardedHeadersFromTrustedPeer(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRealIPKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:41000"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "203.0.113.5", w.Body.String())

	req.Header.Set("CF-Connecting-IP", "198.51.100.7")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "198.51.100.7", w.Body.String())
}

func TestRealIPIgnoresForwardedHeadersFromPublicPeer(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRealIPKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "203.0.113.9", w.Body.String())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// friendRequestEngine authenticates from X-User so the throttle can be
// exercised per user.
func friendRequestEngine(l *Limiter, rule Rule) *gin.Engine {
	r := gin.New()
	asUser := func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.GetHeader("X-User"), 10, 64)
		c.Set(CtxUserIDKey, id)
		c.Next()
	}
	r.POST("/friend-request/", asUser, l.Handler(rule, KeyByUserIDAndScope("friend_request"), nil), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func postAs(r *gin.Engine, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/friend-request/", nil)
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFriendRequestThrottlePerUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	for name, l := range map[string]*Limiter{
		"redis":      NewLimiter(rdb, nil),
		"in-process": NewLimiter(nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			r := friendRequestEngine(l, Rule{Max: 2, Window: time.Minute})

			for i := 0; i < 2; i++ {
				w := postAs(r, "7")
				require.Equal(t, http.StatusCreated, w.Code, "hit %d", i)
				assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
			}

			w := postAs(r, "7")
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Contains(t, w.Body.String(), "Request was throttled.")
			retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
			require.NoError(t, err)
			assert.True(t, retry > 0 && retry <= 60, "Retry-After=%d", retry)
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

			assert.Equal(t, http.StatusCreated, postAs(r, "8").Code, "another user keeps its own budget")
		})
	}
}

func TestRedisThrottleWindowExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	r := friendRequestEngine(NewLimiter(rdb, nil), Rule{Max: 1, Window: time.Minute})

	require.Equal(t, http.StatusCreated, postAs(r, "1").Code)
	require.Equal(t, http.StatusTooManyRequests, postAs(r, "1").Code)
	assert.True(t, mr.Exists("rl:scope:friend_request:user:1"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, postAs(r, "1").Code)
}

func TestRedisThrottleFailsOpen(t *testing.T) {
	mr, rdb := newTestRedis(t)
	r := friendRequestEngine(NewLimiter(rdb, nil), Rule{Max: 1, Window: time.Minute})
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, postAs(r, "1").Code)
	}
}

func TestAuthRequiresLiveSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	jwt := newJWT()
	r := gin.New()
	r.GET("/me", Auth(rdb, jwt), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	token, _, err := jwt.GenerateAccessToken(5, "sid-1")
	require.NoError(t, err)
	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, get(), "no session stored yet")

	mr.HSet(helpers.SessionKey(5), "sid", "sid-1")
	assert.Equal(t, http.StatusNoContent, get())

	mr.HSet(helpers.SessionKey(5), "sid", "sid-2")
	assert.Equal(t, http.StatusUnauthorized, get(), "a rotated session invalidates older tokens")

	mr.Del(helpers.SessionKey(5))
	assert.Equal(t, http.StatusUnauthorized, get())
}

func TestLocalBucketsRefill(t *testing.T) {
	b := newLocalBuckets()
	rule := Rule{Max: 2, Window: time.Minute}
	now := time.Now()

	left, _, throttled := b.take("k", rule, now)
	assert.False(t, throttled)
	assert.Equal(t, 1, left)
	_, _, throttled = b.take("k", rule, now)
	assert.False(t, throttled)

	_, wait, throttled := b.take("k", rule, now)
	assert.True(t, throttled)
	assert.InDelta(t, float64(30*time.Second), float64(wait), float64(time.Millisecond))

	_, _, throttled = b.take("k", rule, now.Add(31*time.Second))
	assert.False(t, throttled)
}

func TestParseHit(t *testing.T) {
	count, ttl := parseHit([]interface{}{int64(3), int64(1500)})
	assert.Equal(t, 3, count)
	assert.Equal(t, 1500*time.Millisecond, ttl)

	count, ttl = parseHit([]interface{}{int64(1), int64(-1)})
	assert.Equal(t, 1, count)
	assert.Zero(t, ttl)

	count, ttl = parseHit(int64(7))
	assert.Equal(t, 7, count)
	assert.Zero(t, ttl)
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 3, toInt(int64(3)))
	assert.Equal(t, 4, toInt("4"))
	assert.Equal(t, 0, toInt(nil))
}
