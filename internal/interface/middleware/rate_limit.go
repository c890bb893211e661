package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/oksasatya/go-ddd-friendship/pkg/response"
)

// ipFromCtx extracts the client IP from Gin context, falling back to "unknown"
func ipFromCtx(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request
// Example: combine client IP and route path for more granular limiting
type KeyFunc func(c *gin.Context) string

// KeyByIP returns a key function that limits by client IP only
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:ip:" + ipFromCtx(c)
	}
}

// KeyByIPAndPath returns a key function that limits by client IP and request path
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + normalizePath(c) + ":ip:" + ipFromCtx(c)
	}
}

func KeyByUserID() KeyFunc {
	return func(c *gin.Context) string {
		uid := UserID(c)
		if uid == 0 {
			return "rl:user:anon:ip:" + ipFromCtx(c)
		}
		return "rl:user:" + strconv.FormatInt(uid, 10)
	}
}

// KeyByUserIDAndScope limits each user separately per named scope, e.g.
// "friend_request". It must run after Auth.
func KeyByUserIDAndScope(scope string) KeyFunc {
	byUser := KeyByUserID()
	return func(c *gin.Context) string {
		return "rl:scope:" + scope + ":" + strings.TrimPrefix(byUser(c), "rl:")
	}
}

// hitScript increments the window counter, starts the window on the first
// hit and returns {count, remaining ttl in ms} in one round trip.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// AllowFunc returns true for requests that bypass a limit.
type AllowFunc func(*gin.Context) bool

// Rule is a fixed window: at most Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

func (r Rule) enabled() bool { return r.Max > 0 && r.Window > 0 }

// Limiter enforces Rules against Redis counters. Without a Redis client it
// keeps per-key token buckets in process, so one instance still throttles.
// Redis errors let the request through and are logged.
type Limiter struct {
	rdb    *redis.Client
	local  *localBuckets
	logger logrus.FieldLogger
}

func NewLimiter(rdb *redis.Client, logger logrus.FieldLogger) *Limiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &Limiter{rdb: rdb, logger: logger}
	if rdb == nil {
		l.local = newLocalBuckets()
	}
	return l
}

// Handler builds the middleware for one rule. Responses carry
// X-RateLimit-Limit/Remaining/Reset, plus Retry-After when throttled (429).
func (l *Limiter) Handler(rule Rule, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if l == nil || !rule.enabled() || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if allow != nil && allow(c) {
			c.Next()
			return
		}
		if strings.EqualFold(c.Request.Method, http.MethodOptions) {
			c.Next()
			return
		}

		key := keyFn(c)
		var (
			remaining int
			reset     time.Duration
			throttled bool
		)
		if l.rdb != nil {
			count, ttl, err := l.hit(c.Request.Context(), key, rule.Window)
			if err != nil {
				l.logger.WithError(err).WithField("key", key).Warn("rate limit check failed, allowing request")
				c.Next()
				return
			}
			remaining, reset, throttled = rule.Max-count, ttl, count > rule.Max
		} else {
			remaining, reset, throttled = l.local.take(key, rule, time.Now())
		}

		resetSec := int((reset + time.Second - 1) / time.Second)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if throttled {
			if resetSec > 0 {
				c.Header("Retry-After", strconv.Itoa(resetSec))
			}
			response.Error[any](c, http.StatusTooManyRequests, "Request was throttled.", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// localBuckets holds one token bucket per key: Max tokens refilled evenly
// over Window. Idle buckets are dropped once the map grows.
type localBuckets struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

const localSweepSize = 10000

func newLocalBuckets() *localBuckets {
	return &localBuckets{buckets: make(map[string]*localBucket)}
}

// take spends one token for key and reports the tokens left, the time until
// a token is available again, and whether the request is throttled.
func (b *localBuckets) take(key string, rule Rule, now time.Time) (int, time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buckets) >= localSweepSize {
		for k, v := range b.buckets {
			if now.Sub(v.lastSeen) > v.window {
				delete(b.buckets, k)
			}
		}
	}
	bk, ok := b.buckets[key]
	if !ok {
		every := rule.Window / time.Duration(rule.Max)
		bk = &localBucket{lim: rate.NewLimiter(rate.Every(every), rule.Max), window: rule.Window}
		b.buckets[key] = bk
	}
	bk.lastSeen = now

	res := bk.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return 0, delay, true
	}
	return int(bk.lim.TokensAt(now)), 0, false
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	res, err := hitScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	count, ttl := parseHit(res)
	return count, ttl, nil
}

func parseHit(res interface{}) (int, time.Duration) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return toInt(res), 0
	}
	count := toInt(vals[0])
	var ttl time.Duration
	if len(vals) > 1 {
		if ms := toInt(vals[1]); ms > 0 {
			ttl = time.Duration(ms) * time.Millisecond
		}
	}
	return count, ttl
}

func toInt(v interface{}) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case string:
		i, _ := strconv.Atoi(x)
		return i
	}
	return 0
}
