package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterKey prefers the authenticated user, falling back to the client IP.
func limiterKey(c *gin.Context) string {
	if id, ok := UserID(c); ok {
		return "user:" + strconv.FormatInt(id, 10)
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// minLimiterIdle is the shortest idle time after which a key's bucket is dropped.
const minLimiterIdle = time.Minute

type visitor struct {
	lim  *rate.Limiter
	seen atomic.Int64 // unix nanos of the last request
}

// memoryLimiter keeps one token bucket per key and drops buckets that have been
// idle long enough to have refilled, so a stream of new client IPs can't grow it
// without bound.
type memoryLimiter struct {
	rps   float64
	burst int
	idle  time.Duration // 0 disables eviction
	now   func() time.Time

	visitors  sync.Map // map[string]*visitor
	lastSweep atomic.Int64
}

func newMemoryLimiter(rps float64, burst int, now func() time.Time) *memoryLimiter {
	l := &memoryLimiter{rps: rps, burst: burst, now: now}
	if rps > 0 {
		// an idle bucket refills in burst/rps and is then the same as a new one
		l.idle = max(time.Duration(float64(burst)/rps*float64(time.Second)), minLimiterIdle)
	}
	l.lastSweep.Store(now().UnixNano())
	return l
}

func (l *memoryLimiter) allow(key string) bool {
	now := l.now()
	v, ok := l.visitors.Load(key)
	if !ok {
		v, _ = l.visitors.LoadOrStore(key, &visitor{lim: rate.NewLimiter(rate.Limit(l.rps), l.burst)})
	}
	vis := v.(*visitor)
	vis.seen.Store(now.UnixNano())
	allowed := vis.lim.AllowN(now, 1)
	l.sweep(now)
	return allowed
}

// sweep runs at most once per idle period.
func (l *memoryLimiter) sweep(now time.Time) {
	if l.idle == 0 {
		return
	}
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.idle) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-l.idle).UnixNano()
	l.visitors.Range(func(k, v any) bool {
		if v.(*visitor).seen.Load() < cutoff {
			l.visitors.CompareAndDelete(k, v)
		}
		return true
	})
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// Each call gets its own bucket set, so separately mounted limiters don't share budget.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	l := newMemoryLimiter(rps, burst, time.Now)

	return func(c *gin.Context) {
		if !l.allow(limiterKey(c)) {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
