package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
	"github.com/storefront/storefront/backend/auth-service/pkg/metrics"
)

// RedisRateLimitMiddleware provides a coarse fixed-window Redis-backed limiter
// shared by every replica. prefix separates independently mounted limiters.
// Algorithm: INCR a per-window key and compare against allowed = floor(rps*windowSeconds)+burst.
func RedisRateLimitMiddleware(client *redis.Client, prefix string, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	if prefix == "" {
		prefix = "rl"
	}
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int(rps*float64(windowSeconds)) + burst
	return func(c *gin.Context) {
		bucket := time.Now().Unix() / int64(windowSeconds)
		redisKey := fmt.Sprintf("%s:%s:%d", prefix, limiterKey(c), bucket)

		ctx := c.Request.Context()
		cnt, err := client.Incr(ctx, redisKey).Result()
		if err != nil {
			logger.WarnFields("rate_limit_check_failed", logger.Fields{"error": err})
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit check failed"})
			return
		}
		if cnt == 1 {
			_ = client.Expire(ctx, redisKey, time.Duration(windowSeconds+1)*time.Second).Err()
		}
		if int(cnt) > allowedPerWindow {
			c.Header("Retry-After", fmt.Sprintf("%d", windowSeconds))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
