package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
)

// RateLimitByIP applies operation's policy keyed by the client address.
func RateLimitByIP(guard *ratelimit.Guard, operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := guard.Check(c.Request.Context(), operation, c.ClientIP()); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func SetRateLimitHeaders(c *gin.Context, limit, remaining int, resetUnix int64) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetUnix, 10))
}
