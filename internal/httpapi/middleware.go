package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/internal/ratelimit"
	"github.com/akarimov/payguard/internal/service"
)

const contextKeyUser = "current_user"

// bearerToken extracts the bearer token from the Authorization header.
// Empty string if absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CurrentUser returns the user resolved by RequireSession. Nil if not set.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return nil
	}
	u, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return u
}

// RequireSession is the gate between transport and core: it validates the
// bearer token and puts the resolved user in the request context. Missing,
// unknown and expired tokens all answer 401 uniformly.
func RequireSession(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		user, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(contextKeyUser, user)
		c.Next()
	}
}

// RateLimit applies the keyed limiter per client IP and route.
func RateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		if err := limiter.CheckLimit(key); err != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
