package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/akarimov/payguard/internal/ratelimit"
	"github.com/akarimov/payguard/internal/service"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler, sessions *service.SessionService, limiter *ratelimit.RateLimiter) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", RateLimit(limiter), h.Register)
	auth.POST("/login", RateLimit(limiter), h.Login)
	auth.POST("/logout", h.Logout)

	protected := api.Group("", RequireSession(sessions))
	protected.POST("/payments/charge", h.Charge)
	protected.GET("/users/me", h.Me)

	return r
}
