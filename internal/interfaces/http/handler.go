package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Routes groups every handler mounted by SetupRoutes.
type Routes struct {
	Webhook  *WebhookHandler
	Admin    *AdminHandler
	WhatsApp *WhatsAppHandler
	DB       Pinger

	MaxBodyBytes   int64
	AdminRateLimit rate.Limit
	AdminRateBurst int
}

func SetupRoutes(r *gin.Engine, routes Routes, middleware *Middleware) {
	r.Use(middleware.RequestLogger())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(routes.MaxBodyBytes))
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", healthCheck(routes.DB))

	// Public webhook, called by the gateway
	routes.Webhook.RegisterRoutes(r)

	// Admin routes: no authentication, rate limited per IP
	admin := r.Group("/api/admin")
	admin.Use(middleware.RateLimitPerIP(routes.AdminRateLimit, routes.AdminRateBurst))
	{
		routes.Admin.RegisterRoutes(admin)
		routes.WhatsApp.RegisterRoutes(admin)
	}
}

func healthCheck(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}
