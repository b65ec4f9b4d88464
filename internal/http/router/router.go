// Package router assembles the Gin engine from the domain handlers.
package router

import (
	"context"
	"net/http"
	"time"

	campaignhandler "dunning_backend/internal/campaigns/handler"
	customerhandler "dunning_backend/internal/customers/handler"
	invoicehandler "dunning_backend/internal/invoices/handler"
	"dunning_backend/internal/replies"
	"dunning_backend/platform/config"
	"dunning_backend/platform/httpkit"
	"dunning_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps holds the fully initialized dependencies the router mounts. This is
// populated by main.go, the composition root.
type Deps struct {
	Config    *config.Config
	Log       *logger.Logger
	Health    HealthChecker
	Campaigns *campaignhandler.Handler
	Invoices  *invoicehandler.Handler
	Customers *customerhandler.Handler
	Replies   *replies.Handler
}

func New(d Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(d.Log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(d.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if d.Health != nil {
			if err := d.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")

	protected := v1.Group("")
	protected.Use(httpkit.AuthRequired(d.Config))
	d.Campaigns.RegisterRoutes(protected)
	d.Invoices.RegisterRoutes(protected)
	d.Customers.RegisterRoutes(protected)

	// Webhooks authenticate with a shared key instead of a JWT and carry
	// their own rate limit since the provider retries aggressively.
	webhookLimiter := httpkit.NewIPRateLimiter(rate.Limit(120.0/60.0), 60, d.Log)
	webhooks := v1.Group("/webhooks")
	webhooks.Use(webhookLimiter.RateLimit())
	webhooks.Use(httpkit.WebhookAuth(d.Config))
	d.Replies.RegisterRoutes(webhooks)

	return engine
}

func corsConfig(cfg config.HTTPConfig) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Api-Key")
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.GetCORSOrigins()
	c.AllowCredentials = cfg.GetCORSAllowCreds()
	return c
}
