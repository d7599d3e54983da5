package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"crm-dialer/internal/auth"
	"crm-dialer/internal/httpapi"
	"crm-dialer/internal/metrics"
	"crm-dialer/internal/rbac"
	"crm-dialer/internal/telephony"
	"crm-dialer/pkg/logger"
	"crm-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type deps struct {
	env      string
	metrics  *metrics.Metrics
	authMW   gin.HandlerFunc
	limiter  *auth.IPRateLimiter
	ready    func(ctx context.Context) error
	webhooks telephony.WebhookHandler
	api      httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.ready != nil {
			if err := d.ready(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("readiness check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if d.metrics != nil {
		r.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}

	// Provider webhooks (public). The provider may answer with GET or POST.
	voice := r.Group("/webhooks/voice")
	{
		voice.GET("/answer", d.webhooks.Answer)
		voice.POST("/answer", d.webhooks.Answer)
		voice.POST("/event", d.webhooks.Event)
		voice.POST("/recording", d.webhooks.Recording)
		voice.POST("/transcription", d.webhooks.Transcription)
		voice.Any("/fallback", d.webhooks.Fallback)
	}

	if d.env != "production" && d.env != "staging" {
		r.POST("/dev/login", d.api.DevLogin)
	}

	v1 := r.Group("/v1")
	v1.Use(d.authMW, rbac.RequireProject())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			pid, _ := auth.ProjectID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "project_id": pid, "role": role})
		})

		dial := rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleAdmin)

		credentials := []gin.HandlerFunc{dial}
		if d.limiter != nil {
			credentials = append(credentials, d.limiter.Middleware())
		}
		v1.POST("/credentials", append(credentials, d.api.IssueCredential)...)

		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("", dial, d.api.CreateCall)
			callsGroup.PUT("/:call_id/provider-call", dial, d.api.LinkProviderCall)
			callsGroup.GET("/:call_id", rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleAdmin, rbac.RoleViewer), d.api.GetCall)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleViewer))
		{
			reports.GET("/calls", d.api.CallsSummary)
		}
	}
}

// readiness probes Postgres and Redis concurrently.
func readiness(db *sql.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return utils.HealthCheck(gctx, db, 2*time.Second)
		})
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, 2*time.Second)
			defer cancel()
			if err := rdb.Ping(pctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		})
		return g.Wait()
	}
}
