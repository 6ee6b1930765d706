package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mailfleet/tokenstack/api/handlers"
	"github.com/mailfleet/tokenstack/api/middleware"
	"github.com/mailfleet/tokenstack/internal/repository"
	"github.com/mailfleet/tokenstack/internal/tracing"
	"github.com/mailfleet/tokenstack/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check endpoint (no auth)
	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-TOKENSTACK-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	{
		// Refresh endpoints
		refresh := api.Group("/refresh")
		{
			refresh.POST("/runs", handlers.StartRun(s.RefresherService))
			refresh.POST("/runs/retry", handlers.StartRetryRun(s.RefresherService))
			refresh.GET("/runs/current/stream", handlers.StreamRunProgress(s.RefresherService))
			refresh.POST("/accounts/:id", handlers.RefreshAccount(s.RefresherService))
			refresh.GET("/stats", handlers.RefreshStats(s.RefresherService, s.HistoryService, repos.AccountRepository))
			refresh.GET("/failing", handlers.ListFailingAccounts(s.HistoryService))
			refresh.GET("/history", handlers.ListHistory(s.HistoryService))
			refresh.GET("/history/:accountId", handlers.ListAccountHistory(s.HistoryService))
		}

		// Schedule endpoints
		schedule := api.Group("/schedule")
		{
			schedule.GET("", handlers.GetSchedule(s.SchedulerService))
			schedule.PUT("", handlers.UpdateSchedule(s.SchedulerService))
			schedule.POST("/preview", handlers.PreviewSchedule(s.SchedulerService))
		}

		// Account import/export endpoints
		accounts := api.Group("/accounts")
		{
			accounts.POST("/import", handlers.ImportAccounts(s.AccountsService))
			accounts.GET("/export", handlers.ExportAccounts(s.AccountsService))
		}
	}
}
