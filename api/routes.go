package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

const APIKeyHeader = "X-MAILSYNC-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.Manager))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		accountsHandler := handlers.NewAccountsHandler(repos.AccountRepository, s.Manager)
		accounts := api.Group("/accounts")
		{
			accounts.GET("", accountsHandler.List())
			accounts.POST("", accountsHandler.Create())
			accounts.POST("/:id/start", accountsHandler.Start())
			accounts.POST("/:id/stop", accountsHandler.Stop())
			accounts.POST("/:id/flags", accountsHandler.QueueFlags())
		}

		sync := api.Group("/sync")
		{
			sync.POST("/start", handlers.StartSync(s.Manager))
			sync.POST("/stop", handlers.StopSync(s.Manager))
		}

		api.GET("/search", handlers.Search(s.SearchIndex))
	}
}
