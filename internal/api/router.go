package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillsign/federate/internal/app"
	"github.com/quillsign/federate/internal/handlers"
	"github.com/quillsign/federate/internal/middleware"
)

// Deps carries the wired handlers and shared infrastructure the router needs.
type Deps struct {
	Federation *handlers.FederationHandler
	Redirect   *handlers.RedirectHandler
	RateStore  middleware.RateStore
}

// NewRouter assembles the gin engine with the middleware chain, the
// partner-facing federation API, and the browser redirect endpoint.
func NewRouter(cfg *app.Config, deps Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())

	router.GET("/health", handlers.Health())

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		router.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	federationGroup := router.Group("/api/federation")
	federationGroup.Use(middleware.RateLimit(rateStore, 60, time.Minute))
	{
		federationGroup.POST("/generate-token", deps.Federation.GenerateToken)
		federationGroup.POST("/exchange-token", deps.Federation.ExchangeToken)
		federationGroup.POST("/authorize", deps.Federation.Authorize)
		federationGroup.POST("/authorize-business", deps.Federation.AuthorizeBusiness)
		federationGroup.POST("/verify", deps.Federation.Verify)
		federationGroup.POST("/remove-member", deps.Federation.RemoveMember)
	}

	exchangePath := cfg.Federation.ExchangePath
	if exchangePath == "" {
		exchangePath = "/auth/external"
	}
	router.GET(exchangePath, deps.Redirect.External)

	return router
}
