package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/mw"
	"workshop-scan-backend/internal/session"
)

// NewRouter creates and configures the Gin router: the two websocket
// endpoints plus a small rate-limited, response-cached read API.
func NewRouter(cfg *config.ServerConfig, coord *session.Coordinator) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(coord)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/ws/agent", handler.AgentSocket)
	r.GET("/ws/dashboard", handler.DashboardSocket)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/storage", caching, handler.GetStorageStatus)
		api.GET("/report", caching, handler.GetDailyReport)
		api.GET("/healthz", handler.GetHealth)
	}

	return r
}
