package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/hub"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/mw"
)

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.ServerConfig, h *Handler, wsHub *hub.Hub) *gin.Engine {
	r := gin.Default()

	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = 10
	}
	rateLimiter := mw.RateLimiter(limit, 5)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// POST /api/command
		api.POST("/command", h.PostCommand)

		// GET /api/status
		api.GET("/status", h.GetStatus)

		// History read-back and export
		api.GET("/history", caching, h.GetHistory)
		api.DELETE("/history/:id", h.DeleteHistory)
		api.GET("/export/csv", h.ExportCSV)

		// Push subscriptions for status alerts
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	// Live viewer feed; rate limiting would break long-lived connections.
	r.GET("/ws", wsHub.ServeWS)

	return r
}
